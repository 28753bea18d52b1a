package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Discriminator values carried in the "_" field of event-map documents.
const (
	KindEventMap          = "event-map"
	KindPushEventListener = "push-event-listener"
	KindPushWorker        = "push-worker"
	KindTelegramTarget    = "telegram-target"
)

// EventMapConfig binds an event type and a listener to a notification worker.
type EventMapConfig struct {
	Kind        string        `json:"_"`
	ServiceName string        `json:"service_name"`
	EventType   string        `json:"event_type"`
	Listener    EventListener `json:"listener"`
}

// EventListener is implemented by *PushEventListener and *UnknownListener.
type EventListener interface {
	listenerKind() string
}

// PushEventListener matches push events of a single repository.
type PushEventListener struct {
	// RepositoryTarget is the full "owner/repo" name, compared case-sensitively.
	RepositoryTarget string `json:"repository_target"`
	// Condition is an optional boolean expression over the template values.
	Condition string `json:"condition,omitempty"`
	Worker    Worker `json:"worker,omitempty"`
}

// UnknownListener keeps the tag of a listener variant this build does not handle.
type UnknownListener struct {
	Kind string
}

func (*PushEventListener) listenerKind() string { return KindPushEventListener }
func (l *UnknownListener) listenerKind() string { return l.Kind }

// Worker is implemented by *PushNotificationWorker and *UnknownWorker.
type Worker interface {
	workerKind() string
}

// PushNotificationWorker renders Message and delivers it to its targets.
type PushNotificationWorker struct {
	Message        string          `json:"message"`
	TelegramTarget *TelegramTarget `json:"telegram_target,omitempty"`
	PublishTarget  *PublishTarget  `json:"publish_target,omitempty"`
}

// UnknownWorker keeps the tag of a worker variant this build does not handle.
type UnknownWorker struct {
	Kind string
}

func (*PushNotificationWorker) workerKind() string { return KindPushWorker }
func (w *UnknownWorker) workerKind() string        { return w.Kind }

// TelegramTarget is a chat and an optional forum topic. A nil Topic sends to
// the chat's primary thread.
type TelegramTarget struct {
	Chat  int64 `json:"chat"`
	Topic *int  `json:"topic,omitempty"`
}

// PublishTarget forwards rendered notifications to a broker topic.
type PublishTarget struct {
	Topic   string   `json:"topic"`
	Drivers []string `json:"drivers,omitempty"`
}

type tagged struct {
	Kind string `json:"_"`
}

func (c *EventMapConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind        string          `json:"_"`
		ServiceName string          `json:"service_name"`
		EventType   string          `json:"event_type"`
		Listener    json.RawMessage `json:"listener"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Kind = raw.Kind
	c.ServiceName = raw.ServiceName
	c.EventType = raw.EventType
	c.Listener = nil
	if isNullJSON(raw.Listener) {
		return nil
	}
	listener, err := decodeListener(raw.Listener)
	if err != nil {
		return fmt.Errorf("service %q listener: %w", raw.ServiceName, err)
	}
	c.Listener = listener
	return nil
}

func decodeListener(data []byte) (EventListener, error) {
	var tag tagged
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, err
	}
	switch tag.Kind {
	case KindPushEventListener:
		var raw struct {
			RepositoryTarget string          `json:"repository_target"`
			Condition        string          `json:"condition"`
			Worker           json.RawMessage `json:"worker"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		listener := &PushEventListener{
			RepositoryTarget: raw.RepositoryTarget,
			Condition:        raw.Condition,
		}
		if !isNullJSON(raw.Worker) {
			worker, err := decodeWorker(raw.Worker)
			if err != nil {
				return nil, fmt.Errorf("worker: %w", err)
			}
			listener.Worker = worker
		}
		return listener, nil
	default:
		return &UnknownListener{Kind: tag.Kind}, nil
	}
}

func decodeWorker(data []byte) (Worker, error) {
	var tag tagged
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, err
	}
	switch tag.Kind {
	case KindPushWorker:
		var raw struct {
			TelegramTarget *tagged `json:"telegram_target"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		// An untagged target is accepted as a telegram target.
		if raw.TelegramTarget != nil && raw.TelegramTarget.Kind != "" && raw.TelegramTarget.Kind != KindTelegramTarget {
			return nil, fmt.Errorf("telegram_target: unexpected kind %q", raw.TelegramTarget.Kind)
		}
		var worker PushNotificationWorker
		if err := json.Unmarshal(data, &worker); err != nil {
			return nil, err
		}
		return &worker, nil
	default:
		return &UnknownWorker{Kind: tag.Kind}, nil
	}
}

func isNullJSON(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// EventMapSource supplies the event-map for one request.
type EventMapSource interface {
	Load(ctx context.Context) ([]EventMapConfig, error)
}

// FileEventMapSource reads a JSON array of EventMapConfig records from Path
// every time Load is called.
type FileEventMapSource struct {
	Path string
}

func (s FileEventMapSource) Load(ctx context.Context) ([]EventMapConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	return ParseEventMap(data)
}

// ParseEventMap decodes an event-map document.
func ParseEventMap(data []byte) ([]EventMapConfig, error) {
	var configs []EventMapConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("parse event map: %w", err)
	}
	return configs, nil
}

// StaticEventMapSource serves a fixed list; used by tests and embedders.
type StaticEventMapSource []EventMapConfig

func (s StaticEventMapSource) Load(ctx context.Context) ([]EventMapConfig, error) {
	return []EventMapConfig(s), nil
}
