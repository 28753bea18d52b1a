package internal

import "fmt"

// Skip reasons reported for configs that match the event type but cannot act.
const (
	SkipMalformedListener  = "malformed listener"
	SkipRepositoryMismatch = "repository mismatch"
	SkipConditionFalse     = "condition not met"
	SkipConditionError     = "condition failed"
	SkipNoWorker           = "no worker"
	SkipWorkerIgnored      = "worker ignored"
	SkipMissingBotToken    = "missing bot token"
	SkipMissingPublisher   = "missing publisher"
)

// SkipError marks a config that was passed over. It never aborts the
// remaining configs of a request.
type SkipError struct {
	Service string
	Reason  string
	Detail  string
}

func (e *SkipError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Service, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Service, e.Reason, e.Detail)
}

func skip(cfg EventMapConfig, reason, detail string) *SkipError {
	return &SkipError{Service: cfg.ServiceName, Reason: reason, Detail: detail}
}

// PushEvent is a push delivery whose signature has been verified.
type PushEvent struct {
	// Repository is repository.full_name.
	Repository string
	Payload    map[string]interface{}
	Raw        []byte
}

// Route keeps the event-map records of kind event-map declared for
// eventType, in configuration order. Duplicates are kept.
func Route(eventType string, configs []EventMapConfig) []EventMapConfig {
	out := make([]EventMapConfig, 0, len(configs))
	for _, cfg := range configs {
		if cfg.Kind != KindEventMap || cfg.EventType != eventType {
			continue
		}
		out = append(out, cfg)
	}
	return out
}

// ResolvePush checks a routed config against a push event and returns the
// worker to run. Every refusal is a *SkipError.
func ResolvePush(cfg EventMapConfig, event PushEvent, values map[string]interface{}) (*PushNotificationWorker, *SkipError) {
	var listener *PushEventListener
	switch typed := cfg.Listener.(type) {
	case *PushEventListener:
		if typed == nil {
			return nil, skip(cfg, SkipMalformedListener, "listener missing")
		}
		listener = typed
	case *UnknownListener:
		return nil, skip(cfg, SkipMalformedListener, fmt.Sprintf("listener kind %q", typed.Kind))
	case nil:
		return nil, skip(cfg, SkipMalformedListener, "listener missing")
	default:
		return nil, skip(cfg, SkipMalformedListener, fmt.Sprintf("listener kind %q", typed.listenerKind()))
	}

	if event.Repository == "" || listener.RepositoryTarget != event.Repository {
		return nil, skip(cfg, SkipRepositoryMismatch, fmt.Sprintf("target=%q event=%q", listener.RepositoryTarget, event.Repository))
	}

	if listener.Condition != "" {
		ok, err := EvaluateCondition(listener.Condition, event.Payload, values)
		if err != nil {
			return nil, skip(cfg, SkipConditionError, err.Error())
		}
		if !ok {
			return nil, skip(cfg, SkipConditionFalse, listener.Condition)
		}
	}

	switch worker := listener.Worker.(type) {
	case *PushNotificationWorker:
		if worker == nil {
			return nil, skip(cfg, SkipNoWorker, "")
		}
		return worker, nil
	case nil:
		return nil, skip(cfg, SkipNoWorker, "")
	case *UnknownWorker:
		return nil, skip(cfg, SkipWorkerIgnored, fmt.Sprintf("worker kind %q", worker.Kind))
	default:
		return nil, skip(cfg, SkipWorkerIgnored, fmt.Sprintf("worker kind %q", worker.workerKind()))
	}
}
