package internal

import (
	"context"
	"fmt"
	"time"
)

const defaultSendTimeout = 10 * time.Second

// Dispatcher hands rendered messages to the worker's targets.
type Dispatcher struct {
	BotToken  string
	Sender    ChatSender
	Publisher Publisher
	// SendTimeout bounds each outbound call; zero means 10s.
	SendTimeout time.Duration
}

// Delivery describes one rendered message.
type Delivery struct {
	Service    string
	EventType  string
	Repository string
	RequestID  string
	Message    string
}

// Dispatch sends d to the targets of worker and reports whether anything was
// sent. Missing prerequisites return a *SkipError before any send; send and
// publish failures are returned as they are.
func (d *Dispatcher) Dispatch(ctx context.Context, worker *PushNotificationWorker, delivery Delivery) (bool, error) {
	if worker.TelegramTarget != nil && d.BotToken == "" {
		return false, &SkipError{Service: delivery.Service, Reason: SkipMissingBotToken}
	}
	if worker.PublishTarget != nil && d.Publisher == nil {
		return false, &SkipError{Service: delivery.Service, Reason: SkipMissingPublisher, Detail: worker.PublishTarget.Topic}
	}

	sent := false
	if target := worker.TelegramTarget; target != nil {
		if d.Sender == nil {
			return false, fmt.Errorf("%s: no chat sender configured", delivery.Service)
		}
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout())
		err := d.Sender.Send(sendCtx, d.BotToken, *target, delivery.Message)
		cancel()
		if err != nil {
			return sent, err
		}
		sent = true
	}

	if target := worker.PublishTarget; target != nil {
		pubCtx, cancel := context.WithTimeout(ctx, d.timeout())
		err := d.Publisher.PublishForDrivers(pubCtx, target.Topic, Notification{
			Service:    delivery.Service,
			EventType:  delivery.EventType,
			Repository: delivery.Repository,
			RequestID:  delivery.RequestID,
			Message:    delivery.Message,
		}, target.Drivers)
		cancel()
		if err != nil {
			return sent, fmt.Errorf("publish %s: %w", target.Topic, err)
		}
		sent = true
	}
	return sent, nil
}

func (d *Dispatcher) timeout() time.Duration {
	if d.SendTimeout > 0 {
		return d.SendTimeout
	}
	return defaultSendTimeout
}
