package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// EventPush is the X-GitHub-Event value of push deliveries.
const EventPush = "push"

type Status string

const (
	StatusDelivered Status = "delivered"
	// StatusRendered means the worker matched but declares no target.
	StatusRendered Status = "rendered"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Result is the outcome of one routed config.
type Result struct {
	Service string
	Status  Status
	Reason  string
	Message string
}

// Report collects the results of one push delivery.
type Report struct {
	Repository string
	Routed     int
	Results    []Result
}

// Skipped returns the results that were passed over.
func (r Report) Skipped() []Result {
	var out []Result
	for _, result := range r.Results {
		if result.Status == StatusSkipped {
			out = append(out, result)
		}
	}
	return out
}

// Processor runs the push pipeline: route, resolve, render, dispatch.
type Processor struct {
	Dispatcher *Dispatcher
}

// HandlePush processes the routed configs one after another. Skipped configs
// never stop the loop. The first hard error is returned immediately and the
// configs after it are not processed.
func (p *Processor) HandlePush(ctx context.Context, logger *log.Logger, event PushEvent, requestID string, configs []EventMapConfig) (Report, error) {
	if logger == nil {
		logger = log.Default()
	}
	routed := Route(EventPush, configs)
	report := Report{Repository: event.Repository, Routed: len(routed)}
	if len(routed) == 0 {
		logger.Printf("no event-map for event=%s repository=%s", EventPush, event.Repository)
		return report, nil
	}

	values := TemplateValues(event.Payload)
	for _, cfg := range routed {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		result, err := p.processPush(ctx, logger, cfg, event, requestID, values)
		report.Results = append(report.Results, result)
		switch result.Status {
		case StatusSkipped:
			IncSkip(result.Reason)
		case StatusDelivered:
			IncDelivery(result.Service)
		}
		if err != nil {
			IncDispatchError(cfg.ServiceName)
			logger.Printf("service=%s failed: %v", cfg.ServiceName, err)
			return report, fmt.Errorf("service %s: %w", cfg.ServiceName, err)
		}
	}
	return report, nil
}

func (p *Processor) processPush(ctx context.Context, logger *log.Logger, cfg EventMapConfig, event PushEvent, requestID string, values map[string]interface{}) (Result, error) {
	result := Result{Service: cfg.ServiceName}

	worker, skipped := ResolvePush(cfg, event, values)
	if skipped != nil {
		logger.Printf("skip %v", skipped)
		result.Status = StatusSkipped
		result.Reason = skipped.Reason
		return result, nil
	}

	result.Message = ReplaceVariables(worker.Message, values)
	logger.Printf("message service=%s variables=%v", cfg.ServiceName, ExtractVariables(worker.Message))

	if p.Dispatcher == nil {
		result.Status = StatusRendered
		return result, nil
	}
	sent, err := p.Dispatcher.Dispatch(ctx, worker, Delivery{
		Service:    cfg.ServiceName,
		EventType:  cfg.EventType,
		Repository: event.Repository,
		RequestID:  requestID,
		Message:    result.Message,
	})
	var skipErr *SkipError
	if errors.As(err, &skipErr) {
		logger.Printf("skip %v", skipErr)
		result.Status = StatusSkipped
		result.Reason = skipErr.Reason
		return result, nil
	}
	if err != nil {
		result.Status = StatusFailed
		result.Reason = err.Error()
		return result, err
	}
	if sent {
		result.Status = StatusDelivered
	} else {
		result.Status = StatusRendered
	}
	return result, nil
}
