package internal

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

// notificationArgs is the River job carrying one notification. The kind is
// configurable, so it lives on the value rather than in a constant.
type notificationArgs struct {
	Notification
	Topic string `json:"topic"`
	kind  string
}

func (a notificationArgs) Kind() string { return a.kind }

// riverQueuePublisher enqueues notifications as River jobs so a River worker
// can deliver them. The client is insert-only and never started.
type riverQueuePublisher struct {
	pool   *pgxpool.Pool
	client *river.Client[pgx.Tx]
	cfg    RiverQueueConfig
}

func newRiverQueuePublisher(cfg RiverQueueConfig) (*riverQueuePublisher, error) {
	if cfg.DSN == "" {
		return nil, configErrorf("riverqueue dsn is required")
	}
	pool, err := pgxpool.New(context.Background(), cfg.DSN)
	if err != nil {
		return nil, configErrorf("%v", err)
	}
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &riverQueuePublisher{pool: pool, client: client, cfg: cfg}, nil
}

func (p *riverQueuePublisher) Publish(ctx context.Context, topic string, n Notification) error {
	args, opts, err := p.job(topic, n)
	if err != nil {
		return err
	}
	_, err = p.client.Insert(ctx, args, opts)
	return err
}

func (p *riverQueuePublisher) job(topic string, n Notification) (notificationArgs, *river.InsertOpts, error) {
	metadata, err := json.Marshal(map[string]string{
		"service":    n.Service,
		"event":      n.EventType,
		"repository": n.Repository,
		"request_id": n.RequestID,
	})
	if err != nil {
		return notificationArgs{}, nil, err
	}
	args := notificationArgs{Notification: n, Topic: topic, kind: p.cfg.Kind}
	return args, &river.InsertOpts{
		MaxAttempts: p.cfg.MaxAttempts,
		Metadata:    metadata,
		Priority:    p.cfg.Priority,
		Queue:       p.cfg.Queue,
		Tags:        p.cfg.Tags,
	}, nil
}

func (p *riverQueuePublisher) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *riverQueuePublisher) PublishForDrivers(ctx context.Context, topic string, n Notification, drivers []string) error {
	return p.Publish(ctx, topic, n)
}
