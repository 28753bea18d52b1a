package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmamaqp "github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	wmhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/pkg/kafka"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	wmsql "github.com/ThreeDotsLabs/watermill-sql/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	stan "github.com/nats-io/stan.go"
)

// Publisher forwards rendered notifications to message brokers.
type Publisher interface {
	Publish(ctx context.Context, topic string, n Notification) error
	PublishForDrivers(ctx context.Context, topic string, n Notification, drivers []string) error
	Close() error
}

// PublisherFactory builds a Watermill publisher for one driver. The returned
// close func, when not nil, runs after the publisher itself is closed.
type PublisherFactory func(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error)

var publisherFactories = map[string]PublisherFactory{
	"gochannel": buildGoChannelPublisher,
	"http":      buildHTTPPublisher,
	"kafka":     buildKafkaPublisher,
	"nats":      buildNATSPublisher,
	"amqp":      buildAMQPPublisher,
	"sql":       buildSQLPublisher,
}

// RegisterPublisherDriver adds or replaces a driver factory.
func RegisterPublisherDriver(name string, factory PublisherFactory) {
	if name == "" || factory == nil {
		return
	}
	publisherFactories[strings.ToLower(name)] = factory
}

// errDriverConfig marks driver errors that retrying cannot fix.
var errDriverConfig = errors.New("invalid driver config")

func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errDriverConfig, fmt.Sprintf(format, args...))
}

var (
	driverInitAttempts = 5
	driverInitBackoff  = 2 * time.Second
)

// NewPublisher builds one publisher per configured driver. Drivers that fail
// to initialise are logged and skipped; an error is returned only when none
// could be built.
func NewPublisher(cfg WatermillConfig) (Publisher, error) {
	logger := watermill.NewStdLogger(false, false)

	drivers := cfg.Drivers
	if len(drivers) == 0 && cfg.Driver != "" {
		drivers = []string{cfg.Driver}
	}
	if len(drivers) == 0 {
		drivers = []string{"gochannel"}
	}

	mux := &publisherMux{publishers: make(map[string]Publisher, len(drivers))}
	for _, driver := range drivers {
		key := strings.ToLower(driver)
		if _, dup := mux.publishers[key]; dup {
			continue
		}
		pub, err := buildDriver(cfg, key, logger)
		if err != nil {
			logger.Error("publisher init failed, skipping driver", err, watermill.LogFields{"driver": key})
			continue
		}
		mux.publishers[key] = pub
		mux.defaultDrivers = append(mux.defaultDrivers, key)
	}
	if len(mux.publishers) == 0 {
		return nil, errors.New("no publishers available")
	}
	return mux, nil
}

// buildDriver is the only retry loop around driver construction. Config
// errors fail on the first attempt.
func buildDriver(cfg WatermillConfig, driver string, logger watermill.LoggerAdapter) (Publisher, error) {
	var err error
	for attempt := 1; attempt <= driverInitAttempts; attempt++ {
		var pub Publisher
		pub, err = buildDriverOnce(cfg, driver, logger)
		if err == nil {
			return pub, nil
		}
		if errors.Is(err, errDriverConfig) {
			return nil, err
		}
		if attempt < driverInitAttempts {
			logger.Info("publisher init retry", watermill.LogFields{"driver": driver, "attempt": attempt, "err": err.Error()})
			time.Sleep(driverInitBackoff)
		}
	}
	return nil, err
}

func buildDriverOnce(cfg WatermillConfig, driver string, logger watermill.LoggerAdapter) (Publisher, error) {
	if driver == "riverqueue" {
		pub, err := newRiverQueuePublisher(cfg.RiverQueue)
		if err != nil {
			return nil, err
		}
		return pub, nil
	}
	factory, ok := publisherFactories[driver]
	if !ok {
		return nil, configErrorf("unsupported watermill driver: %s", driver)
	}
	pub, closeFn, err := factory(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &watermillPublisher{publisher: pub, closeFn: closeFn}, nil
}

type watermillPublisher struct {
	publisher message.Publisher
	closeFn   func() error
}

// Publish sends n as JSON. Watermill publishers ignore contexts, so the call
// runs in its own goroutine and Publish returns when ctx is done even if the
// broker never answers.
func (w *watermillPublisher) Publish(ctx context.Context, topic string, n Notification) error {
	msg, err := notificationMessage(ctx, n)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- w.publisher.Publish(topic, msg)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", topic, ctx.Err())
	}
}

func notificationMessage(ctx context.Context, n Notification) (*message.Message, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("service", n.Service)
	msg.Metadata.Set("event", n.EventType)
	msg.Metadata.Set("repository", n.Repository)
	if n.RequestID != "" {
		msg.Metadata.Set("request_id", n.RequestID)
	}
	return msg, nil
}

func (w *watermillPublisher) PublishForDrivers(ctx context.Context, topic string, n Notification, drivers []string) error {
	return w.Publish(ctx, topic, n)
}

func (w *watermillPublisher) Close() error {
	if w.publisher == nil {
		return nil
	}
	err := w.publisher.Close()
	if w.closeFn != nil {
		err = errors.Join(err, w.closeFn())
	}
	return err
}

type publisherMux struct {
	publishers     map[string]Publisher
	defaultDrivers []string
}

func (m *publisherMux) Publish(ctx context.Context, topic string, n Notification) error {
	return m.PublishForDrivers(ctx, topic, n, nil)
}

// PublishForDrivers publishes to every named driver, or to all built drivers
// when none are named, and joins the failures.
func (m *publisherMux) PublishForDrivers(ctx context.Context, topic string, n Notification, drivers []string) error {
	if len(drivers) == 0 {
		drivers = m.defaultDrivers
	}

	var errs []error
	for _, driver := range drivers {
		pub, ok := m.publishers[strings.ToLower(driver)]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown driver %s", driver))
			continue
		}
		if err := pub.Publish(ctx, topic, n); err != nil {
			IncPublishError(driver)
			errs = append(errs, fmt.Errorf("%s: %w", driver, err))
		}
	}
	return errors.Join(errs...)
}

func (m *publisherMux) Close() error {
	var errs []error
	for _, pub := range m.publishers {
		errs = append(errs, pub.Close())
	}
	return errors.Join(errs...)
}

func buildGoChannelPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            cfg.GoChannel.OutputChannelBuffer,
		Persistent:                     cfg.GoChannel.Persistent,
		BlockPublishUntilSubscriberAck: cfg.GoChannel.BlockPublishUntilSubscriberAck,
	}, logger), nil, nil
}

func buildHTTPPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	// Validate once up front so a bad mode is a config error, not a
	// per-message failure.
	if _, err := httpTargetURL(cfg.HTTP, "topic"); err != nil {
		return nil, nil, configErrorf("%v", err)
	}
	pub, err := wmhttp.NewPublisher(wmhttp.PublisherConfig{
		MarshalMessageFunc: func(topic string, msg *message.Message) (*http.Request, error) {
			target, err := httpTargetURL(cfg.HTTP, topic)
			if err != nil {
				return nil, err
			}
			return wmhttp.DefaultMarshalMessageFunc(target, msg)
		},
	}, logger)
	return pub, nil, err
}

func buildKafkaPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil, configErrorf("kafka brokers are required")
	}
	pub, err := wmkafka.NewPublisher(cfg.Kafka.Brokers, wmkafka.DefaultMarshaler{}, nil, logger)
	return pub, nil, err
}

func buildNATSPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if cfg.NATS.ClusterID == "" || cfg.NATS.ClientID == "" {
		return nil, nil, configErrorf("nats cluster_id and client_id are required")
	}
	natsCfg := wmnats.StreamingPublisherConfig{
		ClusterID: cfg.NATS.ClusterID,
		ClientID:  cfg.NATS.ClientID,
		Marshaler: wmnats.GobMarshaler{},
	}
	if cfg.NATS.URL != "" {
		natsCfg.StanOptions = append(natsCfg.StanOptions, stan.NatsURL(cfg.NATS.URL))
	}
	pub, err := wmnats.NewStreamingPublisher(natsCfg, logger)
	return pub, nil, err
}

func buildAMQPPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if cfg.AMQP.URL == "" {
		return nil, nil, configErrorf("amqp url is required")
	}
	amqpCfg, err := amqpConfigFromMode(cfg.AMQP.URL, cfg.AMQP.Mode)
	if err != nil {
		return nil, nil, configErrorf("%v", err)
	}
	pub, err := wmamaqp.NewPublisher(amqpCfg, logger)
	return pub, nil, err
}

func buildSQLPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if cfg.SQL.Driver == "" || cfg.SQL.DSN == "" {
		return nil, nil, configErrorf("sql driver and dsn are required")
	}
	schema, err := sqlSchemaAdapter(cfg.SQL.Dialect)
	if err != nil {
		return nil, nil, configErrorf("%v", err)
	}
	db, err := sql.Open(cfg.SQL.Driver, cfg.SQL.DSN)
	if err != nil {
		return nil, nil, configErrorf("%v", err)
	}
	pub, err := wmsql.NewPublisher(db, wmsql.PublisherConfig{
		SchemaAdapter:        schema,
		AutoInitializeSchema: cfg.SQL.AutoInitializeSchema || cfg.SQL.InitializeSchema,
	}, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return pub, db.Close, nil
}

func amqpConfigFromMode(url, mode string) (wmamaqp.Config, error) {
	switch strings.ToLower(mode) {
	case "", "durable_queue":
		return wmamaqp.NewDurableQueueConfig(url), nil
	case "nondurable_queue":
		return wmamaqp.NewNonDurableQueueConfig(url), nil
	case "durable_pubsub":
		return wmamaqp.NewDurablePubSubConfig(url, nil), nil
	case "nondurable_pubsub":
		return wmamaqp.NewNonDurablePubSubConfig(url, nil), nil
	}
	return wmamaqp.Config{}, fmt.Errorf("unsupported amqp mode: %s", mode)
}

func sqlSchemaAdapter(dialect string) (wmsql.SchemaAdapter, error) {
	switch strings.ToLower(dialect) {
	case "postgres", "postgresql":
		return wmsql.DefaultPostgreSQLSchema{}, nil
	case "mysql":
		return wmsql.DefaultMySQLSchema{}, nil
	}
	return nil, fmt.Errorf("unsupported sql dialect: %s", dialect)
}

// httpTargetURL maps a topic to a URL: the topic itself in topic_url mode,
// or a path under base_url.
func httpTargetURL(cfg HTTPConfig, topic string) (string, error) {
	switch strings.ToLower(cfg.Mode) {
	case "topic_url":
		if topic == "" {
			return "", fmt.Errorf("http topic url is empty")
		}
		return topic, nil
	case "base_url":
		if cfg.BaseURL == "" {
			return "", fmt.Errorf("http base_url is empty")
		}
		base := strings.TrimRight(cfg.BaseURL, "/")
		if topic == "" {
			return base, nil
		}
		return base + "/" + strings.TrimLeft(topic, "/"), nil
	}
	return "", fmt.Errorf("unsupported http mode: %s", cfg.Mode)
}
