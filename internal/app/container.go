package app

import (
	"context"
	"errors"
	"fmt"

	"fulfillment/internal/config"
	"fulfillment/internal/events"
	"fulfillment/internal/notify"
	"fulfillment/internal/platform/kafka"
	"fulfillment/internal/platform/observability"
	"fulfillment/internal/stock"
	"fulfillment/internal/storage"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Option customizes a Container.
type Option func(*Container)

// WithMemoryBroker makes the container use b instead of creating its own, so
// several services can share one in-process broker.
func WithMemoryBroker(b *kafka.MemoryBroker) Option {
	return func(c *Container) { c.memoryBroker = b }
}

// WithLogger replaces the OpenTelemetry-bridged logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Container) { c.logger = l }
}

// Container holds expensive-to-create singleton resources and dependencies
type Container struct {
	config            *config.Config
	logger            *zap.Logger
	tracer            observability.Tracer
	memoryBroker      *kafka.MemoryBroker
	messageProducer   kafka.Producer
	messageConsumers  []kafka.Consumer
	db                *storage.DB
	redisClient       *redis.Client
	amqpConn          *amqp.Connection
	amqpChannel       *amqp.Channel
	otelLogShutdown   func(context.Context) error
	otelTraceShutdown func(context.Context) error
}

// NewContainer creates and initializes all infrastructure components
func NewContainer(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	container := &Container{config: cfg}
	for _, opt := range opts {
		opt(container)
	}

	if err := container.setupObservability(ctx); err != nil {
		return nil, err
	}

	if err := container.setupMessaging(); err != nil {
		container.Shutdown(ctx)
		return nil, err
	}

	db, err := storage.Open(ctx, cfg.DBPath)
	if err != nil {
		container.Shutdown(ctx)
		return nil, err
	}
	container.db = db

	return container, nil
}

// setupObservability configures OpenTelemetry logging and tracing
func (c *Container) setupObservability(ctx context.Context) error {
	bootstrap, err := zap.NewProduction()
	if err != nil {
		return err
	}

	otelLogShutdown, err := observability.SetupLoggingSDK(ctx, c.config)
	if err != nil {
		bootstrap.Error("Failed to setup OpenTelemetry logging", zap.Error(err))
	}
	c.otelLogShutdown = otelLogShutdown

	otelTraceShutdown, err := observability.SetupTracingSDK(ctx, c.config)
	if err != nil {
		bootstrap.Error("Failed to setup OpenTelemetry tracing", zap.Error(err))
	}
	c.otelTraceShutdown = otelTraceShutdown

	if c.logger == nil {
		c.logger = observability.NewLogger(c.config.ServiceName)
		c.logger.Info("Logger re-initialized with OpenTelemetry bridge")
	}
	c.tracer = otel.Tracer(c.config.ServiceName)
	return nil
}

func (c *Container) setupMessaging() error {
	if c.config.Broker == config.BrokerMemory {
		if c.memoryBroker == nil {
			c.memoryBroker = kafka.NewMemoryBroker()
		}
		c.messageProducer = c.memoryBroker.Writer()
		return nil
	}

	writer, err := kafka.NewTracedWriter(kafka.WriterConfig{
		Broker:       c.config.KafkaBroker,
		ClientID:     c.config.ServiceName,
		BatchTimeout: config.BatchTimeout,
		BatchSize:    config.BatchSize,
	}, otel.GetTracerProvider())
	if err != nil {
		return fmt.Errorf("create kafka writer: %w", err)
	}
	c.messageProducer = writer
	return nil
}

// NewConsumer subscribes to topic. The container closes it on shutdown.
func (c *Container) NewConsumer(topic, groupID string) (kafka.Consumer, error) {
	var consumer kafka.Consumer
	if c.memoryBroker != nil {
		consumer = c.memoryBroker.Reader(topic)
	} else {
		reader, err := kafka.NewTracedReader(kafka.ReaderConfig{
			Broker:  c.config.KafkaBroker,
			Topic:   topic,
			GroupID: groupID,
		})
		if err != nil {
			return nil, fmt.Errorf("create kafka reader for %s: %w", topic, err)
		}
		consumer = reader
	}
	c.messageConsumers = append(c.messageConsumers, consumer)
	return consumer, nil
}

// StockLedger returns the ledger selected by STOCK_BACKEND.
func (c *Container) StockLedger(ctx context.Context) (stock.Ledger, error) {
	switch c.config.StockBackend {
	case config.StockBackendMemory:
		return stock.NewMemoryLedger(), nil
	case config.StockBackendRedis:
		client := redis.NewClient(&redis.Options{Addr: c.config.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", c.config.RedisAddr, err)
		}
		c.redisClient = client
		return stock.NewRedisLedger(client), nil
	default:
		return c.db.Stock(), nil
	}
}

// NotificationTransport returns the transport selected by NOTIFY_TRANSPORT.
func (c *Container) NotificationTransport() (notify.Transport, error) {
	if c.config.NotifyTransport != config.NotifyRabbitMQ {
		return notify.NewKafkaTransport(events.NewPublisher(c.messageProducer, c.logger)), nil
	}
	conn, ch, err := notify.SetupConn(c.config.RabbitMQURL, c.logger)
	if err != nil {
		return nil, err
	}
	c.amqpConn, c.amqpChannel = conn, ch
	return notify.NewRabbitMQTransport(ch), nil
}

// Shutdown gracefully shuts down all infrastructure components
func (c *Container) Shutdown(ctx context.Context) {
	c.logger.Info("Shutting down infrastructure...")

	var errs []error
	for _, consumer := range c.messageConsumers {
		if err := consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close consumer: %w", err))
		}
	}
	if c.messageProducer != nil {
		if err := c.messageProducer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close producer: %w", err))
		}
	}
	if c.amqpChannel != nil {
		errs = append(errs, c.amqpChannel.Close())
	}
	if c.amqpConn != nil {
		errs = append(errs, c.amqpConn.Close())
	}
	if c.redisClient != nil {
		errs = append(errs, c.redisClient.Close())
	}
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	if c.otelTraceShutdown != nil {
		errs = append(errs, c.otelTraceShutdown(ctx))
	}
	if c.otelLogShutdown != nil {
		errs = append(errs, c.otelLogShutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		c.logger.Error("Infrastructure shutdown finished with errors", zap.Error(err))
	}

	// stdout sync fails on some terminals; nothing useful to do about it
	_ = c.logger.Sync()
	c.logger.Info("Infrastructure shutdown complete")
}

// Getters for accessing infrastructure components
func (c *Container) Config() *config.Config          { return c.config }
func (c *Container) Logger() observability.Logger    { return c.logger }
func (c *Container) Tracer() observability.Tracer    { return c.tracer }
func (c *Container) MessageProducer() kafka.Producer { return c.messageProducer }
func (c *Container) DB() *storage.DB                 { return c.db }
