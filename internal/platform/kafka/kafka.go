package kafka

import (
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ReaderConfig describes one consumer-group subscription.
type ReaderConfig struct {
	Broker  string
	Topic   string
	GroupID string
}

// NewTracedReader creates a consumer-group reader wrapped with OpenTelemetry instrumentation.
func NewTracedReader(cfg ReaderConfig) (Consumer, error) {
	baseReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{cfg.Broker},
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
	reader, err := otelkafka.NewReader(baseReader)
	if err != nil {
		return nil, err
	}
	return reader, nil
}

// WriterConfig describes a producer shared by every topic a service publishes to.
type WriterConfig struct {
	Broker       string
	ClientID     string
	BatchTimeout time.Duration
	BatchSize    int
}

// NewTracedWriter creates a writer that routes by Message.Topic and partitions by
// Message.Key, so every event of one order lands on the same partition.
func NewTracedWriter(cfg WriterConfig, tp trace.TracerProvider) (Producer, error) {
	baseWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Broker),
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		BatchSize:    cfg.BatchSize,
	}

	opts := []otelkafka.Option{
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingSystemKafka,
				attribute.String("messaging.kafka.client_id", cfg.ClientID),
			},
		),
	}
	if tp != nil {
		opts = append(opts, otelkafka.WithTracerProvider(tp))
	}

	writer, err := otelkafka.NewWriter(baseWriter, opts...)
	if err != nil {
		return nil, err
	}
	return writer, nil
}
