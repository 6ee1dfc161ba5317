package events

import (
	"context"
	"encoding/json"
	"fmt"

	"fulfillment/internal/config"
	"fulfillment/internal/platform/kafka"
	"fulfillment/internal/platform/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// Publisher serializes events and writes them keyed by order id.
type Publisher struct {
	producer kafka.Producer
	logger   observability.Logger
}

func NewPublisher(producer kafka.Producer, logger observability.Logger) *Publisher {
	return &Publisher{producer: producer, logger: logger}
}

// Publish writes payload as JSON to topic. The key decides the partition, so all
// events of one order keep their publish order.
func (p *Publisher) Publish(ctx context.Context, topic, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("❌ Failed to serialize event",
			zap.Error(err),
			zap.String("topic", topic),
			zap.String("key", key),
		)
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	msg := kafkago.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: injectTraceContext(ctx),
	}

	if err := p.producer.WriteMessage(ctx, msg); err != nil {
		p.logger.Error("❌ Failed to publish event",
			zap.Error(err),
			zap.String("topic", topic),
			zap.String("key", key),
		)
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.Info("📤 Sent event", zap.String("topic", topic), zap.String("key", key))
	return nil
}

func (p *Publisher) PublishOrderCreated(ctx context.Context, ev OrderEvent) error {
	return p.Publish(ctx, config.OrderCreatedTopic, ev.OrderID, ev)
}

// PublishStockRelease shares the order-created channel and key, so a release is
// never consumed ahead of the ORDER_CREATED it compensates.
func (p *Publisher) PublishStockRelease(ctx context.Context, ev OrderEvent) error {
	ev.Type = TypeStockRelease
	return p.Publish(ctx, config.OrderCreatedTopic, ev.OrderID, ev)
}

func (p *Publisher) PublishInventoryOutcome(ctx context.Context, ev InventoryEvent) error {
	return p.Publish(ctx, config.InventoryOutcomeTopic, ev.OrderID, ev)
}

// injectTraceContext carries the current span into message headers. The traced
// Kafka writer does the same; this keeps the in-memory broker traceable too.
func injectTraceContext(ctx context.Context) []kafkago.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		return nil
	}
	headers := make([]kafkago.Header, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	return headers
}

// ExtractTraceContext extracts OpenTelemetry trace context from Kafka message headers
func ExtractTraceContext(ctx context.Context, headers []kafkago.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, header := range headers {
		carrier[header.Key] = string(header.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
