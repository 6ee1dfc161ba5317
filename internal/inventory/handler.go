package inventory

import (
	"context"
	"encoding/json"

	"fulfillment/internal/events"
	"fulfillment/internal/platform/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// OutcomePublisher publishes reservation outcomes to the order service.
type OutcomePublisher interface {
	PublishInventoryOutcome(ctx context.Context, ev events.InventoryEvent) error
}

// MessageHandler handles order-created messages for the inventory service.
type MessageHandler struct {
	service   *Service
	publisher OutcomePublisher
	logger    observability.Logger
}

func NewMessageHandler(service *Service, publisher OutcomePublisher, logger observability.Logger) *MessageHandler {
	return &MessageHandler{
		service:   service,
		publisher: publisher,
		logger:    logger,
	}
}

// HandleOrderCreated processes a message from the order-created channel: an
// ORDER_CREATED is answered with its reservation outcome, a STOCK_RELEASE
// returns the units and is not answered.
func (h *MessageHandler) HandleOrderCreated(ctx context.Context, msg kafkago.Message) error {
	msgCtx := events.ExtractTraceContext(ctx, msg.Headers)

	h.logger.Info("📨 Raw Kafka message received",
		zap.ByteString("key", msg.Key),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	var order events.OrderEvent
	if err := json.Unmarshal(msg.Value, &order); err != nil {
		h.logger.Error("❌ Invalid JSON in OrderCreated event",
			zap.Error(err),
			zap.ByteString("raw_value", msg.Value),
		)
		return err
	}

	if order.Type == events.TypeStockRelease {
		return h.service.Release(msgCtx, order.SKU, order.Quantity)
	}

	outcome := h.service.ProcessOrderCreated(msgCtx, order)
	if outcome == nil {
		return nil
	}

	h.logger.Info("✅ Reservation outcome", zap.String("order_id", outcome.OrderID), zap.String("type", outcome.Type))
	return h.publisher.PublishInventoryOutcome(msgCtx, *outcome)
}
