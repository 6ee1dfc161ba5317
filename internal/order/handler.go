package order

import (
	"context"
	"encoding/json"

	"fulfillment/internal/events"
	"fulfillment/internal/platform/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler applies inventory-outcome messages to orders.
type MessageHandler struct {
	service *Service
	logger  observability.Logger
}

func NewMessageHandler(service *Service, logger observability.Logger) *MessageHandler {
	return &MessageHandler{service: service, logger: logger}
}

// HandleInventoryOutcome processes a STOCK_RESERVED or OUT_OF_STOCK message from Kafka
func (h *MessageHandler) HandleInventoryOutcome(ctx context.Context, msg kafkago.Message) error {
	msgCtx := events.ExtractTraceContext(ctx, msg.Headers)

	h.logger.Info("📨 Raw Kafka message received",
		zap.ByteString("key", msg.Key),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	var ev events.InventoryEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		h.logger.Error("❌ Invalid JSON in inventory outcome event",
			zap.Error(err),
			zap.ByteString("raw_value", msg.Value),
		)
		return err
	}

	return h.service.HandleInventoryEvent(msgCtx, ev)
}
