package notify

import (
	"context"

	"fulfillment/internal/config"
)

// EventPublisher is satisfied by events.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

// KafkaTransport writes each notification as a JSON string to the
// notification topic.
type KafkaTransport struct {
	publisher EventPublisher
}

func NewKafkaTransport(publisher EventPublisher) *KafkaTransport {
	return &KafkaTransport{publisher: publisher}
}

func (t *KafkaTransport) Deliver(ctx context.Context, message string) error {
	return t.publisher.Publish(ctx, config.NotificationTopic, "", message)
}
