package notify

import (
	"context"
	"fmt"
	"time"

	"fulfillment/internal/platform/observability"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	ExchangeName = "notifications"
	ExchangeType = "fanout"
)

// Publisher is the part of *amqp.Channel the transport uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQTransport publishes notifications to a fanout exchange.
type RabbitMQTransport struct {
	ch Publisher
}

func NewRabbitMQTransport(ch Publisher) *RabbitMQTransport {
	return &RabbitMQTransport{ch: ch}
}

func (t *RabbitMQTransport) Deliver(ctx context.Context, message string) error {
	return t.ch.PublishWithContext(ctx,
		ExchangeName, // exchange
		"",           // routing key, ignored by fanout
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "text/plain",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         []byte(message),
		},
	)
}

// SetupConn connects to RabbitMQ, retrying while the broker starts, and
// declares the notification exchange.
func SetupConn(url string, logger observability.Logger) (*amqp.Connection, *amqp.Channel, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to RabbitMQ", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}

	return conn, ch, nil
}
