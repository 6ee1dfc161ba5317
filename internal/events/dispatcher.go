package events

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"sync"
	"time"

	"fulfillment/internal/platform/kafka"
	"fulfillment/internal/platform/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler processes one message. Returned errors are logged; the message is not retried.
type Handler func(ctx context.Context, msg kafkago.Message) error

const (
	workerBuffer = 64
	readBackoff  = 500 * time.Millisecond
	drainTimeout = 10 * time.Second
)

// Dispatcher reads a consumer and fans messages out to a fixed set of workers.
// The worker is chosen by hashing the message key, so messages sharing a key are
// handled one at a time and in the order they were read.
type Dispatcher struct {
	name     string
	consumer kafka.Consumer
	handler  Handler
	workers  int
	logger   observability.Logger

	drainTimeout time.Duration
}

func NewDispatcher(name string, consumer kafka.Consumer, handler Handler, workers int, logger observability.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		name:     name,
		consumer: consumer,
		handler:  handler,
		workers:  workers,
		logger:   logger,

		drainTimeout: drainTimeout,
	}
}

// Start blocks until ctx is cancelled or the consumer is closed, then drains
// every message already read. Handlers run on a context that outlives ctx and
// is only cancelled if the drain exceeds drainTimeout.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("Consumer started. Waiting for messages...", zap.String("consumer", d.name))

	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	queues := make([]chan kafkago.Message, d.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan kafkago.Message, workerBuffer)
		wg.Add(1)
		go func(q <-chan kafkago.Message) {
			defer wg.Done()
			for msg := range q {
				d.handle(workCtx, msg)
			}
		}(queues[i])
	}

	defer func() {
		pending := 0
		for _, q := range queues {
			pending += len(q)
			close(q)
		}
		d.logger.Info("Draining consumer", zap.String("consumer", d.name), zap.Int("pending", pending))
		timer := time.AfterFunc(d.drainTimeout, func() {
			d.logger.Warn("Drain timed out, cancelling handlers", zap.String("consumer", d.name))
			cancelWork()
		})
		wg.Wait()
		timer.Stop()
		d.logger.Info("Consumer finished", zap.String("consumer", d.name))
	}()

	for {
		msg, err := d.consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				d.logger.Info("Context done, exiting read loop.", zap.String("consumer", d.name), zap.Error(err))
				return nil
			}
			d.logger.Error("❌ Error reading message", zap.String("consumer", d.name), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readBackoff):
			}
			continue
		}

		select {
		case queues[d.partition(msg.Key)] <- *msg:
		case <-ctx.Done():
			return nil
		}
	}
}

func (d *Dispatcher) partition(key []byte) int {
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(d.workers))
}

func (d *Dispatcher) handle(ctx context.Context, msg kafkago.Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("❌ Handler panicked",
				zap.String("consumer", d.name),
				zap.ByteString("key", msg.Key),
				zap.Any("panic", r),
			)
		}
	}()

	if err := d.handler(ctx, msg); err != nil {
		d.logger.Error("❌ Failed to handle message",
			zap.String("consumer", d.name),
			zap.ByteString("key", msg.Key),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
	}
}
