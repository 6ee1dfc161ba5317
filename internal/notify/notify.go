// Package notify delivers customer notifications over a one-way side channel.
// Senders never learn whether delivery worked.
package notify

import (
	"context"
	"sync"
	"time"

	"fulfillment/internal/platform/observability"

	"go.uber.org/zap"
)

const deliveryTimeout = 5 * time.Second

// Transport delivers one notification.
type Transport interface {
	Deliver(ctx context.Context, message string) error
}

// Sink hands notifications to a Transport in the background. Delivery errors
// are logged and dropped.
type Sink struct {
	transport Transport
	logger    observability.Logger
	wg        sync.WaitGroup
}

func NewSink(transport Transport, logger observability.Logger) *Sink {
	return &Sink{transport: transport, logger: logger}
}

// Send returns immediately. The delivery outlives the caller's context
// cancellation but not deliveryTimeout.
func (s *Sink) Send(ctx context.Context, message string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("❌ Notification transport panicked", zap.Any("panic", r))
			}
		}()

		deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()

		if err := s.transport.Deliver(deliverCtx, message); err != nil {
			s.logger.Warn("📭 Notification dropped", zap.String("message", message), zap.Error(err))
			return
		}
		s.logger.Info("📬 Notification sent", zap.String("message", message))
	}()
}

// Wait blocks until every delivery started so far has finished.
func (s *Sink) Wait() {
	s.wg.Wait()
}
