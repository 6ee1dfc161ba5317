// Package breaker guards synchronous calls to other services. A tripped
// breaker answers with the fallback value false without making the call.
package breaker

import (
	"context"
	"errors"

	"fulfillment/internal/config"
	"fulfillment/internal/platform/observability"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Breaker wraps a gobreaker circuit breaker around boolean remote calls.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker[bool]
	cfg    config.BreakerConfig
	logger observability.Logger
}

// New builds a breaker that opens on cfg.ConsecutiveFailures failures in a row,
// or when at least cfg.MinRequests calls inside cfg.Window failed at
// cfg.FailureRatio or worse. After cfg.CoolDown a single trial call is let through.
func New(name string, cfg config.BreakerConfig, logger observability.Logger) *Breaker {
	b := &Breaker{cfg: cfg, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Window,
		Timeout:     cfg.CoolDown,
		ReadyToTrip: b.readyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("⚡ Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return b
}

func (b *Breaker) readyToTrip(counts gobreaker.Counts) bool {
	if b.cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= b.cfg.ConsecutiveFailures {
		return true
	}
	if b.cfg.MinRequests == 0 || counts.Requests < b.cfg.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= b.cfg.FailureRatio
}

// Call runs fn under the per-call timeout. Errors, timeouts and rejections by an
// open or probing breaker all yield false. A false result returned without an
// error is a business answer and does not count against the breaker.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) (bool, error)) bool {
	ok, err := b.cb.Execute(func() (bool, error) {
		callCtx := ctx
		if b.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, b.cfg.CallTimeout)
			defer cancel()
		}
		return fn(callCtx)
	})
	if err == nil {
		return ok
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.logger.Warn("🚫 Call short-circuited, using fallback",
			zap.String("breaker", b.cb.Name()),
			zap.Error(err),
		)
	} else {
		b.logger.Error("❌ Guarded call failed, using fallback",
			zap.String("breaker", b.cb.Name()),
			zap.Error(err),
		)
	}
	return false
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
