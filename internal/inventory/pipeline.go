package inventory

import (
	"context"
	"errors"
	"fmt"

	"fulfillment/internal/platform/observability"
	"fulfillment/internal/stock"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Reservation is the request every check in the pipeline sees.
type Reservation struct {
	SKU      string
	Quantity int

	reserved bool
}

// Reserved reports whether stock has already been taken for this request.
func (r *Reservation) Reserved() bool { return r.reserved }

// Check is one validation step. Returning false rejects the reservation and
// stops the pipeline; an error means the check could not be evaluated.
type Check interface {
	Name() string
	Check(ctx context.Context, r *Reservation) (bool, error)
}

// Pipeline runs its checks in order. Reaching the end means every check passed.
// If a check rejects after stock was taken, the stock is released again.
type Pipeline struct {
	ledger stock.Ledger
	checks []Check
	logger observability.Logger
	tracer observability.Tracer
}

func NewPipeline(ledger stock.Ledger, logger observability.Logger, tracer observability.Tracer, checks ...Check) *Pipeline {
	return &Pipeline{
		ledger: ledger,
		checks: checks,
		logger: logger,
		tracer: tracer,
	}
}

// Validate runs the checks for (sku, qty).
func (p *Pipeline) Validate(ctx context.Context, sku string, qty int) (bool, error) {
	ctx, span := p.tracer.Start(ctx, "inventory_validate")
	defer span.End()
	span.SetAttributes(
		attribute.String("inventory.sku", sku),
		attribute.Int("inventory.quantity", qty),
	)

	r := &Reservation{SKU: sku, Quantity: qty}
	for _, c := range p.checks {
		ok, err := c.Check(ctx, r)
		if err == nil && ok {
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, c.Name()+" failed")
			p.logger.Error("❌ Validation check errored",
				zap.String("check", c.Name()),
				zap.String("sku", sku),
				zap.Error(err),
			)
		} else {
			p.logger.Info("Validation rejected",
				zap.String("check", c.Name()),
				zap.String("sku", sku),
				zap.Int("quantity", qty),
			)
		}
		if rbErr := p.rollback(ctx, r); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		span.SetAttributes(attribute.String("inventory.rejected_by", c.Name()))
		return false, err
	}

	span.SetAttributes(attribute.Bool("inventory.reserved", r.reserved))
	span.SetStatus(codes.Ok, "all checks passed")
	return true, nil
}

func (p *Pipeline) rollback(ctx context.Context, r *Reservation) error {
	if !r.reserved {
		return nil
	}
	if err := p.ledger.Release(ctx, r.SKU, r.Quantity); err != nil {
		p.logger.Error("❌ Failed to release stock after rejection",
			zap.String("sku", r.SKU),
			zap.Int("quantity", r.Quantity),
			zap.Error(err),
		)
		return fmt.Errorf("release %s: %w", r.SKU, err)
	}
	r.reserved = false
	p.logger.Info("↩️ Released stock after later check rejected",
		zap.String("sku", r.SKU),
		zap.Int("quantity", r.Quantity),
	)
	return nil
}
