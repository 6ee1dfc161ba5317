// Package orchestrator makes the synchronous calls from the order service to
// inventory and payment, each behind its own circuit breaker.
package orchestrator

import (
	"context"

	"fulfillment/internal/breaker"
	"fulfillment/internal/platform/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type Orchestrator struct {
	inventory        InventoryClient
	payment          PaymentClient
	inventoryBreaker *breaker.Breaker
	paymentBreaker   *breaker.Breaker
	logger           observability.Logger
	tracer           observability.Tracer
}

func New(inventory InventoryClient, payment PaymentClient, inventoryBreaker, paymentBreaker *breaker.Breaker,
	logger observability.Logger, tracer observability.Tracer) *Orchestrator {
	return &Orchestrator{
		inventory:        inventory,
		payment:          payment,
		inventoryBreaker: inventoryBreaker,
		paymentBreaker:   paymentBreaker,
		logger:           logger,
		tracer:           tracer,
	}
}

// ReserveStock reports whether the inventory service reserved qty units of sku.
// An unavailable inventory service reads as false.
func (o *Orchestrator) ReserveStock(ctx context.Context, sku string, qty int) bool {
	ctx, span := o.tracer.Start(ctx, "orchestrator.reserve_stock")
	defer span.End()
	span.SetAttributes(attribute.String("inventory.sku", sku), attribute.Int("inventory.quantity", qty))

	ok := o.inventoryBreaker.Call(ctx, func(ctx context.Context) (bool, error) {
		return o.inventory.CheckStock(ctx, sku, qty)
	})
	span.SetAttributes(attribute.Bool("inventory.reserved", ok))
	o.logger.Info("📦 Stock reservation answered", zap.String("sku", sku), zap.Int("quantity", qty), zap.Bool("reserved", ok))
	return ok
}

// ProcessPayment reports whether the payment service captured the amount.
// An unavailable payment service reads as false.
func (o *Orchestrator) ProcessPayment(ctx context.Context, paymentType, accountID string, amount decimal.Decimal) bool {
	ctx, span := o.tracer.Start(ctx, "orchestrator.process_payment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.type", paymentType), attribute.String("payment.amount", amount.String()))

	ok := o.paymentBreaker.Call(ctx, func(ctx context.Context) (bool, error) {
		return o.payment.Pay(ctx, paymentType, accountID, amount)
	})
	span.SetAttributes(attribute.Bool("payment.success", ok))
	o.logger.Info("💳 Payment answered", zap.String("type", paymentType), zap.String("account", accountID), zap.Bool("success", ok))
	return ok
}
