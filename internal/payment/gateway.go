package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fulfillment/internal/platform/observability"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Gateway is the single entry point for payments. Callers name a payment type;
// the registry decides which backend handles it.
type Gateway struct {
	registry *Registry
	wallets  WalletStore
	records  RecordStore
	logger   observability.Logger
	tracer   observability.Tracer
	now      func() time.Time
}

// NewGateway wires the wallet processor and the two simulated card backends
// into a fresh registry. More backends can be added through Registry().
func NewGateway(wallets WalletStore, records RecordStore, logger observability.Logger, tracer observability.Tracer) *Gateway {
	registry := NewRegistry()
	registry.Register(TypeWallet, NewWalletProcessor(wallets, logger))
	registry.Register(TypePayPal, NewPayPalAdapter(logger))
	registry.Register(TypeStripe, NewStripeAdapter(logger))

	return &Gateway{
		registry: registry,
		wallets:  wallets,
		records:  records,
		logger:   logger,
		tracer:   tracer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Pay charges amount to accountID with the backend registered for paymentType.
// Unknown types, declines and backend errors all return false. Every attempt
// is appended to the audit log.
func (g *Gateway) Pay(ctx context.Context, paymentType, accountID string, amount decimal.Decimal) bool {
	ctx, span := g.tracer.Start(ctx, "payment_process")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.type", paymentType),
		attribute.String("payment.account", accountID),
		attribute.String("payment.amount", amount.String()),
	)

	success := false
	processor, ok := g.registry.Lookup(paymentType)
	switch {
	case !ok:
		g.logger.Warn("Unknown payment type", zap.String("type", paymentType))
	case !amount.IsPositive():
		g.logger.Warn("Rejecting non-positive payment amount", zap.String("amount", amount.String()))
	default:
		var err error
		success, err = processor.ProcessPayment(ctx, accountID, amount)
		if err != nil {
			span.RecordError(err)
			g.logger.Error("❌ Payment backend failed", zap.String("type", paymentType), zap.Error(err))
			success = false
		}
	}

	account := accountID
	if success && strings.EqualFold(paymentType, TypeWallet) {
		account = "Wallet-" + accountID
	}
	record := Record{
		ID:        uuid.NewString(),
		Type:      paymentType,
		AccountID: account,
		Amount:    amount,
		Success:   success,
		Timestamp: g.now(),
	}
	if err := g.records.Append(ctx, record); err != nil {
		g.logger.Error("❌ Failed to append payment record", zap.String("record_id", record.ID), zap.Error(err))
	}

	span.SetAttributes(attribute.Bool("payment.success", success))
	if success {
		span.SetStatus(codes.Ok, "payment captured")
		g.logger.Info("💳 Payment captured", zap.String("type", paymentType), zap.String("account", accountID))
	}
	return success
}

func (g *Gateway) History(ctx context.Context) ([]Record, error) {
	return g.records.List(ctx)
}

func (g *Gateway) CreateWallet(ctx context.Context, username string, initial decimal.Decimal) (Wallet, error) {
	if username == "" || initial.IsNegative() {
		return Wallet{}, ErrInvalidAmount
	}
	w, err := g.wallets.CreateWallet(ctx, username, initial)
	if err != nil {
		return Wallet{}, fmt.Errorf("create wallet %s: %w", username, err)
	}
	return w, nil
}

// Balance is zero for customers without a wallet.
func (g *Gateway) Balance(ctx context.Context, username string) (decimal.Decimal, error) {
	w, err := g.wallets.GetWallet(ctx, username)
	if errors.Is(err, ErrWalletNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

func (g *Gateway) AddFunds(ctx context.Context, username string, amount decimal.Decimal) (Wallet, error) {
	if username == "" {
		return Wallet{}, ErrInvalidAmount
	}
	return g.wallets.Credit(ctx, username, amount)
}
