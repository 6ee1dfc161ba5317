package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"fulfillment/internal/platform/observability"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	TypeWallet = "wallet"
	TypePayPal = "paypal"
	TypeStripe = "stripe"
)

// Processor charges an account through one payment backend. A decline is
// (false, nil); an error means the backend could not be asked.
type Processor interface {
	ProcessPayment(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error)
}

// ProcessorFunc adapts a plain function to Processor.
type ProcessorFunc func(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error)

func (f ProcessorFunc) ProcessPayment(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error) {
	return f(ctx, accountID, amount)
}

// Registry maps a case-insensitive payment type to its processor.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
}

func NewRegistry() *Registry {
	return &Registry{processors: make(map[string]Processor)}
}

func (r *Registry) Register(paymentType string, p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[strings.ToLower(paymentType)] = p
}

func (r *Registry) Lookup(paymentType string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[strings.ToLower(paymentType)]
	return p, ok
}

// WalletProcessor pays from the customer's stored balance.
type WalletProcessor struct {
	wallets WalletStore
	logger  observability.Logger
}

func NewWalletProcessor(wallets WalletStore, logger observability.Logger) *WalletProcessor {
	return &WalletProcessor{wallets: wallets, logger: logger}
}

func (p *WalletProcessor) ProcessPayment(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error) {
	err := p.wallets.Debit(ctx, accountID, amount)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrWalletNotFound), errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInvalidAmount):
		p.logger.Warn("👛 Wallet payment declined",
			zap.String("account", accountID),
			zap.String("amount", amount.String()),
			zap.Error(err),
		)
		return false, nil
	default:
		return false, fmt.Errorf("debit wallet %s: %w", accountID, err)
	}
}

// PayPalAdapter stands in for the PayPal API.
type PayPalAdapter struct {
	logger observability.Logger
}

func NewPayPalAdapter(logger observability.Logger) *PayPalAdapter {
	return &PayPalAdapter{logger: logger}
}

func (a *PayPalAdapter) ProcessPayment(_ context.Context, accountID string, amount decimal.Decimal) (bool, error) {
	a.logger.Info("Processing via PayPal", zap.String("account", accountID), zap.String("amount", amount.String()))
	return amount.IsPositive(), nil
}

// StripeAdapter stands in for the Stripe charges API.
type StripeAdapter struct {
	logger observability.Logger
}

func NewStripeAdapter(logger observability.Logger) *StripeAdapter {
	return &StripeAdapter{logger: logger}
}

func (a *StripeAdapter) ProcessPayment(_ context.Context, accountID string, amount decimal.Decimal) (bool, error) {
	a.logger.Info("Processing via Stripe", zap.String("card", accountID), zap.String("amount", amount.String()))
	return amount.IsPositive(), nil
}
