package inventory

import (
	"context"
	"errors"

	"fulfillment/internal/stock"
)

// AvailabilityCheck takes the stock as its side effect, so a request that
// passes it has already been reserved.
type AvailabilityCheck struct {
	ledger stock.Ledger
}

func NewAvailabilityCheck(ledger stock.Ledger) *AvailabilityCheck {
	return &AvailabilityCheck{ledger: ledger}
}

func (c *AvailabilityCheck) Name() string { return "availability" }

func (c *AvailabilityCheck) Check(ctx context.Context, r *Reservation) (bool, error) {
	err := c.ledger.Reserve(ctx, r.SKU, r.Quantity)
	switch {
	case err == nil:
		r.reserved = true
		return true, nil
	case errors.Is(err, stock.ErrSKUNotFound),
		errors.Is(err, stock.ErrInsufficientStock),
		errors.Is(err, stock.ErrInvalidQuantity):
		return false, nil
	default:
		return false, err
	}
}

// QualityCheck rejects SKUs flagged as damaged or quarantined.
type QualityCheck struct {
	quarantined map[string]struct{}
}

func NewQualityCheck(quarantined ...string) *QualityCheck {
	set := make(map[string]struct{}, len(quarantined))
	for _, sku := range quarantined {
		set[sku] = struct{}{}
	}
	return &QualityCheck{quarantined: set}
}

func (c *QualityCheck) Name() string { return "quality" }

func (c *QualityCheck) Check(_ context.Context, r *Reservation) (bool, error) {
	_, bad := c.quarantined[r.SKU]
	return !bad, nil
}

// QuantityLimitCheck caps the units a single order may reserve. Zero disables it.
type QuantityLimitCheck struct {
	max int
}

func NewQuantityLimitCheck(max int) *QuantityLimitCheck {
	return &QuantityLimitCheck{max: max}
}

func (c *QuantityLimitCheck) Name() string { return "quantity_limit" }

func (c *QuantityLimitCheck) Check(_ context.Context, r *Reservation) (bool, error) {
	if r.Quantity <= 0 {
		return false, nil
	}
	return c.max == 0 || r.Quantity <= c.max, nil
}

// DefaultChecks is the production chain: cheap rules first, then the reserving
// availability check, then rules that may still veto a reserved request.
func DefaultChecks(ledger stock.Ledger, maxUnits int, quarantined []string) []Check {
	return []Check{
		NewQuantityLimitCheck(maxUnits),
		NewAvailabilityCheck(ledger),
		NewQualityCheck(quarantined...),
	}
}
