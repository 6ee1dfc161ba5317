package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment/internal/events"
	"fulfillment/internal/platform/observability"
	"fulfillment/internal/stock"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var ErrInvalidProduct = errors.New("invalid product")

// Service handles inventory-related business logic
type Service struct {
	pipeline *Pipeline
	ledger   stock.Ledger
	reviews  ReviewStore
	logger   observability.Logger
	tracer   observability.Tracer
}

// NewService creates a new inventory service instance with explicit dependencies
func NewService(pipeline *Pipeline, ledger stock.Ledger, reviews ReviewStore, logger observability.Logger, tracer observability.Tracer) *Service {
	return &Service{
		pipeline: pipeline,
		ledger:   ledger,
		reviews:  reviews,
		logger:   logger,
		tracer:   tracer,
	}
}

// Reserve runs the validation pipeline; on true the stock has been decremented.
// Reserving twice for the same order takes stock twice.
func (s *Service) Reserve(ctx context.Context, sku string, qty int) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "inventory_reserve")
	defer span.End()

	span.SetAttributes(
		attribute.String("inventory.sku", sku),
		attribute.Int("inventory.quantity", qty),
		attribute.String("service.component", "inventory_manager"),
	)

	s.logger.Info("🔍 Reserving stock", zap.String("sku", sku), zap.Int("quantity", qty))

	ok, err := s.pipeline.Validate(ctx, sku, qty)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation failed")
		return false, err
	}

	span.SetAttributes(attribute.Bool("inventory.available", ok))
	if ok {
		span.SetStatus(codes.Ok, "Inventory successfully reserved")
	}
	return ok, nil
}

// CheckStock serves the synchronous check. It reserves exactly like the
// event-driven path; callers must not treat it as read-only.
func (s *Service) CheckStock(ctx context.Context, sku string, qty int) (bool, error) {
	return s.Reserve(ctx, sku, qty)
}

// Release returns units reserved for an order that will not use them.
func (s *Service) Release(ctx context.Context, sku string, qty int) error {
	ctx, span := s.tracer.Start(ctx, "inventory_release")
	defer span.End()
	span.SetAttributes(
		attribute.String("inventory.sku", sku),
		attribute.Int("inventory.quantity", qty),
	)

	if err := s.ledger.Release(ctx, sku, qty); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "release failed")
		return fmt.Errorf("release %d of %s: %w", qty, sku, err)
	}
	s.logger.Info("↩️ Stock released", zap.String("sku", sku), zap.Int("quantity", qty))
	return nil
}

// ProcessOrderCreated turns an ORDER_CREATED event into its reservation outcome.
// Other event types yield nil. A backend failure is reported as OUT_OF_STOCK so
// the order is never left waiting on an outcome that will not come.
func (s *Service) ProcessOrderCreated(ctx context.Context, ev events.OrderEvent) *events.InventoryEvent {
	if ev.Type != events.TypeOrderCreated {
		s.logger.Warn("Ignoring order event", zap.String("type", ev.Type), zap.String("order_id", ev.OrderID))
		return nil
	}

	ok, err := s.Reserve(ctx, ev.SKU, ev.Quantity)
	if err != nil {
		s.logger.Error("❌ Reservation errored, reporting out of stock",
			zap.String("order_id", ev.OrderID),
			zap.Error(err),
		)
	}

	out := &events.InventoryEvent{
		Type:     events.TypeOutOfStock,
		OrderID:  ev.OrderID,
		SKU:      ev.SKU,
		Quantity: ev.Quantity,
	}
	if ok {
		out.Type = events.TypeStockReserved
	}
	return out
}

func (s *Service) Products(ctx context.Context) ([]stock.Item, error) {
	return s.ledger.List(ctx)
}

func (s *Service) Product(ctx context.Context, sku string) (stock.Item, error) {
	return s.ledger.Get(ctx, sku)
}

func (s *Service) AddProduct(ctx context.Context, item stock.Item) (stock.Item, error) {
	if item.SKU == "" || item.Quantity < 0 {
		return stock.Item{}, ErrInvalidProduct
	}
	if err := s.ledger.Put(ctx, item); err != nil {
		return stock.Item{}, fmt.Errorf("add product %s: %w", item.SKU, err)
	}
	return item, nil
}

// UpdateProduct replaces name and quantity of an existing SKU.
func (s *Service) UpdateProduct(ctx context.Context, sku string, updates stock.Item) (stock.Item, error) {
	existing, err := s.ledger.Get(ctx, sku)
	if err != nil {
		return stock.Item{}, err
	}
	if updates.Quantity < 0 {
		return stock.Item{}, ErrInvalidProduct
	}
	existing.Name = updates.Name
	existing.Quantity = updates.Quantity
	if err := s.ledger.Put(ctx, existing); err != nil {
		return stock.Item{}, fmt.Errorf("update product %s: %w", sku, err)
	}
	return existing, nil
}

// AddReview records a rating for an existing product.
func (s *Service) AddReview(ctx context.Context, r Review) (Review, error) {
	if r.SKU == "" || r.Customer == "" || r.Rating < 1 || r.Rating > 5 {
		return Review{}, ErrInvalidReview
	}
	if _, err := s.ledger.Get(ctx, r.SKU); err != nil {
		return Review{}, err
	}
	r.CreatedAt = time.Now().UTC()
	saved, err := s.reviews.AddReview(ctx, r)
	if err != nil {
		return Review{}, fmt.Errorf("add review for %s: %w", r.SKU, err)
	}
	s.logger.Info("⭐ Review added", zap.String("sku", r.SKU), zap.Int("rating", r.Rating))
	return saved, nil
}

func (s *Service) Reviews(ctx context.Context, sku string) ([]Review, error) {
	return s.reviews.ListReviews(ctx, sku)
}
