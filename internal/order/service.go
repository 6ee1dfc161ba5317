package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fulfillment/internal/events"
	"fulfillment/internal/platform/observability"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	// ErrPaymentFailed is returned by Pay when the payment was declined or the
	// payment service was unavailable. The order stays APPROVED.
	ErrPaymentFailed = errors.New("payment failed")
	// ErrPaymentNotRecorded is returned by Pay when the charge went through but
	// the order could not be moved to PAID. Retrying would charge again.
	ErrPaymentNotRecorded = errors.New("payment captured but order not updated")
	// ErrEventDriven is returned by Approve in ModeEvents: the order's own
	// inventory outcome approves it, and a second reservation would take the
	// stock twice.
	ErrEventDriven = errors.New("order is approved by its inventory outcome")
	ErrInvalidOrder = errors.New("invalid order")
)

// Mode selects the single driver that reserves stock for new orders.
type Mode string

const (
	// ModeEvents announces every order on the order-created channel; the
	// inventory outcome approves or cancels it.
	ModeEvents Mode = "events"
	// ModeSync stores orders silently; Approve reserves through the orchestrator.
	ModeSync Mode = "sync"
)

// PaymentTypeWallet is the backend used when a customer pays for an approved order.
const PaymentTypeWallet = "wallet"

// DefaultUnitPrice prices an order created without an explicit amount.
var DefaultUnitPrice = decimal.NewFromInt(999)

// Orchestrator performs the synchronous cross-service calls. Both methods
// return false on any failure, including an unreachable service.
type Orchestrator interface {
	ReserveStock(ctx context.Context, sku string, qty int) bool
	ProcessPayment(ctx context.Context, paymentType, account string, amount decimal.Decimal) bool
}

// EventPublisher emits ORDER_CREATED and STOCK_RELEASE events.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, ev events.OrderEvent) error
	PublishStockRelease(ctx context.Context, ev events.OrderEvent) error
}

// Notifier is a one-way side channel; it never reports failure to the caller.
type Notifier interface {
	Send(ctx context.Context, message string)
}

type CreateRequest struct {
	CustomerID string
	SKU        string
	Quantity   int
	Amount     decimal.Decimal
}

// Service owns the order lifecycle. Every status change goes through the
// transition table and a compare-and-set in the store, so the event consumer
// and the HTTP actions can drive the same order concurrently.
type Service struct {
	mode         Mode
	store        Store
	orchestrator Orchestrator
	publisher    EventPublisher
	notifier     Notifier
	logger       observability.Logger
	tracer       observability.Tracer
	locks        keyedMutex
}

func NewService(mode Mode, store Store, orchestrator Orchestrator, publisher EventPublisher, notifier Notifier,
	logger observability.Logger, tracer observability.Tracer) *Service {
	return &Service{
		mode:         mode,
		store:        store,
		orchestrator: orchestrator,
		publisher:    publisher,
		notifier:     notifier,
		logger:       logger,
		tracer:       tracer,
	}
}

// Create stores a CREATED order. In ModeEvents it also announces the order on
// the order-created channel; if publishing fails the order is returned
// together with the error and stays CREATED until cancelled.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if req.CustomerID == "" || req.SKU == "" || req.Quantity <= 0 || req.Amount.IsNegative() {
		return nil, ErrInvalidOrder
	}
	amount := req.Amount
	if amount.IsZero() {
		amount = DefaultUnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))
	}

	now := time.Now().UTC()
	o := &Order{
		ID:         uuid.NewString(),
		CustomerID: req.CustomerID,
		SKU:        req.SKU,
		Quantity:   req.Quantity,
		Amount:     amount,
		Status:     StatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.logger.Info("🆕 Order created", zap.String("order_id", o.ID), zap.String("sku", o.SKU), zap.Int("quantity", o.Quantity))

	if s.mode != ModeEvents {
		return o, nil
	}
	if err := s.publisher.PublishOrderCreated(ctx, orderEvent(o)); err != nil {
		return o, fmt.Errorf("announce order %s: %w", o.ID, err)
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]*Order, error) {
	return s.store.ListByCustomer(ctx, customerID)
}

func (s *Service) ListByStatus(ctx context.Context, status Status) ([]*Order, error) {
	return s.store.ListByStatus(ctx, status)
}

// HandleInventoryEvent applies a reservation outcome. Unknown orders, unknown
// event types and outcomes for orders that already moved on are ignored, which
// makes redelivery harmless. A STOCK_RESERVED that arrives after the order was
// cancelled gives its units back.
func (s *Service) HandleInventoryEvent(ctx context.Context, ev events.InventoryEvent) error {
	var trigger Trigger
	switch ev.Type {
	case events.TypeStockReserved:
		trigger = TriggerStockReserved
	case events.TypeOutOfStock:
		trigger = TriggerOutOfStock
	default:
		s.logger.Warn("Ignoring inventory event", zap.String("type", ev.Type), zap.String("order_id", ev.OrderID))
		return nil
	}

	o, err := s.store.Get(ctx, ev.OrderID)
	if errors.Is(err, ErrNotFound) {
		s.logger.Warn("Inventory event for unknown order", zap.String("order_id", ev.OrderID))
		return nil
	}
	if err != nil {
		return err
	}

	moved, err := s.fire(ctx, o, trigger)
	if err != nil || moved || trigger != TriggerStockReserved {
		return err
	}

	current, err := s.store.Get(ctx, o.ID)
	if err != nil {
		return err
	}
	// APPROVED and later already hold this reservation; only a cancelled order
	// is left with units nobody will ship.
	if current.Status != StatusCancelled {
		return nil
	}
	return s.releaseStock(ctx, current, "reserved after cancellation")
}

// Approve is the synchronous driver, available in ModeSync: it reserves stock
// through the orchestrator and approves or cancels a CREATED order.
func (s *Service) Approve(ctx context.Context, id string) (*Order, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusCreated {
		s.logGuard(o, TriggerStockReserved)
		return o, nil
	}
	if s.mode == ModeEvents {
		return o, fmt.Errorf("approve order %s: %w", o.ID, ErrEventDriven)
	}

	trigger := TriggerOutOfStock
	if s.orchestrator.ReserveStock(ctx, o.SKU, o.Quantity) {
		trigger = TriggerStockReserved
	}
	moved, err := s.fire(ctx, o, trigger)
	if err != nil {
		if trigger == TriggerStockReserved {
			_ = s.releaseStock(ctx, o, "approval not recorded")
		}
		return nil, err
	}
	if !moved && trigger == TriggerStockReserved {
		// Another driver moved the order first; this reservation has no owner.
		_ = s.releaseStock(ctx, o, "order already left CREATED")
	}
	return s.store.Get(ctx, id)
}

// Pay charges the customer's wallet for an APPROVED order. Orders in any other
// status are returned unchanged. A declined or failed payment returns
// ErrPaymentFailed and leaves the order APPROVED.
func (s *Service) Pay(ctx context.Context, id string) (*Order, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusApproved {
		s.logGuard(o, TriggerPaid)
		return o, nil
	}

	if !s.orchestrator.ProcessPayment(ctx, PaymentTypeWallet, o.CustomerID, o.Amount) {
		s.logger.Warn("💳 Payment failed", zap.String("order_id", o.ID), zap.String("customer", o.CustomerID))
		return o, fmt.Errorf("order %s: %w", o.ID, ErrPaymentFailed)
	}
	moved, err := s.fire(ctx, o, TriggerPaid)
	if err != nil || !moved {
		s.logger.Error("❌ Payment captured but order not marked PAID",
			zap.String("order_id", o.ID),
			zap.String("customer", o.CustomerID),
			zap.String("amount", o.Amount.String()),
			zap.Error(err),
		)
		return nil, errors.Join(fmt.Errorf("order %s: %w", o.ID, ErrPaymentNotRecorded), err)
	}
	return o, nil
}

func (s *Service) Ship(ctx context.Context, id string) (*Order, error) {
	return s.act(ctx, id, TriggerShip)
}

// Cancel cancels a CREATED order; later statuses are left alone.
func (s *Service) Cancel(ctx context.Context, id string) (*Order, error) {
	return s.act(ctx, id, TriggerCancel)
}

func (s *Service) act(ctx context.Context, id string, trigger Trigger) (*Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.fire(ctx, o, trigger); err != nil {
		return nil, err
	}
	return o, nil
}

// releaseStock asks inventory to return the units reserved for o.
func (s *Service) releaseStock(ctx context.Context, o *Order, reason string) error {
	s.logger.Warn("↩️ Releasing reserved stock",
		zap.String("order_id", o.ID),
		zap.String("sku", o.SKU),
		zap.Int("quantity", o.Quantity),
		zap.String("reason", reason),
	)
	if err := s.publisher.PublishStockRelease(ctx, orderEvent(o)); err != nil {
		s.logger.Error("❌ Stock release not sent, units stay reserved",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
		return fmt.Errorf("release stock for order %s: %w", o.ID, err)
	}
	return nil
}

func orderEvent(o *Order) events.OrderEvent {
	return events.OrderEvent{
		Type:     events.TypeOrderCreated,
		OrderID:  o.ID,
		SKU:      o.SKU,
		Quantity: o.Quantity,
		Customer: o.CustomerID,
	}
}

// fire moves o along the transition table. It returns false when the trigger
// does not apply to the current status or another driver won the race.
func (s *Service) fire(ctx context.Context, o *Order, trigger Trigger) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "order_transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.from", string(o.Status)),
		attribute.String("order.trigger", string(trigger)),
	)

	to, ok := Next(o.Status, trigger)
	if !ok {
		s.logGuard(o, trigger)
		return false, nil
	}

	swapped, err := s.store.Transition(ctx, o.ID, o.Status, to)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("transition order %s %s->%s: %w", o.ID, o.Status, to, err)
	}
	if !swapped {
		s.logGuard(o, trigger)
		return false, nil
	}

	from := o.Status
	o.Status = to
	span.SetAttributes(attribute.String("order.to", string(to)))
	s.logger.Info("🔁 Order transitioned",
		zap.String("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("trigger", string(trigger)),
	)
	s.notifyTransition(ctx, o, trigger)
	return true, nil
}

func (s *Service) notifyTransition(ctx context.Context, o *Order, trigger Trigger) {
	switch {
	case o.Status == StatusApproved:
		s.notifier.Send(ctx, fmt.Sprintf("Order #%s confirmed for %s", o.ID, o.CustomerID))
	case trigger == TriggerOutOfStock:
		s.notifier.Send(ctx, fmt.Sprintf("Order #%s cancelled (Out of Stock)", o.ID))
	}
}

func (s *Service) logGuard(o *Order, trigger Trigger) {
	s.logger.Info("Ignoring trigger for order in current status",
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)),
		zap.String("trigger", string(trigger)),
	)
}

// keyedMutex serializes work per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
