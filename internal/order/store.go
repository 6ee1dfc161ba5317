package order

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("order not found")
	ErrAlreadyExists = errors.New("order already exists")
)

type Order struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customerId"`
	SKU        string          `json:"sku"`
	Quantity   int             `json:"quantity"`
	Amount     decimal.Decimal `json:"amount"`
	Status     Status          `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Store persists orders. Transition is a compare-and-set on the status column:
// it reports false, without error, when the order is no longer in from.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*Order, error)
	ListByStatus(ctx context.Context, status Status) ([]*Order, error)
	Transition(ctx context.Context, id string, from, to Status) (bool, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]Order)}
}

func (s *MemoryStore) Create(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return ErrAlreadyExists
	}
	s.orders[o.ID] = *o
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (s *MemoryStore) list(keep func(Order) bool) []*Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Order
	for _, o := range s.orders {
		if keep(o) {
			o := o
			out = append(out, &o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) ListByCustomer(_ context.Context, customerID string) ([]*Order, error) {
	return s.list(func(o Order) bool { return o.CustomerID == customerID }), nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status Status) ([]*Order, error) {
	return s.list(func(o Order) bool { return o.Status == status }), nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, from, to Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	s.orders[id] = o
	return true, nil
}
