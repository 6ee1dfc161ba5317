// Package stock holds per-SKU available quantities and the atomic
// check-and-decrement every reservation goes through.
package stock

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	ErrSKUNotFound       = errors.New("sku not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// Item is one SKU row. Quantity is never negative.
type Item struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Ledger is implemented by every stock backend. Reserve either decrements the
// full quantity or leaves the row untouched.
type Ledger interface {
	Reserve(ctx context.Context, sku string, qty int) error
	Release(ctx context.Context, sku string, qty int) error
	Get(ctx context.Context, sku string) (Item, error)
	Put(ctx context.Context, item Item) error
	List(ctx context.Context) ([]Item, error)
}

// MemoryLedger is a mutex-guarded in-process Ledger.
type MemoryLedger struct {
	mu    sync.Mutex
	items map[string]Item
}

func NewMemoryLedger(items ...Item) *MemoryLedger {
	l := &MemoryLedger{items: make(map[string]Item, len(items))}
	for _, it := range items {
		l.items[it.SKU] = it
	}
	return l
}

func (l *MemoryLedger) Reserve(_ context.Context, sku string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.items[sku]
	if !ok {
		return ErrSKUNotFound
	}
	if it.Quantity < qty {
		return ErrInsufficientStock
	}
	it.Quantity -= qty
	l.items[sku] = it
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, sku string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.items[sku]
	if !ok {
		return ErrSKUNotFound
	}
	it.Quantity += qty
	l.items[sku] = it
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, sku string) (Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.items[sku]
	if !ok {
		return Item{}, ErrSKUNotFound
	}
	return it, nil
}

func (l *MemoryLedger) Put(_ context.Context, item Item) error {
	if item.Quantity < 0 {
		return ErrInvalidQuantity
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[item.SKU] = item
	return nil
}

func (l *MemoryLedger) List(_ context.Context) ([]Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Item, 0, len(l.items))
	for _, it := range l.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}
