package inventory

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrInvalidReview = errors.New("invalid review")

// Review is a customer's rating of a product, 1 to 5 stars.
type Review struct {
	ID        int64     `json:"id"`
	SKU       string    `json:"sku"`
	Customer  string    `json:"customer"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReviewStore keeps reviews per SKU in the order they were written.
type ReviewStore interface {
	AddReview(ctx context.Context, r Review) (Review, error)
	ListReviews(ctx context.Context, sku string) ([]Review, error)
}

type MemoryReviewStore struct {
	mu      sync.RWMutex
	nextID  int64
	reviews []Review
}

func NewMemoryReviewStore() *MemoryReviewStore {
	return &MemoryReviewStore{}
}

func (m *MemoryReviewStore) AddReview(_ context.Context, r Review) (Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	m.reviews = append(m.reviews, r)
	return r, nil
}

func (m *MemoryReviewStore) ListReviews(_ context.Context, sku string) ([]Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Review
	for _, r := range m.reviews {
		if r.SKU == sku {
			out = append(out, r)
		}
	}
	return out, nil
}
