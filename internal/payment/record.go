package payment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one entry of the payment audit log, written for every attempt.
type Record struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	AccountID string          `json:"accountId"`
	Amount    decimal.Decimal `json:"amount"`
	Success   bool            `json:"success"`
	Timestamp time.Time       `json:"timestamp"`
}

// RecordStore is append-only. List returns newest first.
type RecordStore interface {
	Append(ctx context.Context, r Record) error
	List(ctx context.Context) ([]Record, error)
}

type MemoryRecordStore struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{}
}

func (s *MemoryRecordStore) Append(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *MemoryRecordStore) List(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	s.mu.Unlock()

	// Appended in time order; reverse, then keep equal timestamps stable.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}
