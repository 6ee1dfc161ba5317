package payment

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrWalletExists      = errors.New("wallet already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

type Wallet struct {
	Username string          `json:"username"`
	Balance  decimal.Decimal `json:"balance"`
}

// WalletStore keeps customer balances. Debit is atomic: it either takes the
// whole amount or leaves the balance untouched, and never drives it negative.
type WalletStore interface {
	CreateWallet(ctx context.Context, username string, initial decimal.Decimal) (Wallet, error)
	GetWallet(ctx context.Context, username string) (Wallet, error)
	Credit(ctx context.Context, username string, amount decimal.Decimal) (Wallet, error)
	Debit(ctx context.Context, username string, amount decimal.Decimal) error
}

type MemoryWalletStore struct {
	mu      sync.Mutex
	wallets map[string]decimal.Decimal
}

func NewMemoryWalletStore(wallets ...Wallet) *MemoryWalletStore {
	s := &MemoryWalletStore{wallets: make(map[string]decimal.Decimal, len(wallets))}
	for _, w := range wallets {
		s.wallets[w.Username] = w.Balance
	}
	return s
}

func (s *MemoryWalletStore) CreateWallet(_ context.Context, username string, initial decimal.Decimal) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[username]; ok {
		return Wallet{}, ErrWalletExists
	}
	s.wallets[username] = initial
	return Wallet{Username: username, Balance: initial}, nil
}

func (s *MemoryWalletStore) GetWallet(_ context.Context, username string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.wallets[username]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return Wallet{Username: username, Balance: balance}, nil
}

// Credit adds funds, opening an empty wallet first if the customer has none.
func (s *MemoryWalletStore) Credit(_ context.Context, username string, amount decimal.Decimal) (Wallet, error) {
	if !amount.IsPositive() {
		return Wallet{}, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	balance := s.wallets[username].Add(amount)
	s.wallets[username] = balance
	return Wallet{Username: username, Balance: balance}, nil
}

func (s *MemoryWalletStore) Debit(_ context.Context, username string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.wallets[username]
	if !ok {
		return ErrWalletNotFound
	}
	if balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	s.wallets[username] = balance.Sub(amount)
	return nil
}
