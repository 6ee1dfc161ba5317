package payment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

var testTracer = noop.NewTracerProvider().Tracer("payment-test")

func amount(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newTestGateway(wallets ...Wallet) (*Gateway, *MemoryWalletStore, *MemoryRecordStore) {
	ws := NewMemoryWalletStore(wallets...)
	rs := NewMemoryRecordStore()
	return NewGateway(ws, rs, zap.NewNop(), testTracer), ws, rs
}

func balance(t *testing.T, ws WalletStore, user string) decimal.Decimal {
	t.Helper()
	w, err := ws.GetWallet(context.Background(), user)
	require.NoError(t, err)
	return w.Balance
}

func TestGateway_WalletPaymentAndInsufficientFunds(t *testing.T) {
	g, ws, _ := newTestGateway(Wallet{Username: "alice", Balance: amount(1000)})
	ctx := context.Background()

	assert.True(t, g.Pay(ctx, TypeWallet, "alice", amount(1000)))
	assert.True(t, balance(t, ws, "alice").IsZero())

	assert.False(t, g.Pay(ctx, TypeWallet, "alice", amount(1)))
	assert.True(t, balance(t, ws, "alice").IsZero())

	history, err := g.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].Success, "newest record first")
	assert.Equal(t, "alice", history[0].AccountID)
	assert.True(t, history[1].Success)
	assert.Equal(t, "Wallet-alice", history[1].AccountID)
}

func TestGateway_EveryAttemptIsRecorded(t *testing.T) {
	g, _, rs := newTestGateway()
	ctx := context.Background()

	assert.False(t, g.Pay(ctx, "bitcoin", "bob", amount(5)))
	assert.False(t, g.Pay(ctx, TypeWallet, "nobody", amount(5)))
	assert.False(t, g.Pay(ctx, TypeStripe, "card-1", amount(0)))
	assert.True(t, g.Pay(ctx, "PayPal", "bob@example.com", amount(5)))
	assert.True(t, g.Pay(ctx, TypeStripe, "card-1", decimal.RequireFromString("9.99")))

	records, err := rs.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestGateway_RegisteredBackendNeedsNoGatewayChange(t *testing.T) {
	g, _, _ := newTestGateway()
	var seen atomic.Int32
	g.Registry().Register("GiftCard", ProcessorFunc(func(_ context.Context, account string, _ decimal.Decimal) (bool, error) {
		seen.Add(1)
		return account == "gc-1", nil
	}))

	assert.True(t, g.Pay(context.Background(), "giftcard", "gc-1", amount(10)))
	assert.False(t, g.Pay(context.Background(), "giftcard", "gc-2", amount(10)))
	assert.Equal(t, int32(2), seen.Load())
}

func TestGateway_BackendErrorIsFalse(t *testing.T) {
	g, _, rs := newTestGateway()
	g.Registry().Register("flaky", ProcessorFunc(func(context.Context, string, decimal.Decimal) (bool, error) {
		return true, errors.New("connection reset")
	}))

	assert.False(t, g.Pay(context.Background(), "flaky", "x", amount(1)))
	records, _ := rs.List(context.Background())
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
}

func TestGateway_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	g, ws, _ := newTestGateway(Wallet{Username: "alice", Balance: amount(10)})

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Pay(context.Background(), TypeWallet, "alice", amount(1)) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), wins.Load())
	assert.True(t, balance(t, ws, "alice").IsZero())
}

func TestGateway_WalletManagement(t *testing.T) {
	g, _, _ := newTestGateway()
	ctx := context.Background()

	bal, err := g.Balance(ctx, "carol")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	w, err := g.AddFunds(ctx, "carol", amount(25))
	require.NoError(t, err)
	assert.True(t, amount(25).Equal(w.Balance))

	_, err = g.CreateWallet(ctx, "carol", amount(1))
	assert.ErrorIs(t, err, ErrWalletExists)

	_, err = g.CreateWallet(ctx, "dave", amount(-1))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = g.AddFunds(ctx, "carol", amount(0))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	created, err := g.CreateWallet(ctx, "dave", amount(100))
	require.NoError(t, err)
	assert.Equal(t, "dave", created.Username)
}

func TestMemoryRecordStore_NewestFirst(t *testing.T) {
	rs := NewMemoryRecordStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, rs.Append(ctx, Record{ID: "old", Timestamp: base}))
	require.NoError(t, rs.Append(ctx, Record{ID: "new", Timestamp: base.Add(time.Minute)}))
	require.NoError(t, rs.Append(ctx, Record{ID: "same", Timestamp: base.Add(time.Minute)}))

	records, err := rs.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"same", "new", "old"}, []string{records[0].ID, records[1].ID, records[2].ID})
}
