package storage

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fulfillment/internal/inventory"
	"fulfillment/internal/order"
	"fulfillment/internal/payment"
	"fulfillment/internal/stock"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fulfillment.db")
	ctx := context.Background()

	db, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, db.Stock().Put(ctx, stock.Item{SKU: "MUG", Quantity: 3}))
	require.NoError(t, db.Close())

	db, err = Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	it, err := db.Stock().Get(ctx, "MUG")
	require.NoError(t, err)
	assert.Equal(t, 3, it.Quantity)

	var versions int
	require.NoError(t, db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&versions))
	assert.Equal(t, len(AllMigrations), versions)
}

func TestStockLedger_ReserveAndRelease(t *testing.T) {
	ledger := setupTestDB(t).Stock()
	ctx := context.Background()
	require.NoError(t, ledger.Put(ctx, stock.Item{SKU: "IPHONE15", Name: "iPhone 15", Quantity: 50}))
	require.NoError(t, ledger.Put(ctx, stock.Item{SKU: "TSHIRT", Quantity: 0}))

	require.NoError(t, ledger.Reserve(ctx, "IPHONE15", 10))
	it, err := ledger.Get(ctx, "IPHONE15")
	require.NoError(t, err)
	assert.Equal(t, stock.Item{SKU: "IPHONE15", Name: "iPhone 15", Quantity: 40}, it)

	assert.ErrorIs(t, ledger.Reserve(ctx, "TSHIRT", 1), stock.ErrInsufficientStock)
	assert.ErrorIs(t, ledger.Reserve(ctx, "NOPE", 1), stock.ErrSKUNotFound)
	assert.ErrorIs(t, ledger.Reserve(ctx, "IPHONE15", 0), stock.ErrInvalidQuantity)
	assert.ErrorIs(t, ledger.Release(ctx, "NOPE", 1), stock.ErrSKUNotFound)

	require.NoError(t, ledger.Release(ctx, "IPHONE15", 10))
	items, err := ledger.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "IPHONE15", items[0].SKU)
	assert.Equal(t, 50, items[0].Quantity)
}

func TestStockLedger_ConcurrentReserveNeverNegative(t *testing.T) {
	ledger := setupTestDB(t).Stock()
	ctx := context.Background()
	require.NoError(t, ledger.Put(ctx, stock.Item{SKU: "HOT", Quantity: 7}))

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ledger.Reserve(ctx, "HOT", 1) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(7), wins.Load())
	it, err := ledger.Get(ctx, "HOT")
	require.NoError(t, err)
	assert.Equal(t, 0, it.Quantity)
}

func TestOrderStore_CRUDAndTransition(t *testing.T) {
	store := setupTestDB(t).Orders()
	ctx := context.Background()
	now := time.Now().UTC()

	o := &order.Order{
		ID: "o-1", CustomerID: "alice", SKU: "MUG", Quantity: 2,
		Amount: decimal.RequireFromString("19.98"), Status: order.StatusCreated,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.Create(ctx, o))
	assert.ErrorIs(t, store.Create(ctx, o), order.ErrAlreadyExists)

	got, err := store.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.True(t, o.Amount.Equal(got.Amount))
	assert.Equal(t, order.StatusCreated, got.Status)
	assert.Equal(t, now.UnixNano(), got.CreatedAt.UnixNano())

	ok, err := store.Transition(ctx, "o-1", order.StatusCreated, order.StatusApproved)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Transition(ctx, "o-1", order.StatusCreated, order.StatusCancelled)
	require.NoError(t, err)
	assert.False(t, ok, "stale from-status must lose")

	_, err = store.Transition(ctx, "missing", order.StatusCreated, order.StatusApproved)
	assert.ErrorIs(t, err, order.ErrNotFound)

	byStatus, err := store.ListByStatus(ctx, order.StatusApproved)
	require.NoError(t, err)
	require.Len(t, byStatus, 1)

	byCustomer, err := store.ListByCustomer(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, byCustomer)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestWalletStore_DebitCredit(t *testing.T) {
	wallets := setupTestDB(t).Wallets()
	ctx := context.Background()

	_, err := wallets.CreateWallet(ctx, "alice", decimal.NewFromInt(1000))
	require.NoError(t, err)
	_, err = wallets.CreateWallet(ctx, "alice", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, payment.ErrWalletExists)

	require.NoError(t, wallets.Debit(ctx, "alice", decimal.NewFromInt(1000)))
	assert.ErrorIs(t, wallets.Debit(ctx, "alice", decimal.NewFromInt(1)), payment.ErrInsufficientFunds)
	assert.ErrorIs(t, wallets.Debit(ctx, "bob", decimal.NewFromInt(1)), payment.ErrWalletNotFound)

	w, err := wallets.GetWallet(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())

	w, err = wallets.Credit(ctx, "bob", decimal.RequireFromString("12.34"))
	require.NoError(t, err)
	assert.Equal(t, "12.34", w.Balance.String())
}

func TestRecordStore_NewestFirst(t *testing.T) {
	records := setupTestDB(t).PaymentRecords()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, records.Append(ctx, payment.Record{ID: "r1", Type: "wallet", AccountID: "Wallet-alice", Amount: decimal.NewFromInt(1000), Success: true, Timestamp: base}))
	require.NoError(t, records.Append(ctx, payment.Record{ID: "r2", Type: "wallet", AccountID: "alice", Amount: decimal.NewFromInt(1), Timestamp: base.Add(time.Second)}))

	list, err := records.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r2", list[0].ID)
	assert.False(t, list[0].Success)
	assert.True(t, list[1].Success)
	assert.True(t, base.Equal(list[1].Timestamp))
}

func TestGatewayOverSQLite(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, err := db.Wallets().CreateWallet(ctx, "alice", decimal.NewFromInt(1000))
	require.NoError(t, err)

	g := payment.NewGateway(db.Wallets(), db.PaymentRecords(), zap.NewNop(), noop.NewTracerProvider().Tracer("storage-test"))
	assert.True(t, g.Pay(ctx, "wallet", "alice", decimal.NewFromInt(1000)))
	assert.False(t, g.Pay(ctx, "wallet", "alice", decimal.NewFromInt(1)))

	history, err := g.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestReviewStore_AddAndListBySKU(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	reviews := db.Reviews()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first, err := reviews.AddReview(ctx, inventory.Review{SKU: "IPHONE15", Customer: "alice", Rating: 5, Comment: "great", CreatedAt: at})
	require.NoError(t, err)
	second, err := reviews.AddReview(ctx, inventory.Review{SKU: "IPHONE15", Customer: "bob", Rating: 2, CreatedAt: at})
	require.NoError(t, err)
	_, err = reviews.AddReview(ctx, inventory.Review{SKU: "TSHIRT", Customer: "bob", Rating: 4, CreatedAt: at})
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	got, err := reviews.ListReviews(ctx, "IPHONE15")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, "great", got[0].Comment)
	assert.Equal(t, "bob", got[1].Customer)
	assert.True(t, at.Equal(got[1].CreatedAt))

	_, err = reviews.AddReview(ctx, inventory.Review{SKU: "IPHONE15", Customer: "eve", Rating: 9, CreatedAt: at})
	assert.Error(t, err)

	none, err := reviews.ListReviews(ctx, "MISSING")
	require.NoError(t, err)
	assert.Empty(t, none)
}
