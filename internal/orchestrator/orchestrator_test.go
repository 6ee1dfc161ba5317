package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"fulfillment/internal/breaker"
	"fulfillment/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

var testTracer = noop.NewTracerProvider().Tracer("orchestrator-test")

func breakerConfig() config.BreakerConfig {
	return config.BreakerConfig{
		ConsecutiveFailures: 5,
		FailureRatio:        0.5,
		MinRequests:         10,
		Window:              time.Minute,
		CoolDown:            time.Minute,
		CallTimeout:         50 * time.Millisecond,
	}
}

func newOrchestrator(inventoryURL, paymentURL string) *Orchestrator {
	return New(
		NewHTTPInventoryClient(inventoryURL, nil),
		NewHTTPPaymentClient(paymentURL, nil),
		breaker.New("inventory", breakerConfig(), zap.NewNop()),
		breaker.New("payment", breakerConfig(), zap.NewNop()),
		zap.NewNop(),
		testTracer,
	)
}

func TestOrchestrator_ReserveStockCallsInventory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/inventory/check", r.URL.Path)
		if r.URL.Query().Get("sku") == "IPHONE15" && r.URL.Query().Get("qty") == "10" {
			_, _ = w.Write([]byte("true"))
			return
		}
		_, _ = w.Write([]byte("false"))
	}))
	defer srv.Close()

	o := newOrchestrator(srv.URL, "http://unused")
	assert.True(t, o.ReserveStock(context.Background(), "IPHONE15", 10))
	assert.False(t, o.ReserveStock(context.Background(), "TSHIRT", 1))
}

func TestOrchestrator_ProcessPaymentCallsPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/payment/pay", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "wallet", q.Get("type"))
		assert.Equal(t, "alice", q.Get("accountId"))
		assert.Equal(t, "19.99", q.Get("amount"))
		_, _ = w.Write([]byte("true\n"))
	}))
	defer srv.Close()

	o := newOrchestrator("http://unused", srv.URL+"/")
	assert.True(t, o.ProcessPayment(context.Background(), "wallet", "alice", decimal.RequireFromString("19.99")))
}

func TestOrchestrator_TimeoutsOpenBreakerAndStopCalls(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	o := newOrchestrator(srv.URL, "http://unused")
	for i := 0; i < 5; i++ {
		assert.False(t, o.ReserveStock(context.Background(), "IPHONE15", 1))
	}
	require.Equal(t, int32(5), hits.Load())

	assert.False(t, o.ReserveStock(context.Background(), "IPHONE15", 1))
	assert.Equal(t, int32(5), hits.Load(), "sixth call must not reach the network")
}

func TestOrchestrator_ServerErrorsAreFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := newOrchestrator(srv.URL, srv.URL)
	assert.False(t, o.ReserveStock(context.Background(), "A", 1))
	assert.False(t, o.ProcessPayment(context.Background(), "wallet", "a", decimal.NewFromInt(1)))
}

func TestOrchestrator_UnreachableServiceIsFalse(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	o := newOrchestrator(url, url)
	assert.False(t, o.ReserveStock(context.Background(), "A", 1))
	assert.False(t, o.ProcessPayment(context.Background(), "wallet", "a", decimal.NewFromInt(1)))
}

func TestCallBool_RejectsNonBooleanBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	_, err := NewHTTPInventoryClient(srv.URL, nil).CheckStock(context.Background(), "A", 1)
	assert.Error(t, err)
}
