package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fulfillment/internal/config"
	"fulfillment/internal/events"
	"fulfillment/internal/inventory"
	"fulfillment/internal/order"
	"fulfillment/internal/payment"
	"fulfillment/internal/platform/kafka"
	"fulfillment/internal/stock"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(service string) *config.Config {
	return &config.Config{
		ServiceName:     service,
		Broker:          config.BrokerMemory,
		HTTPAddr:        ":0",
		ShutdownTimeout: time.Second,
		DBPath:          ":memory:",
		StockBackend:    config.StockBackendMemory,
		NotifyTransport: config.NotifyKafka,
		Breaker: config.BreakerConfig{
			ConsecutiveFailures: 5,
			FailureRatio:        0.5,
			MinRequests:         10,
			Window:              time.Minute,
			CoolDown:            30 * time.Second,
			CallTimeout:         2 * time.Second,
		},
		DispatchWorkers: 4,
		SagaMode:        config.SagaModeEvents,
		SeedData:        true,
	}
}

type cluster struct {
	broker    *kafka.MemoryBroker
	order     http.Handler
	inventory http.Handler
	payment   http.Handler
}

// startCluster runs all three services against one in-process broker. Each
// tweak is applied to every service's config.
func startCluster(t *testing.T, stockBackend string, tweaks ...func(*config.Config)) *cluster {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	broker := kafka.NewMemoryBroker()
	opts := []Option{WithMemoryBroker(broker), WithLogger(zap.NewNop())}

	start := func(cfg *config.Config) *Application {
		for _, tweak := range tweaks {
			tweak(cfg)
		}
		application, err := NewApplication(ctx, cfg, opts...)
		require.NoError(t, err)
		wait := application.Start()
		t.Cleanup(func() {
			cancel()
			assert.NoError(t, wait())
			application.Shutdown()
		})
		return application
	}

	invCfg := testConfig(config.InventoryServiceName)
	invCfg.StockBackend = stockBackend
	inv := start(invCfg)
	invServer := httptest.NewServer(inv.Handler())
	t.Cleanup(invServer.Close)

	pay := start(testConfig(config.PaymentServiceName))
	payServer := httptest.NewServer(pay.Handler())
	t.Cleanup(payServer.Close)

	orderCfg := testConfig(config.OrderServiceName)
	orderCfg.InventoryURL = invServer.URL
	orderCfg.PaymentURL = payServer.URL
	ord := start(orderCfg)

	return &cluster{broker: broker, order: ord.Handler(), inventory: inv.Handler(), payment: pay.Handler()}
}

func call(t *testing.T, h http.Handler, method, target string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	if out != nil && rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func syncMode(cfg *config.Config) { cfg.SagaMode = config.SagaModeSync }

func (c *cluster) quantity(t *testing.T, sku string) int {
	var item stock.Item
	require.Equal(t, http.StatusOK, call(t, c.inventory, http.MethodGet, "/api/inventory/products/"+sku, &item))
	return item.Quantity
}

func (c *cluster) published(topic, eventType string) int {
	n := 0
	for _, msg := range c.broker.Messages(topic) {
		var ev struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(msg.Value, &ev) == nil && ev.Type == eventType {
			n++
		}
	}
	return n
}

func (c *cluster) orderStatus(t *testing.T, id string) order.Status {
	var o order.Order
	require.Equal(t, http.StatusOK, call(t, c.order, http.MethodGet, "/api/oms/"+id, &o))
	return o.Status
}

func TestSaga_StockReservedThenPaidAndShipped(t *testing.T) {
	for _, backend := range []string{config.StockBackendMemory, config.StockBackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			c := startCluster(t, backend)

			var created order.Order
			require.Equal(t, http.StatusCreated,
				call(t, c.order, http.MethodPost, "/api/oms/create?sku=IPHONE15&qty=1&customer=john_doe", &created))
			assert.Equal(t, order.StatusCreated, created.Status)

			require.Eventually(t, func() bool {
				return c.orderStatus(t, created.ID) == order.StatusApproved
			}, 5*time.Second, 20*time.Millisecond)

			var item stock.Item
			require.Equal(t, http.StatusOK, call(t, c.inventory, http.MethodGet, "/api/inventory/products/IPHONE15", &item))
			assert.Equal(t, 49, item.Quantity)

			var paid order.Order
			require.Equal(t, http.StatusOK, call(t, c.order, http.MethodPost, "/api/oms/"+created.ID+"/pay", &paid))
			assert.Equal(t, order.StatusPaid, paid.Status)

			var shipped order.Order
			require.Equal(t, http.StatusOK, call(t, c.order, http.MethodPost, "/api/oms/"+created.ID+"/ship", &shipped))
			assert.Equal(t, order.StatusShipped, shipped.Status)

			var records []payment.Record
			require.Equal(t, http.StatusOK, call(t, c.payment, http.MethodGet, "/api/payment/history", &records))
			require.Len(t, records, 1)
			assert.True(t, records[0].Success)
			assert.Equal(t, "Wallet-john_doe", records[0].AccountID)
			assert.Equal(t, "999", records[0].Amount.String())
		})
	}
}

func TestSaga_OutOfStockCancelsAndNotifies(t *testing.T) {
	c := startCluster(t, config.StockBackendMemory)

	var created order.Order
	require.Equal(t, http.StatusCreated,
		call(t, c.order, http.MethodPost, "/api/oms/create?sku=TSHIRT&qty=1&customer=john_doe", &created))

	require.Eventually(t, func() bool {
		return c.orderStatus(t, created.ID) == order.StatusCancelled
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		for _, msg := range c.broker.Messages(config.NotificationTopic) {
			if strings.Contains(string(msg.Value), "cancelled (Out of Stock)") {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, http.StatusOK, call(t, c.order, http.MethodPost, "/api/oms/"+created.ID+"/pay", nil))
	assert.Equal(t, order.StatusCancelled, c.orderStatus(t, created.ID))
}

func TestSaga_InsufficientFundsIsPaymentRequired(t *testing.T) {
	c := startCluster(t, config.StockBackendMemory)

	var created order.Order
	require.Equal(t, http.StatusCreated,
		call(t, c.order, http.MethodPost, "/api/oms/create?sku=IPHONE15&qty=2&customer=john_doe", &created))
	require.Eventually(t, func() bool {
		return c.orderStatus(t, created.ID) == order.StatusApproved
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, http.StatusPaymentRequired, call(t, c.order, http.MethodPost, "/api/oms/"+created.ID+"/pay", nil))
	assert.Equal(t, order.StatusApproved, c.orderStatus(t, created.ID))
}

func TestSaga_EventDrivenApproveDoesNotReserveAgain(t *testing.T) {
	c := startCluster(t, config.StockBackendMemory)

	var created order.Order
	require.Equal(t, http.StatusCreated,
		call(t, c.order, http.MethodPost, "/api/oms/create?sku=MACBOOK&qty=3&customer=john_doe", &created))
	require.Eventually(t, func() bool {
		return c.orderStatus(t, created.ID) == order.StatusApproved
	}, 5*time.Second, 20*time.Millisecond)

	var approved order.Order
	require.Equal(t, http.StatusOK, call(t, c.order, http.MethodPost, "/api/oms/"+created.ID+"/approve", &approved))
	assert.Equal(t, order.StatusApproved, approved.Status)

	assert.Equal(t, 17, c.quantity(t, "MACBOOK"))
	assert.Equal(t, 1, c.published(config.InventoryOutcomeTopic, events.TypeStockReserved))
}

func TestSaga_SyncApproveReservesExactlyOnce(t *testing.T) {
	c := startCluster(t, config.StockBackendMemory, syncMode)

	var created order.Order
	require.Equal(t, http.StatusCreated,
		call(t, c.order, http.MethodPost, "/api/oms/create?sku=MACBOOK&qty=5&customer=john_doe", &created))
	assert.Empty(t, c.broker.Messages(config.OrderCreatedTopic))

	var approved order.Order
	require.Equal(t, http.StatusOK, call(t, c.order, http.MethodPost, "/api/oms/"+created.ID+"/approve", &approved))
	assert.Equal(t, order.StatusApproved, approved.Status)
	assert.Equal(t, 15, c.quantity(t, "MACBOOK"))

	// A second approve is a no-op on an APPROVED order.
	require.Equal(t, http.StatusOK, call(t, c.order, http.MethodPost, "/api/oms/"+created.ID+"/approve", &approved))
	assert.Equal(t, 15, c.quantity(t, "MACBOOK"))
	assert.Never(t, func() bool { return c.quantity(t, "MACBOOK") != 15 }, 200*time.Millisecond, 20*time.Millisecond)
}

func TestSaga_SyncOutOfStockCancels(t *testing.T) {
	c := startCluster(t, config.StockBackendMemory, syncMode)

	var created order.Order
	require.Equal(t, http.StatusCreated,
		call(t, c.order, http.MethodPost, "/api/oms/create?sku=MACBOOK&qty=21&customer=john_doe", &created))

	var cancelled order.Order
	require.Equal(t, http.StatusOK, call(t, c.order, http.MethodPost, "/api/oms/"+created.ID+"/approve", &cancelled))
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, 20, c.quantity(t, "MACBOOK"))
}

func TestSaga_ReservationAfterCancelIsReleased(t *testing.T) {
	for _, backend := range []string{config.StockBackendMemory, config.StockBackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			c := startCluster(t, backend, syncMode)

			var created order.Order
			require.Equal(t, http.StatusCreated,
				call(t, c.order, http.MethodPost, "/api/oms/create?sku=HEADPHONES&qty=4&customer=john_doe", &created))
			require.Equal(t, http.StatusOK, call(t, c.order, http.MethodPost, "/api/oms/"+created.ID+"/cancel", nil))
			require.Equal(t, order.StatusCancelled, c.orderStatus(t, created.ID))

			// A late announcement still reaches inventory, which reserves.
			value, err := json.Marshal(events.OrderEvent{
				Type: events.TypeOrderCreated, OrderID: created.ID, SKU: "HEADPHONES", Quantity: 4, Customer: "john_doe",
			})
			require.NoError(t, err)
			require.NoError(t, c.broker.Writer().WriteMessage(context.Background(), kafkago.Message{
				Topic: config.OrderCreatedTopic, Key: []byte(created.ID), Value: value,
			}))

			require.Eventually(t, func() bool {
				return c.published(config.OrderCreatedTopic, events.TypeStockRelease) == 1
			}, 5*time.Second, 20*time.Millisecond)
			require.Eventually(t, func() bool {
				return c.quantity(t, "HEADPHONES") == 100
			}, 5*time.Second, 20*time.Millisecond)

			assert.Equal(t, 1, c.published(config.InventoryOutcomeTopic, events.TypeStockReserved))
			assert.Equal(t, order.StatusCancelled, c.orderStatus(t, created.ID))
		})
	}
}

func TestSaga_CancelRacingReservationConservesStock(t *testing.T) {
	c := startCluster(t, config.StockBackendMemory)

	var created order.Order
	require.Equal(t, http.StatusCreated,
		call(t, c.order, http.MethodPost, "/api/oms/create?sku=HEADPHONES&qty=2&customer=john_doe", &created))
	require.Equal(t, http.StatusOK, call(t, c.order, http.MethodPost, "/api/oms/"+created.ID+"/cancel", nil))

	require.Eventually(t, func() bool {
		return c.published(config.InventoryOutcomeTopic, events.TypeStockReserved) == 1
	}, 5*time.Second, 20*time.Millisecond)

	// Whichever side won, held units match the order's final status.
	require.Eventually(t, func() bool {
		switch c.orderStatus(t, created.ID) {
		case order.StatusCancelled:
			return c.quantity(t, "HEADPHONES") == 100
		case order.StatusApproved:
			return c.quantity(t, "HEADPHONES") == 98
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
}

func TestInventoryReviews_StoredInSQLite(t *testing.T) {
	c := startCluster(t, config.StockBackendMemory)

	rec := httptest.NewRecorder()
	c.inventory.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/inventory/reviews",
		strings.NewReader(`{"sku":"IPHONE15","customer":"john_doe","rating":5,"comment":"great"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var reviews []inventory.Review
	require.Equal(t, http.StatusOK, call(t, c.inventory, http.MethodGet, "/api/inventory/reviews?sku=IPHONE15", &reviews))
	require.Len(t, reviews, 1)
	assert.Equal(t, 5, reviews[0].Rating)
	assert.Equal(t, "great", reviews[0].Comment)
}

func TestNewApplication_UnknownService(t *testing.T) {
	_, err := NewApplication(context.Background(), testConfig("shipping-service"), WithLogger(zap.NewNop()))
	assert.Error(t, err)
}
