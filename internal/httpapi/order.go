package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"fulfillment/internal/order"
	"fulfillment/internal/platform/observability"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderService interface {
	Create(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*order.Order, error)
	ListByStatus(ctx context.Context, status order.Status) ([]*order.Order, error)
	Approve(ctx context.Context, id string) (*order.Order, error)
	Pay(ctx context.Context, id string) (*order.Order, error)
	Ship(ctx context.Context, id string) (*order.Order, error)
	Cancel(ctx context.Context, id string) (*order.Order, error)
}

type OrderHandlers struct {
	service OrderService
	logger  observability.Logger
}

func NewOrderHandlers(service OrderService, logger observability.Logger) *OrderHandlers {
	return &OrderHandlers{service: service, logger: logger}
}

func (h *OrderHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/oms/create", h.create)
	mux.HandleFunc("GET /api/oms/my-orders", h.myOrders)
	mux.HandleFunc("GET /api/oms/pending", h.byStatus(order.StatusCreated))
	mux.HandleFunc("GET /api/oms/paid", h.byStatus(order.StatusPaid))
	mux.HandleFunc("GET /api/oms/{id}", h.get)
	mux.HandleFunc("POST /api/oms/{id}/approve", h.action(h.service.Approve))
	mux.HandleFunc("POST /api/oms/{id}/pay", h.action(h.service.Pay))
	mux.HandleFunc("POST /api/oms/{id}/ship", h.action(h.service.Ship))
	mux.HandleFunc("POST /api/oms/{id}/cancel", h.action(h.service.Cancel))
}

func (h *OrderHandlers) create(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	qty, err := strconv.Atoi(q.Get("qty"))
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "integer qty is required")
		return
	}
	req := order.CreateRequest{CustomerID: q.Get("customer"), SKU: q.Get("sku"), Quantity: qty}
	if raw := q.Get("amount"); raw != "" {
		if req.Amount, err = decimal.NewFromString(raw); err != nil {
			WriteJSONError(w, http.StatusBadRequest, "validation_error", "amount must be numeric")
			return
		}
	}

	o, err := h.service.Create(r.Context(), req)
	switch {
	case errors.Is(err, order.ErrInvalidOrder):
		WriteJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	case o == nil:
		WriteJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
	default:
		// The order exists even if announcing it failed; it can be approved directly.
		if err != nil {
			h.logger.Warn("Order created without event", zap.String("order_id", o.ID), zap.Error(err))
		}
		writeJSON(w, http.StatusCreated, o)
	}
}

func (h *OrderHandlers) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrderHandlers) myOrders(w http.ResponseWriter, r *http.Request) {
	customer := r.URL.Query().Get("customer")
	if customer == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "customer is required")
		return
	}
	orders, err := h.service.ListByCustomer(r.Context(), customer)
	writeOrders(w, orders, err)
}

func (h *OrderHandlers) byStatus(status order.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orders, err := h.service.ListByStatus(r.Context(), status)
		writeOrders(w, orders, err)
	}
}

// action runs a lifecycle operation. An order whose status does not allow the
// operation comes back unchanged with 200. Approve answers 409 while orders are
// driven by inventory events.
func (h *OrderHandlers) action(op func(context.Context, string) (*order.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := op(r.Context(), r.PathValue("id"))
		if err != nil {
			writeOrderError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

func writeOrders(w http.ResponseWriter, orders []*order.Order, err error) {
	if err != nil {
		WriteJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound):
		WriteJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, order.ErrPaymentFailed):
		WriteJSONError(w, http.StatusPaymentRequired, "payment_failed", err.Error())
	case errors.Is(err, order.ErrEventDriven):
		WriteJSONError(w, http.StatusConflict, "event_driven", err.Error())
	case errors.Is(err, order.ErrPaymentNotRecorded):
		WriteJSONError(w, http.StatusInternalServerError, "payment_not_recorded", err.Error())
	default:
		WriteJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
