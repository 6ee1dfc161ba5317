package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"fulfillment/internal/inventory"
	"fulfillment/internal/platform/observability"
	"fulfillment/internal/stock"

	"go.uber.org/zap"
)

type InventoryService interface {
	CheckStock(ctx context.Context, sku string, qty int) (bool, error)
	Products(ctx context.Context) ([]stock.Item, error)
	Product(ctx context.Context, sku string) (stock.Item, error)
	AddProduct(ctx context.Context, item stock.Item) (stock.Item, error)
	UpdateProduct(ctx context.Context, sku string, updates stock.Item) (stock.Item, error)
	AddReview(ctx context.Context, r inventory.Review) (inventory.Review, error)
	Reviews(ctx context.Context, sku string) ([]inventory.Review, error)
}

type InventoryHandlers struct {
	service InventoryService
	logger  observability.Logger
}

func NewInventoryHandlers(service InventoryService, logger observability.Logger) *InventoryHandlers {
	return &InventoryHandlers{service: service, logger: logger}
}

func (h *InventoryHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/inventory/check", h.check)
	mux.HandleFunc("GET /api/inventory/products", h.listProducts)
	mux.HandleFunc("POST /api/inventory/products", h.addProduct)
	mux.HandleFunc("GET /api/inventory/products/{sku}", h.getProduct)
	mux.HandleFunc("PUT /api/inventory/products/{sku}", h.updateProduct)
	mux.HandleFunc("POST /api/inventory/reviews", h.addReview)
	mux.HandleFunc("GET /api/inventory/reviews", h.listReviews)
}

// check reserves stock; a true answer means the units are already taken.
func (h *InventoryHandlers) check(w http.ResponseWriter, r *http.Request) {
	sku := r.URL.Query().Get("sku")
	qty, err := strconv.Atoi(r.URL.Query().Get("qty"))
	if sku == "" || err != nil {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "sku and integer qty are required")
		return
	}
	ok, err := h.service.CheckStock(r.Context(), sku, qty)
	if err != nil {
		h.logger.Error("❌ Stock check failed", zap.String("sku", sku), zap.Error(err))
		WriteJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

func (h *InventoryHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Products(r.Context())
	if err != nil {
		WriteJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if items == nil {
		items = []stock.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *InventoryHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.Product(r.Context(), r.PathValue("sku"))
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *InventoryHandlers) addProduct(w http.ResponseWriter, r *http.Request) {
	var item stock.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	created, err := h.service.AddProduct(r.Context(), item)
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *InventoryHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	var updates stock.Item
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	updated, err := h.service.UpdateProduct(r.Context(), r.PathValue("sku"), updates)
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *InventoryHandlers) addReview(w http.ResponseWriter, r *http.Request) {
	var review inventory.Review
	if err := json.NewDecoder(r.Body).Decode(&review); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	saved, err := h.service.AddReview(r.Context(), review)
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (h *InventoryHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	sku := r.URL.Query().Get("sku")
	if sku == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "sku is required")
		return
	}
	reviews, err := h.service.Reviews(r.Context(), sku)
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	if reviews == nil {
		reviews = []inventory.Review{}
	}
	writeJSON(w, http.StatusOK, reviews)
}

func writeInventoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stock.ErrSKUNotFound):
		WriteJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, inventory.ErrInvalidProduct), errors.Is(err, inventory.ErrInvalidReview),
		errors.Is(err, stock.ErrInvalidQuantity):
		WriteJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		WriteJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
