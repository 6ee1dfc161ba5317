package httpapi

import (
	"context"
	"errors"
	"net/http"

	"fulfillment/internal/payment"

	"github.com/shopspring/decimal"
)

type PaymentGateway interface {
	Pay(ctx context.Context, paymentType, accountID string, amount decimal.Decimal) bool
	History(ctx context.Context) ([]payment.Record, error)
	CreateWallet(ctx context.Context, username string, initial decimal.Decimal) (payment.Wallet, error)
	Balance(ctx context.Context, username string) (decimal.Decimal, error)
	AddFunds(ctx context.Context, username string, amount decimal.Decimal) (payment.Wallet, error)
}

type PaymentHandlers struct {
	gateway PaymentGateway
}

func NewPaymentHandlers(gateway PaymentGateway) *PaymentHandlers {
	return &PaymentHandlers{gateway: gateway}
}

func (h *PaymentHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/payment/pay", h.pay)
	mux.HandleFunc("GET /api/payment/history", h.history)
	mux.HandleFunc("POST /api/payment/wallet/create", h.createWallet)
	mux.HandleFunc("GET /api/payment/wallet/balance", h.balance)
	mux.HandleFunc("POST /api/payment/wallet/add", h.addFunds)
}

// pay answers with a JSON boolean; declines are 200 false.
func (h *PaymentHandlers) pay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if q.Get("type") == "" || q.Get("accountId") == "" || err != nil {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "type, accountId and numeric amount are required")
		return
	}
	writeJSON(w, http.StatusOK, h.gateway.Pay(r.Context(), q.Get("type"), q.Get("accountId"), amount))
}

func (h *PaymentHandlers) history(w http.ResponseWriter, r *http.Request) {
	records, err := h.gateway.History(r.Context())
	if err != nil {
		WriteJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if records == nil {
		records = []payment.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *PaymentHandlers) createWallet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	initial, err := decimal.NewFromString(q.Get("initialAmount"))
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "numeric initialAmount is required")
		return
	}
	wallet, err := h.gateway.CreateWallet(r.Context(), q.Get("username"), initial)
	if err != nil {
		writePaymentError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wallet)
}

func (h *PaymentHandlers) balance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.gateway.Balance(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		writePaymentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (h *PaymentHandlers) addFunds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "numeric amount is required")
		return
	}
	wallet, err := h.gateway.AddFunds(r.Context(), q.Get("username"), amount)
	if err != nil {
		writePaymentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func writePaymentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payment.ErrWalletExists):
		WriteJSONError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, payment.ErrInvalidAmount):
		WriteJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, payment.ErrWalletNotFound):
		WriteJSONError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		WriteJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
