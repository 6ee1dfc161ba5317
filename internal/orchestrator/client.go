package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// InventoryClient asks the inventory service to reserve stock.
type InventoryClient interface {
	CheckStock(ctx context.Context, sku string, qty int) (bool, error)
}

// PaymentClient asks the payment service to charge an account.
type PaymentClient interface {
	Pay(ctx context.Context, paymentType, accountID string, amount decimal.Decimal) (bool, error)
}

// HTTPInventoryClient calls GET {base}/api/inventory/check.
type HTTPInventoryClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPInventoryClient(baseURL string, httpClient *http.Client) *HTTPInventoryClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPInventoryClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *HTTPInventoryClient) CheckStock(ctx context.Context, sku string, qty int) (bool, error) {
	q := url.Values{}
	q.Set("sku", sku)
	q.Set("qty", strconv.Itoa(qty))
	return callBool(ctx, c.httpClient, http.MethodGet, c.baseURL+"/api/inventory/check?"+q.Encode())
}

// HTTPPaymentClient calls POST {base}/api/payment/pay.
type HTTPPaymentClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPPaymentClient(baseURL string, httpClient *http.Client) *HTTPPaymentClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPPaymentClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *HTTPPaymentClient) Pay(ctx context.Context, paymentType, accountID string, amount decimal.Decimal) (bool, error) {
	q := url.Values{}
	q.Set("type", paymentType)
	q.Set("accountId", accountID)
	q.Set("amount", amount.String())
	return callBool(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/payment/pay?"+q.Encode())
}

// callBool performs a request whose response body is a JSON boolean. Any
// non-200 status is an error.
func callBool(ctx context.Context, client *http.Client, method, target string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("%s %s: status %d: %s", method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ok bool
	if err := json.NewDecoder(resp.Body).Decode(&ok); err != nil {
		return false, fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return ok, nil
}
