// Package events defines the payloads exchanged between the order and inventory
// services and the plumbing that moves them over a keyed message channel.
package events

const (
	TypeOrderCreated  = "ORDER_CREATED"
	TypeStockReserved = "STOCK_RESERVED"
	TypeOutOfStock    = "OUT_OF_STOCK"

	// TypeStockRelease asks inventory to give back units reserved for an order
	// that can no longer use them.
	TypeStockRelease = "STOCK_RELEASE"
)

// OrderEvent travels on the order-created channel: ORDER_CREATED once per
// announced order, STOCK_RELEASE when a reservation has to be compensated.
type OrderEvent struct {
	Type     string `json:"type"`
	OrderID  string `json:"orderId"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Customer string `json:"customer"`
}

// InventoryEvent reports the reservation outcome for one order.
type InventoryEvent struct {
	Type     string `json:"type"`
	OrderID  string `json:"orderId"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}
