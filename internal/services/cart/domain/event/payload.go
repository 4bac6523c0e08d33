package event

import "github.com/shopspring/decimal"

// CartOpenedPayload captures the payload for cart.opened events.
type CartOpenedPayload struct {
	CustomerID string `json:"customer_id"`
}

// ItemAddedPayload captures the payload for cart.item_added events.
//
// UnitPrice is fixed at first-add time; later additions of the same product
// merge quantities without re-pricing the existing line.
type ItemAddedPayload struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
}

// ItemRemovedPayload captures the payload for cart.item_removed events.
type ItemRemovedPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// CartConfirmedPayload captures the payload for cart.confirmed events.
type CartConfirmedPayload struct{}

// CartCancelledPayload captures the payload for cart.cancelled events.
type CartCancelledPayload struct{}
