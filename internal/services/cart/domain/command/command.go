// Package command defines cart commands and the pure decision outcome type.
package command

import "github.com/shopspring/decimal"

// Type identifies the type of a cart command.
type Type string

const (
	// TypeOpenCart opens a new shopping cart for a customer.
	TypeOpenCart Type = "cart.open"
	// TypeAddItem adds a product item to an open cart.
	TypeAddItem Type = "cart.add_item"
	// TypeRemoveItem removes a product item from an open cart.
	TypeRemoveItem Type = "cart.remove_item"
	// TypeConfirmCart confirms an open, non-empty cart.
	TypeConfirmCart Type = "cart.confirm"
	// TypeCancelCart cancels an open cart.
	TypeCancelCart Type = "cart.cancel"
)

// Command targets a single cart stream. Commands are never persisted.
type Command struct {
	// CartID is the target cart stream identifier.
	CartID string
	// Type is the command type tag.
	Type Type
	// PayloadJSON is the type-specific payload.
	PayloadJSON []byte
}

// OpenCartPayload captures the payload for cart.open commands.
type OpenCartPayload struct {
	CustomerID string `json:"customer_id"`
}

// AddItemPayload captures the payload for cart.add_item commands.
//
// Name and UnitPrice are resolved from the product catalog at the
// command-handling boundary before the decider runs.
type AddItemPayload struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
}

// RemoveItemPayload captures the payload for cart.remove_item commands.
type RemoveItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// ConfirmCartPayload captures the payload for cart.confirm commands.
type ConfirmCartPayload struct{}

// CancelCartPayload captures the payload for cart.cancel commands.
type CancelCartPayload struct{}
