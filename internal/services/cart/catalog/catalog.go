// Package catalog resolves product identity and pricing for cart commands.
// The command handler consults it before the decider runs so that only
// priced, known products ever reach the journal.
package catalog

import (
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/wrenshaw/cartledger/internal/platform/errors"
)

// Product is one sellable entry in the catalog.
type Product struct {
	ID        string
	Name      string
	UnitPrice decimal.Decimal
}

// PriceLookup resolves a product id to its catalog entry. Implementations
// return a PRODUCT_UNKNOWN error for ids they do not carry.
type PriceLookup interface {
	PriceOf(productID string) (Product, error)
}

// Static is an in-memory catalog keyed by product id.
type Static struct {
	products map[string]Product
}

// NewStatic builds a catalog from the given products. Later duplicates of
// the same id replace earlier ones.
func NewStatic(products ...Product) *Static {
	byID := make(map[string]Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}
	return &Static{products: byID}
}

// PriceOf implements PriceLookup.
func (s *Static) PriceOf(productID string) (Product, error) {
	trimmed := strings.TrimSpace(productID)
	if trimmed == "" {
		return Product{}, apperrors.New(apperrors.CodeProductUnknown, "product id is required")
	}
	product, ok := s.products[trimmed]
	if !ok {
		return Product{}, apperrors.WithMetadata(apperrors.CodeProductUnknown,
			"unknown product: "+trimmed,
			map[string]string{"product_id": trimmed})
	}
	return product, nil
}

// Defaults returns the built-in demo catalog used when no catalog source
// is configured.
func Defaults() *Static {
	return NewStatic(
		Product{ID: "widget", Name: "Widget", UnitPrice: decimal.RequireFromString("9.99")},
		Product{ID: "gadget", Name: "Gadget", UnitPrice: decimal.RequireFromString("24.50")},
		Product{ID: "gizmo", Name: "Gizmo", UnitPrice: decimal.RequireFromString("3.75")},
		Product{ID: "doohickey", Name: "Doohickey", UnitPrice: decimal.RequireFromString("149.00")},
	)
}
