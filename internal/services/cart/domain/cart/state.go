// Package cart holds the pure decision and state-evolution logic for
// shopping cart streams. Decide turns a command plus current state into
// events or rejections; Fold replays events back into state. Neither
// performs I/O.
package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status describes the lifecycle phase of a cart.
type Status string

const (
	// StatusAbsent means no event has ever been appended for the cart.
	// It is the zero value of Status.
	StatusAbsent Status = ""
	// StatusOpened means the cart is open for item changes.
	StatusOpened Status = "opened"
	// StatusConfirmed is terminal: the cart was checked out.
	StatusConfirmed Status = "confirmed"
	// StatusCancelled is terminal: the cart was abandoned.
	StatusCancelled Status = "cancelled"
)

// Item is one product line within an open cart. Quantity is always
// positive; a line whose quantity would drop to zero is removed instead.
type Item struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int64
}

// State is the fold of a cart stream. The zero value represents an
// absent cart. State is never persisted; it is rebuilt from events.
type State struct {
	Status     Status
	CustomerID string
	// Items maps product id to the current line. Fold copies the map
	// before mutating so folded states never alias each other.
	Items    map[string]Item
	OpenedAt time.Time
	ClosedAt time.Time
}

// Terminal reports whether the cart reached a final lifecycle phase.
func (s State) Terminal() bool {
	return s.Status == StatusConfirmed || s.Status == StatusCancelled
}

func cloneItems(items map[string]Item) map[string]Item {
	next := make(map[string]Item, len(items))
	for id, item := range items {
		next[id] = item
	}
	return next
}
