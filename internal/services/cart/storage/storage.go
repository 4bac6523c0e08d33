// Package storage defines the persistence contracts for the cart service:
// the append-only event journal and the derived read-model stores.
package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/wrenshaw/cartledger/internal/platform/errors"
	"github.com/wrenshaw/cartledger/internal/services/cart/domain/event"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such entity"
// states and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// EventStore is the durable, per-stream append-only journal.
//
// Implementations must guarantee that events within one stream are stored
// and returned in version order, that AppendEvents is atomic (the whole
// batch commits or nothing does), and that a successful append is durable
// across process restart.
type EventStore interface {
	// ReadStream returns the full ordered event history for a stream and
	// its current version. A stream that has never been appended to
	// returns an empty slice and version 0; this is not an error.
	ReadStream(ctx context.Context, streamID string) ([]event.Event, uint64, error)

	// AppendEvents appends the batch to the stream and returns the new
	// version. When expected is non-nil and does not equal the stream's
	// authoritative current version at append time, the append fails with
	// a VERSION_CONFLICT error carrying the actual version, and nothing is
	// written. When expected is nil the append is unconditional; normal
	// command handling always supplies an expected version.
	AppendEvents(ctx context.Context, streamID string, events []event.Event, expected *uint64) (uint64, error)

	// ListEvents returns up to limit events from the journal-wide feed
	// with GlobalSeq greater than afterSeq, in global-sequence order.
	ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error)

	// DeleteStream removes a whole stream and its events. Administrative
	// operation; individual events are never deleted.
	DeleteStream(ctx context.Context, streamID string) error
}

// CartItemRecord is one line of a cart summary read model.
type CartItemRecord struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// CartRecord is the per-cart summary read model derived by folding one
// stream's events. Version is the stream version the record reflects.
type CartRecord struct {
	CartID        string
	CustomerID    string
	Status        string
	Items         []CartItemRecord
	TotalQuantity int64
	TotalPrice    decimal.Decimal
	OpenedAt      time.Time
	UpdatedAt     time.Time
	Version       uint64
}

// CustomerCartRecord tracks one cart inside a customer rollup: its current
// status and running total as observed by the rollup fold.
type CustomerCartRecord struct {
	Status string          `json:"status"`
	Total  decimal.Decimal `json:"total"`
}

// CustomerRecord is the cross-stream per-customer rollup read model.
type CustomerRecord struct {
	CustomerID     string
	CartsOpened    int64
	CartsConfirmed int64
	CartsCancelled int64
	// TotalSpent sums the totals of confirmed carts.
	TotalSpent decimal.Decimal
	// Carts maps cart id to tracked per-cart state. Events referencing
	// carts absent from this map do not belong to the customer and leave
	// the rollup unchanged.
	Carts     map[string]CustomerCartRecord
	UpdatedAt time.Time
}

// CartReadModelStore persists per-cart summary documents.
type CartReadModelStore interface {
	PutCart(ctx context.Context, record CartRecord) error
	GetCart(ctx context.Context, cartID string) (CartRecord, error)
	DeleteCart(ctx context.Context, cartID string) error
	ListCartsByCustomer(ctx context.Context, customerID string) ([]CartRecord, error)
	PurgeCarts(ctx context.Context) error
}

// CustomerReadModelStore persists per-customer rollup documents.
type CustomerReadModelStore interface {
	PutCustomer(ctx context.Context, record CustomerRecord) error
	GetCustomer(ctx context.Context, customerID string) (CustomerRecord, error)
	PurgeCustomers(ctx context.Context) error
}

// CheckpointStore persists the global-sequence watermark each projection
// has folded up to. The watermark is what makes incremental application
// at-most-once per event.
type CheckpointStore interface {
	GetCheckpoint(ctx context.Context, name string) (uint64, error)
	SetCheckpoint(ctx context.Context, name string, seq uint64) error
}
