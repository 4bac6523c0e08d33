// Package event defines the immutable journal entries for cart streams.
package event

import "time"

// Type identifies the type of a cart event.
type Type string

const (
	// TypeCartOpened records the opening of a shopping cart.
	TypeCartOpened Type = "cart.opened"
	// TypeItemAdded records a product item added to a cart.
	TypeItemAdded Type = "cart.item_added"
	// TypeItemRemoved records a product item removed from a cart.
	TypeItemRemoved Type = "cart.item_removed"
	// TypeCartConfirmed records the confirmation of a cart.
	TypeCartConfirmed Type = "cart.confirmed"
	// TypeCartCancelled records the cancellation of a cart.
	TypeCartCancelled Type = "cart.cancelled"
)

// Known reports whether the type is part of the closed cart event set.
func Known(t Type) bool {
	switch t {
	case TypeCartOpened, TypeItemAdded, TypeItemRemoved, TypeCartConfirmed, TypeCartCancelled:
		return true
	default:
		return false
	}
}

// Event represents an immutable entry in the cart event journal.
//
// Deciders populate the stream addressing, type, timestamp, and payload.
// Storage assigns EventID, Version, and GlobalSeq on append; those fields
// are zero until the event has been durably persisted.
type Event struct {
	// EventID is the unique identifier of the event. Assigned by storage.
	EventID string
	// StreamID is the cart stream this event belongs to.
	StreamID string
	// Version is the event's position within its stream, starting at 1.
	// Assigned by storage on append.
	Version uint64
	// GlobalSeq is the journal-wide sequence number. Assigned by storage.
	GlobalSeq uint64
	// Type is the event type tag.
	Type Type
	// OccurredAt is when the event occurred, supplied by the decider's clock.
	OccurredAt time.Time
	// PayloadJSON is the type-specific payload.
	PayloadJSON []byte
}
