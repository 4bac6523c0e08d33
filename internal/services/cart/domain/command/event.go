package command

import (
	"time"

	"github.com/wrenshaw/cartledger/internal/services/cart/domain/event"
)

// NewEvent builds an event.Event by copying the stream addressing from a
// command. Callers supply the event type, payload, and timestamp. Storage
// assigns EventID, Version, and GlobalSeq on append.
func NewEvent(cmd Command, eventType event.Type, payloadJSON []byte, now time.Time) event.Event {
	return event.Event{
		StreamID:    cmd.CartID,
		Type:        eventType,
		OccurredAt:  now,
		PayloadJSON: payloadJSON,
	}
}
