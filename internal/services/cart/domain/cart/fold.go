package cart

import (
	"encoding/json"

	"github.com/wrenshaw/cartledger/internal/services/cart/domain/event"
)

// Fold applies an event to cart state. Fold is total: event types it does
// not recognize leave the state unchanged, and it never fails. The input
// state's item map is copied before mutation so folded states never share
// storage with their predecessors.
func Fold(state State, evt event.Event) State {
	switch evt.Type {
	case event.TypeCartOpened:
		var payload event.CartOpenedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.Status = StatusOpened
		state.CustomerID = payload.CustomerID
		state.Items = make(map[string]Item)
		state.OpenedAt = evt.OccurredAt

	case event.TypeItemAdded:
		var payload event.ItemAddedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		items := cloneItems(state.Items)
		line, ok := items[payload.ProductID]
		if ok {
			// Merge by product id: quantities sum, unit price stays
			// fixed at its first-add value.
			line.Quantity += payload.Quantity
		} else {
			line = Item{
				Name:      payload.Name,
				UnitPrice: payload.UnitPrice,
				Quantity:  payload.Quantity,
			}
		}
		items[payload.ProductID] = line
		state.Items = items

	case event.TypeItemRemoved:
		var payload event.ItemRemovedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		items := cloneItems(state.Items)
		line, ok := items[payload.ProductID]
		if ok {
			line.Quantity -= payload.Quantity
			if line.Quantity <= 0 {
				delete(items, payload.ProductID)
			} else {
				items[payload.ProductID] = line
			}
		}
		state.Items = items

	case event.TypeCartConfirmed:
		state.Status = StatusConfirmed
		state.ClosedAt = evt.OccurredAt

	case event.TypeCartCancelled:
		state.Status = StatusCancelled
		state.ClosedAt = evt.OccurredAt
	}

	return state
}

// FoldAll replays a full event sequence from the absent state.
func FoldAll(events []event.Event) State {
	var state State
	for _, evt := range events {
		state = Fold(state, evt)
	}
	return state
}
