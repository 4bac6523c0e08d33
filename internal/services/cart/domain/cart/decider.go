package cart

import (
	"encoding/json"
	"time"

	"github.com/wrenshaw/cartledger/internal/services/cart/domain/command"
	"github.com/wrenshaw/cartledger/internal/services/cart/domain/event"
)

const (
	rejectionCodeCartAlreadyOpened    = "CART_ALREADY_OPENED"
	rejectionCodeCartNotOpened        = "CART_NOT_OPENED"
	rejectionCodeCartClosed           = "CART_CLOSED"
	rejectionCodeCartEmpty            = "CART_EMPTY"
	rejectionCodeItemNotInCart        = "ITEM_NOT_IN_CART"
	rejectionCodeItemQuantityExceeded = "ITEM_QUANTITY_EXCEEDED"
	rejectionCodeQuantityInvalid      = "QUANTITY_INVALID"
	rejectionCodePayloadInvalid       = "PAYLOAD_INVALID"
	rejectionCodeCommandUnknown       = "COMMAND_UNKNOWN"
)

// Decide returns the decision for a cart command against current state.
//
// Decide is pure: event timestamps come from the injected now function and
// no other environment is consulted. Commands that are inapplicable to the
// current lifecycle phase are rejected, never dropped.
func Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}

	switch cmd.Type {
	case command.TypeOpenCart:
		if state.Status != StatusAbsent {
			return command.Reject(command.Rejection{
				Code:    rejectionCodeCartAlreadyOpened,
				Message: "cart is already opened",
			})
		}
		var payload command.OpenCartPayload
		if err := json.Unmarshal(cmd.PayloadJSON, &payload); err != nil {
			return rejectPayload()
		}
		payloadJSON, _ := json.Marshal(event.CartOpenedPayload{
			CustomerID: payload.CustomerID,
		})
		return command.Accept(command.NewEvent(cmd, event.TypeCartOpened, payloadJSON, now().UTC()))

	case command.TypeAddItem:
		if rejection, ok := requireOpened(state); !ok {
			return command.Reject(rejection)
		}
		var payload command.AddItemPayload
		if err := json.Unmarshal(cmd.PayloadJSON, &payload); err != nil {
			return rejectPayload()
		}
		if payload.Quantity <= 0 {
			return command.Reject(command.Rejection{
				Code:    rejectionCodeQuantityInvalid,
				Message: "item quantity must be positive",
			})
		}
		payloadJSON, _ := json.Marshal(event.ItemAddedPayload{
			ProductID: payload.ProductID,
			Name:      payload.Name,
			UnitPrice: payload.UnitPrice,
			Quantity:  payload.Quantity,
		})
		return command.Accept(command.NewEvent(cmd, event.TypeItemAdded, payloadJSON, now().UTC()))

	case command.TypeRemoveItem:
		if rejection, ok := requireOpened(state); !ok {
			return command.Reject(rejection)
		}
		var payload command.RemoveItemPayload
		if err := json.Unmarshal(cmd.PayloadJSON, &payload); err != nil {
			return rejectPayload()
		}
		if payload.Quantity <= 0 {
			return command.Reject(command.Rejection{
				Code:    rejectionCodeQuantityInvalid,
				Message: "item quantity must be positive",
			})
		}
		item, ok := state.Items[payload.ProductID]
		if !ok {
			return command.Reject(command.Rejection{
				Code:    rejectionCodeItemNotInCart,
				Message: "product is not in the cart",
			})
		}
		if payload.Quantity > item.Quantity {
			return command.Reject(command.Rejection{
				Code:    rejectionCodeItemQuantityExceeded,
				Message: "cannot remove more items than the cart holds",
			})
		}
		payloadJSON, _ := json.Marshal(event.ItemRemovedPayload{
			ProductID: payload.ProductID,
			Quantity:  payload.Quantity,
		})
		return command.Accept(command.NewEvent(cmd, event.TypeItemRemoved, payloadJSON, now().UTC()))

	case command.TypeConfirmCart:
		if rejection, ok := requireOpened(state); !ok {
			return command.Reject(rejection)
		}
		if len(state.Items) == 0 {
			return command.Reject(command.Rejection{
				Code:    rejectionCodeCartEmpty,
				Message: "cannot confirm an empty cart",
			})
		}
		payloadJSON, _ := json.Marshal(event.CartConfirmedPayload{})
		return command.Accept(command.NewEvent(cmd, event.TypeCartConfirmed, payloadJSON, now().UTC()))

	case command.TypeCancelCart:
		if rejection, ok := requireOpened(state); !ok {
			return command.Reject(rejection)
		}
		payloadJSON, _ := json.Marshal(event.CartCancelledPayload{})
		return command.Accept(command.NewEvent(cmd, event.TypeCartCancelled, payloadJSON, now().UTC()))

	default:
		return command.Reject(command.Rejection{
			Code:    rejectionCodeCommandUnknown,
			Message: "unknown cart command type",
		})
	}
}

// rejectPayload is the decision for a command payload that does not decode.
// Deciding on zero values instead would persist events the caller never
// asked for, e.g. an opened cart with an empty customer id.
func rejectPayload() command.Decision {
	return command.Reject(command.Rejection{
		Code:    rejectionCodePayloadInvalid,
		Message: "malformed command payload",
	})
}

// requireOpened returns the rejection for commands that need an open cart.
func requireOpened(state State) (command.Rejection, bool) {
	switch state.Status {
	case StatusAbsent:
		return command.Rejection{
			Code:    rejectionCodeCartNotOpened,
			Message: "cart has not been opened",
		}, false
	case StatusConfirmed, StatusCancelled:
		return command.Rejection{
			Code:    rejectionCodeCartClosed,
			Message: "cart is closed",
		}, false
	default:
		return command.Rejection{}, true
	}
}
