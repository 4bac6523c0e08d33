// Package projection folds journal events into the derived read models:
// the per-cart summary and the cross-stream per-customer rollup. Folds are
// pure; the Applier wires them to storage with checkpoint discipline so
// each event is applied at most once per projection.
package projection

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wrenshaw/cartledger/internal/services/cart/domain/cart"
	"github.com/wrenshaw/cartledger/internal/services/cart/domain/event"
	"github.com/wrenshaw/cartledger/internal/services/cart/storage"
)

// ensureTimestamp normalizes timestamps so projections always persist UTC,
// defaulting to now for event payloads that do not set time.
func ensureTimestamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.UTC()
}

// FoldCart folds one event into a cart summary record. The zero record is
// the absent cart. Unknown event types leave the record unchanged except
// for the version watermark, so summaries stay consistent with the stream
// version even when new event types are introduced.
func FoldCart(record storage.CartRecord, evt event.Event) (storage.CartRecord, error) {
	occurredAt := ensureTimestamp(evt.OccurredAt)

	switch evt.Type {
	case event.TypeCartOpened:
		var payload event.CartOpenedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return record, fmt.Errorf("decode cart.opened payload: %w", err)
		}
		record = storage.CartRecord{
			CartID:     evt.StreamID,
			CustomerID: payload.CustomerID,
			Status:     string(cart.StatusOpened),
			Items:      []storage.CartItemRecord{},
			TotalPrice: decimal.Zero,
			OpenedAt:   occurredAt,
		}

	case event.TypeItemAdded:
		var payload event.ItemAddedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return record, fmt.Errorf("decode cart.item_added payload: %w", err)
		}
		record.Items = upsertLine(record.Items, payload)
		record = recomputeTotals(record)

	case event.TypeItemRemoved:
		var payload event.ItemRemovedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return record, fmt.Errorf("decode cart.item_removed payload: %w", err)
		}
		record.Items = removeLine(record.Items, payload.ProductID, payload.Quantity)
		record = recomputeTotals(record)

	case event.TypeCartConfirmed:
		record.Status = string(cart.StatusConfirmed)

	case event.TypeCartCancelled:
		record.Status = string(cart.StatusCancelled)
	}

	record.CartID = evt.StreamID
	record.Version = evt.Version
	record.UpdatedAt = occurredAt
	return record, nil
}

// upsertLine merges an addition into the item lines. Quantities for an
// existing product sum; the name and unit price fixed at first add stick.
func upsertLine(items []storage.CartItemRecord, payload event.ItemAddedPayload) []storage.CartItemRecord {
	next := make([]storage.CartItemRecord, len(items))
	copy(next, items)
	for i := range next {
		if next[i].ProductID == payload.ProductID {
			next[i].Quantity += payload.Quantity
			return next
		}
	}
	return append(next, storage.CartItemRecord{
		ProductID: payload.ProductID,
		Name:      payload.Name,
		UnitPrice: payload.UnitPrice,
		Quantity:  payload.Quantity,
	})
}

// removeLine subtracts quantity from a product line, dropping the line when
// it reaches zero. Removals of unknown products are no-ops; the decider
// already rejected them, so the journal never contains one, but a fold must
// be total anyway.
func removeLine(items []storage.CartItemRecord, productID string, quantity int64) []storage.CartItemRecord {
	next := make([]storage.CartItemRecord, 0, len(items))
	for _, line := range items {
		if line.ProductID != productID {
			next = append(next, line)
			continue
		}
		line.Quantity -= quantity
		if line.Quantity > 0 {
			next = append(next, line)
		}
	}
	return next
}

func recomputeTotals(record storage.CartRecord) storage.CartRecord {
	var quantity int64
	total := decimal.Zero
	for i := range record.Items {
		line := &record.Items[i]
		line.LineTotal = line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity))
		quantity += line.Quantity
		total = total.Add(line.LineTotal)
	}
	record.TotalQuantity = quantity
	record.TotalPrice = total
	return record
}

// FoldCustomer folds one event into a customer rollup record, given the
// cart summary the event's stream currently folds to. The zero record is
// the unseen customer. Events for carts the rollup does not track leave it
// unchanged.
func FoldCustomer(record storage.CustomerRecord, evt event.Event, summary storage.CartRecord) (storage.CustomerRecord, error) {
	record.Carts = cloneTrackedCarts(record.Carts)

	switch evt.Type {
	case event.TypeCartOpened:
		var payload event.CartOpenedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return record, fmt.Errorf("decode cart.opened payload: %w", err)
		}
		record.CustomerID = payload.CustomerID
		record.CartsOpened++
		record.Carts[evt.StreamID] = storage.CustomerCartRecord{
			Status: string(cart.StatusOpened),
			Total:  decimal.Zero,
		}

	case event.TypeItemAdded, event.TypeItemRemoved:
		tracked, ok := record.Carts[evt.StreamID]
		if !ok {
			return record, nil
		}
		tracked.Total = summary.TotalPrice
		record.Carts[evt.StreamID] = tracked

	case event.TypeCartConfirmed:
		tracked, ok := record.Carts[evt.StreamID]
		if !ok {
			return record, nil
		}
		tracked.Status = string(cart.StatusConfirmed)
		tracked.Total = summary.TotalPrice
		record.Carts[evt.StreamID] = tracked
		record.CartsConfirmed++
		record.TotalSpent = record.TotalSpent.Add(summary.TotalPrice)

	case event.TypeCartCancelled:
		tracked, ok := record.Carts[evt.StreamID]
		if !ok {
			return record, nil
		}
		tracked.Status = string(cart.StatusCancelled)
		record.Carts[evt.StreamID] = tracked
		record.CartsCancelled++

	default:
		return record, nil
	}

	record.UpdatedAt = ensureTimestamp(evt.OccurredAt)
	return record, nil
}

func cloneTrackedCarts(carts map[string]storage.CustomerCartRecord) map[string]storage.CustomerCartRecord {
	next := make(map[string]storage.CustomerCartRecord, len(carts))
	for cartID, tracked := range carts {
		next[cartID] = tracked
	}
	return next
}
