package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/wrenshaw/cartledger/internal/services/cart/domain/event"
	"github.com/wrenshaw/cartledger/internal/services/cart/projection"
	"github.com/wrenshaw/cartledger/internal/services/cart/storage"
)

// Queries serves the read side: cart summaries, customer rollups, and the
// raw event history. It also carries the administrative stream delete,
// which is the one operation that removes journal data.
type Queries struct {
	Events    storage.EventStore
	Carts     storage.CartReadModelStore
	Customers storage.CustomerReadModelStore
	Applier   *projection.Applier
	Logger    zerolog.Logger
}

// GetCart returns the cart summary read model.
func (q Queries) GetCart(ctx context.Context, cartID string) (storage.CartRecord, error) {
	return q.Carts.GetCart(ctx, cartID)
}

// GetCartEvents returns the full event history of one cart stream with its
// current version. A stream that was never written to is NOT_FOUND here,
// unlike on the write path where absence is a decidable state.
func (q Queries) GetCartEvents(ctx context.Context, cartID string) ([]event.Event, uint64, error) {
	events, version, err := q.Events.ReadStream(ctx, cartID)
	if err != nil {
		return nil, 0, err
	}
	if len(events) == 0 {
		return nil, 0, storage.ErrNotFound
	}
	return events, version, nil
}

// GetCustomerSummary returns the cross-cart rollup for a customer.
func (q Queries) GetCustomerSummary(ctx context.Context, customerID string) (storage.CustomerRecord, error) {
	return q.Customers.GetCustomer(ctx, customerID)
}

// ListCustomerCarts returns all cart summaries belonging to a customer.
func (q Queries) ListCustomerCarts(ctx context.Context, customerID string) ([]storage.CartRecord, error) {
	return q.Carts.ListCartsByCustomer(ctx, customerID)
}

// DeleteCart removes a cart stream and rebuilds the read models from the
// remaining journal. Rebuilding instead of patching keeps the rollup
// consistent: a deleted cart vanishes from counters and totals as if it
// had never existed.
func (q Queries) DeleteCart(ctx context.Context, cartID string) error {
	if err := q.Events.DeleteStream(ctx, cartID); err != nil {
		return err
	}
	lastSeq, err := projection.Replay(ctx, q.Events, q.Applier)
	if err != nil {
		q.Logger.Error().Err(err).Str("cart_id", cartID).
			Msg("read model rebuild after stream delete failed")
		return err
	}
	q.Logger.Info().Str("cart_id", cartID).Uint64("last_seq", lastSeq).
		Msg("cart stream deleted and read models rebuilt")
	return nil
}
