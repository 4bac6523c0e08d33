package projection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wrenshaw/cartledger/internal/services/cart/domain/event"
	"github.com/wrenshaw/cartledger/internal/services/cart/storage"
)

// Checkpoint names for the two projections. Each keeps its own
// global-sequence watermark so the projections advance independently.
const (
	CheckpointCartSummary    = "cart_summary"
	CheckpointCustomerRollup = "customer_rollup"
)

// Applier applies event journal entries to the projection stores. It must
// be shared by pointer: the mutex serializes appliers so the per-event
// watermark check and the read-model write commit as one step.
type Applier struct {
	// Carts writes per-cart summary read models.
	Carts storage.CartReadModelStore
	// Customers writes per-customer rollup read models.
	Customers storage.CustomerReadModelStore
	// Checkpoints persists each projection's watermark.
	Checkpoints storage.CheckpointStore

	mu sync.Mutex
}

// Apply folds one journal event into both read models. Events at or below
// a projection's watermark are skipped for that projection, so applying
// the same event twice is harmless. The cart summary folds first because
// the customer rollup reads it to resolve totals.
//
// The whole fold runs under the applier mutex. Without it, two appliers
// racing on the same event could both pass the watermark check and fold
// it twice, double-counting rollup totals.
func (a *Applier) Apply(ctx context.Context, evt event.Event) error {
	if evt.GlobalSeq == 0 {
		return fmt.Errorf("event %s has no global sequence; only journaled events can be applied", evt.EventID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.applyCartSummary(ctx, evt); err != nil {
		return fmt.Errorf("cart summary: %w", err)
	}
	if err := a.applyCustomerRollup(ctx, evt); err != nil {
		return fmt.Errorf("customer rollup: %w", err)
	}
	return nil
}

func (a *Applier) applyCartSummary(ctx context.Context, evt event.Event) error {
	watermark, err := a.Checkpoints.GetCheckpoint(ctx, CheckpointCartSummary)
	if err != nil {
		return err
	}
	if evt.GlobalSeq <= watermark {
		return nil
	}

	record, err := a.Carts.GetCart(ctx, evt.StreamID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	next, err := FoldCart(record, evt)
	if err != nil {
		return err
	}
	if err := a.Carts.PutCart(ctx, next); err != nil {
		return err
	}
	return a.Checkpoints.SetCheckpoint(ctx, CheckpointCartSummary, evt.GlobalSeq)
}

func (a *Applier) applyCustomerRollup(ctx context.Context, evt event.Event) error {
	watermark, err := a.Checkpoints.GetCheckpoint(ctx, CheckpointCustomerRollup)
	if err != nil {
		return err
	}
	if evt.GlobalSeq <= watermark {
		return nil
	}

	// The cart summary has already folded this event, so it both resolves
	// the owning customer and carries the up-to-date total.
	summary, err := a.Carts.GetCart(ctx, evt.StreamID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return a.Checkpoints.SetCheckpoint(ctx, CheckpointCustomerRollup, evt.GlobalSeq)
		}
		return err
	}
	if summary.CustomerID == "" {
		return a.Checkpoints.SetCheckpoint(ctx, CheckpointCustomerRollup, evt.GlobalSeq)
	}

	record, err := a.Customers.GetCustomer(ctx, summary.CustomerID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	next, err := FoldCustomer(record, evt, summary)
	if err != nil {
		return err
	}
	next.CustomerID = summary.CustomerID
	if err := a.Customers.PutCustomer(ctx, next); err != nil {
		return err
	}
	return a.Checkpoints.SetCheckpoint(ctx, CheckpointCustomerRollup, evt.GlobalSeq)
}
