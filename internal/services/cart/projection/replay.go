package projection

import (
	"context"
	"fmt"

	"github.com/wrenshaw/cartledger/internal/services/cart/domain/event"
	"github.com/wrenshaw/cartledger/internal/services/cart/storage"
)

const replayPageSize = 200

// ReplayOptions configures event replay behavior.
type ReplayOptions struct {
	// AfterSeq skips events at or below the given global sequence.
	AfterSeq uint64
	// Filter, when set, applies only matching events. Skipped events still
	// advance the returned sequence.
	Filter func(event.Event) bool
}

// Replay rebuilds both read models from scratch: purge the projection
// stores, reset the watermarks, and fold the whole journal in global
// order. Returns the last global sequence folded.
func Replay(ctx context.Context, eventStore storage.EventStore, applier *Applier) (uint64, error) {
	if err := applier.Carts.PurgeCarts(ctx); err != nil {
		return 0, fmt.Errorf("purge cart summaries: %w", err)
	}
	if err := applier.Customers.PurgeCustomers(ctx); err != nil {
		return 0, fmt.Errorf("purge customer rollups: %w", err)
	}
	if err := applier.Checkpoints.SetCheckpoint(ctx, CheckpointCartSummary, 0); err != nil {
		return 0, fmt.Errorf("reset cart summary watermark: %w", err)
	}
	if err := applier.Checkpoints.SetCheckpoint(ctx, CheckpointCustomerRollup, 0); err != nil {
		return 0, fmt.Errorf("reset customer rollup watermark: %w", err)
	}
	return ReplayWith(ctx, eventStore, applier, ReplayOptions{})
}

// CatchUp folds journal events the projections have not seen yet. Run at
// startup so read models recover from any events appended while the
// process was down or between an append and a crash.
func CatchUp(ctx context.Context, eventStore storage.EventStore, applier *Applier) (uint64, error) {
	cartSeq, err := applier.Checkpoints.GetCheckpoint(ctx, CheckpointCartSummary)
	if err != nil {
		return 0, err
	}
	customerSeq, err := applier.Checkpoints.GetCheckpoint(ctx, CheckpointCustomerRollup)
	if err != nil {
		return 0, err
	}
	afterSeq := cartSeq
	if customerSeq < afterSeq {
		afterSeq = customerSeq
	}
	return ReplayWith(ctx, eventStore, applier, ReplayOptions{AfterSeq: afterSeq})
}

// ReplayWith folds journal events through the applier with additional
// bounds and filtering.
func ReplayWith(ctx context.Context, eventStore storage.EventStore, applier *Applier, options ReplayOptions) (uint64, error) {
	if eventStore == nil {
		return 0, fmt.Errorf("event store is not configured")
	}

	lastSeq := options.AfterSeq
	for {
		events, err := eventStore.ListEvents(ctx, lastSeq, replayPageSize)
		if err != nil {
			return lastSeq, err
		}
		if len(events) == 0 {
			return lastSeq, nil
		}
		for _, evt := range events {
			lastSeq = evt.GlobalSeq
			if options.Filter != nil && !options.Filter(evt) {
				continue
			}
			if err := applier.Apply(ctx, evt); err != nil {
				return lastSeq, err
			}
		}
	}
}
