package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/wrenshaw/cartledger/internal/platform/errors"
	"github.com/wrenshaw/cartledger/internal/services/cart/domain/event"
	"github.com/wrenshaw/cartledger/internal/services/cart/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cart.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testEvent(t *testing.T, streamID string, eventType event.Type, payload any) event.Event {
	t.Helper()
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return event.Event{
		StreamID:    streamID,
		Type:        eventType,
		OccurredAt:  time.Date(2026, 8, 12, 9, 30, 0, 0, time.UTC),
		PayloadJSON: payloadJSON,
	}
}

func openedEvent(t *testing.T, streamID, customerID string) event.Event {
	t.Helper()
	return testEvent(t, streamID, event.TypeCartOpened, event.CartOpenedPayload{CustomerID: customerID})
}

func uintPtr(v uint64) *uint64 { return &v }

func TestReadStreamEmptyIsNotAnError(t *testing.T) {
	store := openTestStore(t)
	events, version, err := store.ReadStream(context.Background(), "cart-missing")
	if err != nil {
		t.Fatalf("read empty stream: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
	if version != 0 {
		t.Fatalf("expected version 0, got %d", version)
	}
}

func TestAppendEventsAssignsVersionsAndIDs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	batch := []event.Event{
		openedEvent(t, "cart-1", "customer-9"),
		testEvent(t, "cart-1", event.TypeItemAdded, event.ItemAddedPayload{ProductID: "productA", Name: "productA", UnitPrice: decimal.NewFromInt(5), Quantity: 2}),
	}
	version, err := store.AppendEvents(ctx, "cart-1", batch, uintPtr(0))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected version 2 after batch of 2, got %d", version)
	}

	events, current, err := store.ReadStream(ctx, "cart-1")
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if current != 2 {
		t.Fatalf("expected current version 2, got %d", current)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for i, evt := range events {
		if evt.Version != uint64(i+1) {
			t.Fatalf("event %d: expected version %d, got %d", i, i+1, evt.Version)
		}
		if evt.EventID == "" {
			t.Fatalf("event %d: expected assigned event id", i)
		}
		if evt.GlobalSeq == 0 {
			t.Fatalf("event %d: expected assigned global seq", i)
		}
	}
	if events[0].Type != event.TypeCartOpened {
		t.Fatalf("expected cart.opened first, got %s", events[0].Type)
	}
}

func TestAppendEventsVersionMonotonicity(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var version uint64
	for i := 0; i < 5; i++ {
		expected := version
		next, err := store.AppendEvents(ctx, "cart-1",
			[]event.Event{openedEvent(t, "cart-1", "customer-9")}, &expected)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if next != version+1 {
			t.Fatalf("append %d: expected version %d, got %d", i, version+1, next)
		}
		version = next
	}

	events, current, err := store.ReadStream(ctx, "cart-1")
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if current != 5 || len(events) != 5 {
		t.Fatalf("expected 5 events at version 5, got %d at %d", len(events), current)
	}
	for i, evt := range events {
		if evt.Version != uint64(i+1) {
			t.Fatalf("gap or reuse at position %d: version %d", i, evt.Version)
		}
	}
}

func TestAppendEventsVersionConflictWritesNothing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendEvents(ctx, "cart-1",
		[]event.Event{openedEvent(t, "cart-1", "customer-9")}, uintPtr(0)); err != nil {
		t.Fatalf("seed append: %v", err)
	}

	_, err := store.AppendEvents(ctx, "cart-1",
		[]event.Event{testEvent(t, "cart-1", event.TypeCartCancelled, event.CartCancelledPayload{})},
		uintPtr(0))
	if err == nil {
		t.Fatal("expected version conflict")
	}
	if code := apperrors.CodeOf(err); code != apperrors.CodeVersionConflict {
		t.Fatalf("expected VERSION_CONFLICT, got %s", code)
	}
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected domain error, got %T", err)
	}
	if domainErr.Metadata["actual"] != "1" {
		t.Fatalf("expected actual version 1 in metadata, got %q", domainErr.Metadata["actual"])
	}

	events, version, err := store.ReadStream(ctx, "cart-1")
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if version != 1 || len(events) != 1 {
		t.Fatalf("conflicting append must write nothing: %d events at version %d", len(events), version)
	}
}

func TestAppendEventsUnconditionalWhenExpectedNil(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendEvents(ctx, "cart-1",
		[]event.Event{openedEvent(t, "cart-1", "customer-9")}, nil); err != nil {
		t.Fatalf("unconditional append: %v", err)
	}
	version, err := store.AppendEvents(ctx, "cart-1",
		[]event.Event{testEvent(t, "cart-1", event.TypeCartCancelled, event.CartCancelledPayload{})}, nil)
	if err != nil {
		t.Fatalf("second unconditional append: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}
}

func TestAppendEventsEmptyBatchReturnsCurrentVersion(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendEvents(ctx, "cart-1",
		[]event.Event{openedEvent(t, "cart-1", "customer-9")}, uintPtr(0)); err != nil {
		t.Fatalf("seed append: %v", err)
	}
	version, err := store.AppendEvents(ctx, "cart-1", nil, uintPtr(1))
	if err != nil {
		t.Fatalf("empty append: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}
}

func TestAppendEventsRejectsForeignStreamEvents(t *testing.T) {
	store := openTestStore(t)
	_, err := store.AppendEvents(context.Background(), "cart-1",
		[]event.Event{openedEvent(t, "cart-2", "customer-9")}, uintPtr(0))
	if err == nil {
		t.Fatal("expected error for event targeting a different stream")
	}
}

func TestAppendEventsSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cart.db")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := store.AppendEvents(ctx, "cart-1",
		[]event.Event{openedEvent(t, "cart-1", "customer-9")}, uintPtr(0)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	events, version, err := reopened.ReadStream(ctx, "cart-1")
	if err != nil {
		t.Fatalf("read after reopen: %v", err)
	}
	if version != 1 || len(events) != 1 {
		t.Fatalf("expected durable append: %d events at version %d", len(events), version)
	}
	if events[0].Type != event.TypeCartOpened {
		t.Fatalf("expected cart.opened, got %s", events[0].Type)
	}

	// The version index is rebuilt from the journal, so a conditional
	// append right after reopen sees the authoritative version.
	next, err := reopened.AppendEvents(ctx, "cart-1",
		[]event.Event{testEvent(t, "cart-1", event.TypeCartCancelled, event.CartCancelledPayload{})},
		uintPtr(1))
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if next != 2 {
		t.Fatalf("expected version 2 after reopen append, got %d", next)
	}
}

func TestConcurrentAppendsExactlyOneWins(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Seed the stream to version 3.
	batch := []event.Event{
		openedEvent(t, "cart-1", "customer-9"),
		testEvent(t, "cart-1", event.TypeItemAdded, event.ItemAddedPayload{ProductID: "productA", Name: "productA", UnitPrice: decimal.NewFromInt(5), Quantity: 1}),
		testEvent(t, "cart-1", event.TypeItemAdded, event.ItemAddedPayload{ProductID: "productB", Name: "productB", UnitPrice: decimal.NewFromInt(5), Quantity: 1}),
	}
	if _, err := store.AppendEvents(ctx, "cart-1", batch, uintPtr(0)); err != nil {
		t.Fatalf("seed append: %v", err)
	}

	// Two writers race with the same expected version.
	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, err := store.AppendEvents(ctx, "cart-1",
				[]event.Event{testEvent(t, "cart-1", event.TypeItemAdded,
					event.ItemAddedPayload{ProductID: "productC", Name: "productC", UnitPrice: decimal.NewFromInt(5), Quantity: 1})},
				uintPtr(3))
			results[slot] = err
		}(i)
	}
	wg.Wait()

	var conflicts, successes int
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		if apperrors.CodeOf(err) != apperrors.CodeVersionConflict {
			t.Fatalf("expected VERSION_CONFLICT for loser, got %v", err)
		}
		conflicts++
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d conflicts", successes, conflicts)
	}

	_, version, err := store.ReadStream(ctx, "cart-1")
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if version != 4 {
		t.Fatalf("expected version 4 after the race, got %d", version)
	}
}

func TestListEventsPagesAcrossStreams(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, streamID := range []string{"cart-1", "cart-2", "cart-3"} {
		if _, err := store.AppendEvents(ctx, streamID,
			[]event.Event{openedEvent(t, streamID, "customer-9")}, uintPtr(0)); err != nil {
			t.Fatalf("append %s: %v", streamID, err)
		}
	}

	first, err := store.ListEvents(ctx, 0, 2)
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 events on first page, got %d", len(first))
	}
	if first[0].GlobalSeq >= first[1].GlobalSeq {
		t.Fatal("expected ascending global sequence")
	}

	rest, err := store.ListEvents(ctx, first[1].GlobalSeq, 10)
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("expected 1 remaining event, got %d", len(rest))
	}
	if rest[0].GlobalSeq <= first[1].GlobalSeq {
		t.Fatal("expected second page to continue after the first")
	}
}

func TestDeleteStreamRemovesEventsAndVersion(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendEvents(ctx, "cart-1",
		[]event.Event{openedEvent(t, "cart-1", "customer-9")}, uintPtr(0)); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := store.DeleteStream(ctx, "cart-1"); err != nil {
		t.Fatalf("delete stream: %v", err)
	}

	events, version, err := store.ReadStream(ctx, "cart-1")
	if err != nil {
		t.Fatalf("read after delete: %v", err)
	}
	if len(events) != 0 || version != 0 {
		t.Fatalf("expected empty stream after delete, got %d events at version %d", len(events), version)
	}

	if err := store.DeleteStream(ctx, "cart-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
