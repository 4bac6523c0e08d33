// Package app executes cart commands against the event journal and serves
// read-model queries. The command path is read, fold, decide, append: load
// the stream, rebuild state, run the pure decider, and append the accepted
// events under optimistic concurrency.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/wrenshaw/cartledger/internal/platform/errors"
	"github.com/wrenshaw/cartledger/internal/services/cart/catalog"
	"github.com/wrenshaw/cartledger/internal/services/cart/domain/cart"
	"github.com/wrenshaw/cartledger/internal/services/cart/domain/command"
	"github.com/wrenshaw/cartledger/internal/services/cart/domain/event"
	"github.com/wrenshaw/cartledger/internal/services/cart/projection"
	"github.com/wrenshaw/cartledger/internal/services/cart/storage"
)

const tracerName = "cartledger/cart"

// Handler executes cart commands.
type Handler struct {
	// Events is the append-only journal.
	Events storage.EventStore
	// Catalog prices add-item commands before the decider runs.
	Catalog catalog.PriceLookup
	// Applier folds appended events into the read models. Optional; when
	// unset, read models catch up on the next boot.
	Applier *projection.Applier
	// Logger records command outcomes.
	Logger zerolog.Logger
	// Now supplies event timestamps. Defaults to wall clock.
	Now func() time.Time
}

// ExecuteResult captures a successful command execution.
type ExecuteResult struct {
	// Events are the appended events with storage-assigned versions.
	Events []event.Event
	// State is the cart state after the appended events.
	State cart.State
	// Version is the stream version after the append.
	Version uint64
}

// Execute runs one command through read, fold, decide, append.
//
// When expected is non-nil it is the version the caller last observed; a
// mismatch with the stream's current version fails with VERSION_CONFLICT
// before the decider runs. When expected is nil the handler uses the
// version it read, so a concurrent writer between read and append still
// loses exactly one of the two appends.
func (h Handler) Execute(ctx context.Context, cmd command.Command, expected *uint64) (ExecuteResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cart.execute",
		trace.WithAttributes(
			attribute.String("cart.id", cmd.CartID),
			attribute.String("command.type", string(cmd.Type)),
		))
	defer span.End()

	if cmd.CartID == "" {
		return ExecuteResult{}, apperrors.New(apperrors.CodeNotFound, "cart id is required")
	}

	events, version, err := h.Events.ReadStream(ctx, cmd.CartID)
	if err != nil {
		return ExecuteResult{}, err
	}
	if expected != nil && *expected != version {
		return ExecuteResult{}, versionConflict(cmd.CartID, *expected, version)
	}

	state := cart.FoldAll(events)

	cmd, err = h.resolveCommand(cmd)
	if err != nil {
		return ExecuteResult{}, err
	}

	decision := cart.Decide(state, cmd, h.Now)
	if len(decision.Rejections) > 0 {
		rejection := decision.Rejections[0]
		h.Logger.Debug().
			Str("cart_id", cmd.CartID).
			Str("command", string(cmd.Type)).
			Str("rejection", rejection.Code).
			Msg("command rejected")
		return ExecuteResult{}, rejectionError(rejection)
	}

	appendExpected := version
	newVersion, err := h.Events.AppendEvents(ctx, cmd.CartID, decision.Events, &appendExpected)
	if err != nil {
		return ExecuteResult{}, err
	}

	next := state
	appended := make([]event.Event, len(decision.Events))
	copy(appended, decision.Events)
	for i := range appended {
		appended[i].Version = version + uint64(i) + 1
		next = cart.Fold(next, appended[i])
	}

	h.applyProjections(ctx)

	h.Logger.Info().
		Str("cart_id", cmd.CartID).
		Str("command", string(cmd.Type)).
		Uint64("version", newVersion).
		Int("events", len(appended)).
		Msg("command applied")

	return ExecuteResult{Events: appended, State: next, Version: newVersion}, nil
}

// resolveCommand enriches commands with data the decider must not fetch
// itself. Add-item commands are priced from the catalog here, so unknown
// products fail validation before any decision is made.
func (h Handler) resolveCommand(cmd command.Command) (command.Command, error) {
	if cmd.Type != command.TypeAddItem {
		return cmd, nil
	}

	var payload command.AddItemPayload
	if err := json.Unmarshal(cmd.PayloadJSON, &payload); err != nil {
		return cmd, apperrors.Wrap(apperrors.CodePayloadInvalid, "malformed add-item payload", err)
	}
	if payload.Quantity <= 0 {
		return cmd, apperrors.New(apperrors.CodeQuantityInvalid, "item quantity must be positive")
	}
	if h.Catalog == nil {
		return cmd, apperrors.New(apperrors.CodeStorageFailure, "catalog is not configured")
	}
	product, err := h.Catalog.PriceOf(payload.ProductID)
	if err != nil {
		return cmd, err
	}

	payload.ProductID = product.ID
	payload.Name = product.Name
	payload.UnitPrice = product.UnitPrice
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return cmd, fmt.Errorf("encode add-item payload: %w", err)
	}
	cmd.PayloadJSON = payloadJSON
	return cmd, nil
}

// applyProjections folds freshly appended events into the read models. A
// failure here does not fail the command: the journal is the source of
// truth and the projections catch up on the next apply or boot.
func (h Handler) applyProjections(ctx context.Context) {
	if h.Applier == nil {
		return
	}
	if _, err := projection.CatchUp(ctx, h.Events, h.Applier); err != nil {
		h.Logger.Warn().Err(err).Msg("projection catch-up failed; read models are stale")
	}
}

// rejectionError converts a decider rejection into the structured error
// surfaced to callers. Rejection codes are error codes, so transport
// layers map them to statuses without re-inspecting the decision.
func rejectionError(rejection command.Rejection) error {
	code := apperrors.Code(rejection.Code)
	switch {
	case code.IsRejection(),
		code == apperrors.CodeQuantityInvalid,
		code == apperrors.CodePayloadInvalid:
	default:
		code = apperrors.CodeUnknown
	}
	return apperrors.New(code, rejection.Message)
}

func versionConflict(cartID string, expected, actual uint64) error {
	return apperrors.WithMetadata(
		apperrors.CodeVersionConflict,
		fmt.Sprintf("cart %s: expected version %d, actual %d", cartID, expected, actual),
		map[string]string{
			"cart_id":  cartID,
			"expected": strconv.FormatUint(expected, 10),
			"actual":   strconv.FormatUint(actual, 10),
		},
	)
}
