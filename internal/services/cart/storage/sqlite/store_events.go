package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	apperrors "github.com/wrenshaw/cartledger/internal/platform/errors"
	"github.com/wrenshaw/cartledger/internal/platform/id"
	"github.com/wrenshaw/cartledger/internal/services/cart/domain/event"
	"github.com/wrenshaw/cartledger/internal/services/cart/storage"
)

var _ storage.EventStore = (*Store)(nil)

// ReadStream returns the full ordered event history for a stream and its
// current version. A stream with no events yields an empty slice and
// version 0; callers interpret that as the absent state.
func (s *Store) ReadStream(ctx context.Context, streamID string) ([]event.Event, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, 0, apperrors.New(apperrors.CodeStorageFailure, "storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT global_seq, event_id, stream_id, version, event_type, payload_json, occurred_at
FROM events WHERE stream_id = ? ORDER BY version`, streamID)
	if err != nil {
		return nil, 0, apperrors.Wrap(apperrors.CodeStorageFailure, "read stream", err)
	}
	defer rows.Close()

	var events []event.Event
	var version uint64
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, 0, apperrors.Wrap(apperrors.CodeStorageFailure, "scan event", err)
		}
		events = append(events, evt)
		version = evt.Version
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.Wrap(apperrors.CodeStorageFailure, "read stream rows", err)
	}
	return events, version, nil
}

// AppendEvents atomically appends the batch to the stream with optimistic
// concurrency control. When expected is non-nil and does not match the
// authoritative current version, nothing is written and the returned error
// carries the actual version. The whole batch commits or nothing does.
func (s *Store) AppendEvents(ctx context.Context, streamID string, events []event.Event, expected *uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, apperrors.New(apperrors.CodeStorageFailure, "storage is not configured")
	}
	for i, evt := range events {
		if evt.StreamID != streamID {
			return 0, apperrors.New(apperrors.CodeStorageFailure,
				fmt.Sprintf("event %d targets stream %q, not %q", i, evt.StreamID, streamID))
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStorageFailure, "begin tx", err)
	}
	defer tx.Rollback()

	current, err := streamVersionTx(ctx, tx, streamID)
	if err != nil {
		return 0, err
	}

	if expected != nil && *expected != current {
		return 0, versionConflict(streamID, *expected, current)
	}
	if len(events) == 0 {
		return current, nil
	}

	next := current
	for i := range events {
		next++
		evt := events[i]
		evt.Version = next
		if evt.EventID == "" {
			eventID, err := id.NewID()
			if err != nil {
				return 0, apperrors.Wrap(apperrors.CodeStorageFailure, "generate event id", err)
			}
			evt.EventID = eventID
		}
		if evt.OccurredAt.IsZero() {
			evt.OccurredAt = time.Now().UTC()
		}
		evt.OccurredAt = evt.OccurredAt.UTC().Truncate(time.Millisecond)

		if _, err := tx.ExecContext(ctx, `
INSERT INTO events (event_id, stream_id, version, event_type, payload_json, occurred_at)
VALUES (?, ?, ?, ?, ?, ?)`,
			evt.EventID, evt.StreamID, evt.Version, string(evt.Type), evt.PayloadJSON, toMillis(evt.OccurredAt),
		); err != nil {
			// The unique (stream_id, version) index is the backstop when
			// two appends race past the version read: exactly one commits,
			// the other lands here.
			if isConstraintError(err) {
				actual, readErr := s.streamVersion(ctx, streamID)
				if readErr == nil {
					exp := current
					if expected != nil {
						exp = *expected
					}
					return 0, versionConflict(streamID, exp, actual)
				}
			}
			return 0, apperrors.Wrap(apperrors.CodeStorageFailure, "append event", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO streams (stream_id, version) VALUES (?, ?)
ON CONFLICT(stream_id) DO UPDATE SET version = excluded.version`,
		streamID, next,
	); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStorageFailure, "advance stream version", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStorageFailure, "commit append", err)
	}
	return next, nil
}

// ListEvents returns up to limit events with GlobalSeq greater than
// afterSeq, in journal order. This is the cross-stream feed projections
// replay from.
func (s *Store) ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT global_seq, event_id, stream_id, version, event_type, payload_json, occurred_at
FROM events WHERE global_seq > ? ORDER BY global_seq LIMIT ?`, afterSeq, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "list events", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "scan event", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "list event rows", err)
	}
	return events, nil
}

// DeleteStream removes a whole stream: its events and version counter.
// This is the administrative whole-stream delete; individual events are
// never removed.
func (s *Store) DeleteStream(ctx context.Context, streamID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, "begin tx", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "DELETE FROM streams WHERE stream_id = ?", streamID)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, "delete stream", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, "delete stream result", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM events WHERE stream_id = ?", streamID); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, "delete stream events", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, "commit delete", err)
	}
	return nil
}

func (s *Store) streamVersion(ctx context.Context, streamID string) (uint64, error) {
	var version uint64
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT version FROM streams WHERE stream_id = ?", streamID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStorageFailure, "read stream version", err)
	}
	return version, nil
}

func streamVersionTx(ctx context.Context, tx *sql.Tx, streamID string) (uint64, error) {
	var version uint64
	err := tx.QueryRowContext(ctx,
		"SELECT version FROM streams WHERE stream_id = ?", streamID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStorageFailure, "read stream version", err)
	}
	return version, nil
}

func scanEvent(rows *sql.Rows) (event.Event, error) {
	var evt event.Event
	var eventType string
	var occurredAt int64
	if err := rows.Scan(&evt.GlobalSeq, &evt.EventID, &evt.StreamID, &evt.Version,
		&eventType, &evt.PayloadJSON, &occurredAt); err != nil {
		return event.Event{}, err
	}
	evt.Type = event.Type(eventType)
	evt.OccurredAt = fromMillis(occurredAt)
	return evt, nil
}

func versionConflict(streamID string, expected, actual uint64) error {
	return apperrors.WithMetadata(
		apperrors.CodeVersionConflict,
		fmt.Sprintf("stream %s: expected version %d, actual %d", streamID, expected, actual),
		map[string]string{
			"stream_id": streamID,
			"expected":  strconv.FormatUint(expected, 10),
			"actual":    strconv.FormatUint(actual, 10),
		},
	)
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
