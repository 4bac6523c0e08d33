package sqlite

import (
	"context"
	"database/sql"
	"errors"

	apperrors "github.com/wrenshaw/cartledger/internal/platform/errors"
	"github.com/wrenshaw/cartledger/internal/services/cart/storage"
)

var _ storage.CheckpointStore = (*Store)(nil)

// GetCheckpoint returns the global-sequence watermark for a projection.
// A projection that has never applied anything is at watermark 0.
func (s *Store) GetCheckpoint(ctx context.Context, name string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var seq uint64
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT global_seq FROM projection_checkpoints WHERE name = ?", name).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStorageFailure, "get checkpoint", err)
	}
	return seq, nil
}

// SetCheckpoint records the global-sequence watermark for a projection.
func (s *Store) SetCheckpoint(ctx context.Context, name string, seq uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO projection_checkpoints (name, global_seq) VALUES (?, ?)
ON CONFLICT(name) DO UPDATE SET global_seq = excluded.global_seq`,
		name, seq,
	); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, "set checkpoint", err)
	}
	return nil
}
