package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/wrenshaw/cartledger/internal/platform/errors"
	"github.com/wrenshaw/cartledger/internal/services/cart/storage"
)

var _ storage.CustomerReadModelStore = (*Store)(nil)

// customerRollupDoc is the persisted JSON shape of a customer rollup.
type customerRollupDoc struct {
	CartsOpened    int64                                 `json:"carts_opened"`
	CartsConfirmed int64                                 `json:"carts_confirmed"`
	CartsCancelled int64                                 `json:"carts_cancelled"`
	TotalSpent     decimal.Decimal                       `json:"total_spent"`
	Carts          map[string]storage.CustomerCartRecord `json:"carts"`
}

// PutCustomer persists a customer rollup record.
func (s *Store) PutCustomer(ctx context.Context, record storage.CustomerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := customerRollupDoc{
		CartsOpened:    record.CartsOpened,
		CartsConfirmed: record.CartsConfirmed,
		CartsCancelled: record.CartsCancelled,
		TotalSpent:     record.TotalSpent,
		Carts:          record.Carts,
	}
	dataJSON, err := json.Marshal(doc)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, "marshal customer rollup", err)
	}

	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO customer_rollups (customer_id, data_json, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(customer_id) DO UPDATE SET
    data_json = excluded.data_json,
    updated_at = excluded.updated_at`,
		record.CustomerID, dataJSON, toMillis(updatedAt),
	); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, "put customer rollup", err)
	}
	return nil
}

// GetCustomer returns the rollup for the given customer id.
func (s *Store) GetCustomer(ctx context.Context, customerID string) (storage.CustomerRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.CustomerRecord{}, err
	}

	var dataJSON []byte
	var updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT data_json, updated_at FROM customer_rollups WHERE customer_id = ?",
		customerID).Scan(&dataJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.CustomerRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.CustomerRecord{}, apperrors.Wrap(apperrors.CodeStorageFailure, "get customer rollup", err)
	}

	var doc customerRollupDoc
	if err := json.Unmarshal(dataJSON, &doc); err != nil {
		return storage.CustomerRecord{}, apperrors.Wrap(apperrors.CodeStorageFailure, "unmarshal customer rollup", err)
	}

	return storage.CustomerRecord{
		CustomerID:     customerID,
		CartsOpened:    doc.CartsOpened,
		CartsConfirmed: doc.CartsConfirmed,
		CartsCancelled: doc.CartsCancelled,
		TotalSpent:     doc.TotalSpent,
		Carts:          doc.Carts,
		UpdatedAt:      fromMillis(updatedAt),
	}, nil
}

// PurgeCustomers removes every customer rollup. Used before a full replay.
func (s *Store) PurgeCustomers(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM customer_rollups"); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, "purge customer rollups", err)
	}
	return nil
}
