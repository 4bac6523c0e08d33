package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"

	apperrors "github.com/wrenshaw/cartledger/internal/platform/errors"
	"github.com/wrenshaw/cartledger/internal/services/cart/storage"
)

var _ storage.CartReadModelStore = (*Store)(nil)

// PutCart persists a cart summary record, replacing any previous version.
func (s *Store) PutCart(ctx context.Context, record storage.CartRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	itemsJSON, err := json.Marshal(record.Items)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, "marshal cart items", err)
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO cart_summaries (cart_id, customer_id, status, items_json, total_quantity, total_price, opened_at, updated_at, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(cart_id) DO UPDATE SET
    customer_id = excluded.customer_id,
    status = excluded.status,
    items_json = excluded.items_json,
    total_quantity = excluded.total_quantity,
    total_price = excluded.total_price,
    opened_at = excluded.opened_at,
    updated_at = excluded.updated_at,
    version = excluded.version`,
		record.CartID, record.CustomerID, record.Status, itemsJSON,
		record.TotalQuantity, record.TotalPrice.String(),
		toMillis(record.OpenedAt), toMillis(record.UpdatedAt), record.Version,
	); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, "put cart summary", err)
	}
	return nil
}

// GetCart returns the cart summary for the given cart id.
func (s *Store) GetCart(ctx context.Context, cartID string) (storage.CartRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.CartRecord{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT cart_id, customer_id, status, items_json, total_quantity, total_price, opened_at, updated_at, version
FROM cart_summaries WHERE cart_id = ?`, cartID)
	record, err := scanCartRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.CartRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.CartRecord{}, apperrors.Wrap(apperrors.CodeStorageFailure, "get cart summary", err)
	}
	return record, nil
}

// DeleteCart removes the cart summary for the given cart id, if present.
func (s *Store) DeleteCart(ctx context.Context, cartID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		"DELETE FROM cart_summaries WHERE cart_id = ?", cartID); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, "delete cart summary", err)
	}
	return nil
}

// ListCartsByCustomer returns all cart summaries belonging to a customer,
// most recently updated first.
func (s *Store) ListCartsByCustomer(ctx context.Context, customerID string) ([]storage.CartRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT cart_id, customer_id, status, items_json, total_quantity, total_price, opened_at, updated_at, version
FROM cart_summaries WHERE customer_id = ? ORDER BY updated_at DESC, cart_id`, customerID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "list carts by customer", err)
	}
	defer rows.Close()

	var records []storage.CartRecord
	for rows.Next() {
		record, err := scanCartRecord(rows.Scan)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "scan cart summary", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "list cart rows", err)
	}
	return records, nil
}

// PurgeCarts removes every cart summary. Used before a full replay.
func (s *Store) PurgeCarts(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM cart_summaries"); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, "purge cart summaries", err)
	}
	return nil
}

func scanCartRecord(scan func(dest ...any) error) (storage.CartRecord, error) {
	var record storage.CartRecord
	var itemsJSON []byte
	var totalPrice string
	var openedAt, updatedAt int64
	if err := scan(&record.CartID, &record.CustomerID, &record.Status, &itemsJSON,
		&record.TotalQuantity, &totalPrice, &openedAt, &updatedAt, &record.Version); err != nil {
		return storage.CartRecord{}, err
	}
	if err := json.Unmarshal(itemsJSON, &record.Items); err != nil {
		return storage.CartRecord{}, err
	}
	price, err := decimal.NewFromString(totalPrice)
	if err != nil {
		return storage.CartRecord{}, err
	}
	record.TotalPrice = price
	record.OpenedAt = fromMillis(openedAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
