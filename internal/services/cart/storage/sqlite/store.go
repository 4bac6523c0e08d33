// Package sqlite provides the SQLite-backed implementation of the cart
// service's storage contracts. One database file holds both the event
// journal (the sole authoritative state) and the derived read models.
package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wrenshaw/cartledger/internal/platform/storage/sqlitemigrate"
	"github.com/wrenshaw/cartledger/internal/services/cart/storage/sqlite/migrations"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis reverses toMillis for persisted millisecond timestamps.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store provides a SQLite-backed store implementing the event journal and
// read-model storage interfaces.
//
// writeMu serializes journal writers in-process. SQLite permits a single
// writer at a time; queueing writers here turns would-be SQLITE_BUSY
// failures into ordinary version checks while readers stay concurrent
// under WAL.
type Store struct {
	sqlDB   *sql.DB
	writeMu sync.Mutex
}

// Open opens the cart store at the provided path, applying embedded
// migrations before the store is handed to higher layers. WAL journaling
// keeps appends durable without blocking readers.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.JournalFS, "journal"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
//
// Close is intentionally nil-safe so callers can defer it in all startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
