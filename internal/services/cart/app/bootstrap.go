package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wrenshaw/cartledger/internal/platform/config"
	"github.com/wrenshaw/cartledger/internal/services/cart/catalog"
	"github.com/wrenshaw/cartledger/internal/services/cart/projection"
	"github.com/wrenshaw/cartledger/internal/services/cart/storage/sqlite"
)

// Config carries process configuration for the cart service.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `env:"CARTLEDGER_ADDR" envDefault:":8080"`
	// DBPath is the SQLite journal path.
	DBPath string `env:"CARTLEDGER_DB_PATH" envDefault:"cartledger.db"`
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Service bundles the wired command handler, query side, and the storage
// they share. Close releases the underlying store.
type Service struct {
	Handler Handler
	Queries Queries

	store *sqlite.Store
}

// NewService opens storage, runs migrations, catches the read models up
// with the journal, and wires the command and query paths.
func NewService(ctx context.Context, cfg Config, logger zerolog.Logger) (*Service, error) {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	applier := &projection.Applier{
		Carts:       store,
		Customers:   store,
		Checkpoints: store,
	}

	// Recover read models from events appended before a crash or while
	// the process was down.
	lastSeq, err := projection.CatchUp(ctx, store, applier)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("projection catch-up: %w", err)
	}
	logger.Info().Uint64("last_seq", lastSeq).Msg("read models caught up with journal")

	return &Service{
		Handler: Handler{
			Events:  store,
			Catalog: catalog.Defaults(),
			Applier: applier,
			Logger:  logger,
		},
		Queries: Queries{
			Events:    store,
			Carts:     store,
			Customers: store,
			Applier:   applier,
			Logger:    logger,
		},
		store: store,
	}, nil
}

// Close releases the service's storage.
func (s *Service) Close() error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.Close()
}
