// Package server parses cart server flags and starts the HTTP runtime.
package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	platformotel "github.com/wrenshaw/cartledger/internal/platform/otel"
	cartapi "github.com/wrenshaw/cartledger/internal/services/cart/api/http"
	"github.com/wrenshaw/cartledger/internal/services/cart/app"
)

const serviceName = "cartledger"

// shutdownGrace bounds how long in-flight requests may finish on stop.
const shutdownGrace = 10 * time.Second

// ParseConfig parses environment and flags into the service config.
// Flags override environment values.
func ParseConfig(fs *flag.FlagSet, args []string) (app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return app.Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite journal path")
	if err := fs.Parse(args); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

// Run starts the cart HTTP service and blocks until ctx is cancelled or
// the server fails.
func Run(ctx context.Context, cfg app.Config) error {
	logger := zerolog.New(os.Stderr).With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	otelShutdown, err := platformotel.Setup(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	service, err := app.NewService(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("bootstrap service: %w", err)
	}
	defer func() {
		if err := service.Close(); err != nil {
			logger.Warn().Err(err).Msg("storage close failed")
		}
	}()

	api := &cartapi.Server{
		Handler: service.Handler,
		Queries: service.Queries,
		Logger:  logger,
	}
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("db", cfg.DBPath).Msg("cart service listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		logger.Info().Msg("cart service stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
