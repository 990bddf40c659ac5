// Package backend opens the ledger store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"southbag/internal/config"
	"southbag/internal/ledger"
	"southbag/internal/ledger/memory"
	"southbag/internal/ledger/postgres"
	"southbag/internal/ledger/sqlite"
)

func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (ledger.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case config.StoreMemory:
		logger.Warn("using in-memory ledger, balances are lost on exit")
		return memory.New(), nil
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		logger.Info("ledger store ready", "driver", cfg.Driver, "path", cfg.SQLitePath)
		return store, nil
	case config.StorePostgres:
		store, err := postgres.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres ledger: %w", err)
		}
		logger.Info("ledger store ready", "driver", cfg.Driver)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
