package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"southbag/internal/config"
	"southbag/internal/game"
	"southbag/internal/ledger/backend"
	"southbag/internal/money"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	store, err := backend.Open(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("ledger open failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	svc := game.NewService(store, logger)
	sweep := func() error {
		res, err := svc.SweepFees(ctx, cfg.SweepIdle, cfg.SweepBatch)
		if err != nil {
			return err
		}
		logger.Info("fee sweep complete", "charged", res.Charged, "total", money.Format(res.Total))
		return nil
	}

	if cfg.RunOnce {
		if err := sweep(); err != nil {
			logger.Error("sweep failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.SweepEvery)
	defer ticker.Stop()

	logger.Info("worker started", "sweep_every", cfg.SweepEvery.String(), "idle", cfg.SweepIdle.String(), "batch", cfg.SweepBatch)
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if err := sweep(); err != nil {
				logger.Error("fee sweep failed", "err", err)
			}
		}
	}
}
