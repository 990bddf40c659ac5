package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"southbag/internal/api"
	"southbag/internal/auth"
	"southbag/internal/config"
	"southbag/internal/game"
	"southbag/internal/ledger/backend"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
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

	keys, err := auth.NewKeyVerifier(cfg.APIKeyHash)
	if err != nil {
		logger.Error("api key hash rejected", "err", err)
		os.Exit(1)
	}
	if !keys.Enabled() {
		logger.Warn("SOUTHBAG_API_KEY_HASH is empty, the api accepts unauthenticated requests")
	}

	gameSvc := game.NewService(store, logger)
	server := api.New(cfg, logger, keys, gameSvc)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("southbag api listening", "addr", cfg.Addr, "store", cfg.Store.Driver)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
