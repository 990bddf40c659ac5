package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"southbag/internal/config"
	"southbag/internal/discord"
	"southbag/internal/game"
	"southbag/internal/ledger/backend"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadBotFromEnv()
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

	session, err := discord.NewSession(cfg.Token, logger)
	if err != nil {
		logger.Error("discord session failed", "err", err)
		os.Exit(1)
	}
	bot := discord.NewBot(game.NewService(store, logger), session, cfg.Prefix, cfg.Channels, logger)

	logger.Info("southbag bot connecting", "prefix", cfg.Prefix, "channels", len(cfg.Channels))
	if err := session.Run(ctx, bot); err != nil {
		logger.Error("bot stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("bot shutdown")
}
