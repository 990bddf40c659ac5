package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type StoreConfig struct {
	Driver      string `env:"SOUTHBAG_STORE" envDefault:"sqlite"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SOUTHBAG_SQLITE_PATH" envDefault:"southbag.db"`
}

type APIConfig struct {
	Store          StoreConfig
	Port           string        `env:"PORT"`
	Addr           string        `env:"SOUTHBAG_API_ADDR" envDefault:":8080"`
	APIKeyHash     string        `env:"SOUTHBAG_API_KEY_HASH"`
	RequestTimeout time.Duration `env:"SOUTHBAG_API_TIMEOUT" envDefault:"60s"`
}

type WorkerConfig struct {
	Store      StoreConfig
	SweepEvery time.Duration `env:"SOUTHBAG_FEE_SWEEP_EVERY" envDefault:"1h"`
	SweepIdle  time.Duration `env:"SOUTHBAG_FEE_SWEEP_IDLE" envDefault:"24h"`
	SweepBatch int           `env:"SOUTHBAG_FEE_SWEEP_BATCH" envDefault:"100"`
	RunOnce    bool          `env:"SOUTHBAG_WORKER_RUN_ONCE"`
}

type BotConfig struct {
	Store    StoreConfig
	Token    string   `env:"DISCORD_TOKEN"`
	Prefix   string   `env:"SOUTHBAG_BOT_PREFIX" envDefault:"!sb"`
	Channels []string `env:"SOUTHBAG_BOT_CHANNELS" envSeparator:","`
}

type CLIConfig struct {
	APIBaseURL string `env:"SOUTHBAG_API_BASE_URL" envDefault:"http://localhost:8080"`
	APIKey     string `env:"SOUTHBAG_API_KEY"`
}

func parse(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *StoreConfig) normalize() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.SQLitePath = strings.TrimSpace(c.SQLitePath)
	switch c.Driver {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SOUTHBAG_SQLITE_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("SOUTHBAG_STORE must be memory, sqlite or postgres, got %q", c.Driver)
	}
	return nil
}

func LoadAPIFromEnv() (APIConfig, error) {
	var cfg APIConfig
	if err := parse(&cfg); err != nil {
		return cfg, err
	}
	if port := strings.TrimSpace(cfg.Port); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	}
	cfg.APIKeyHash = strings.TrimSpace(cfg.APIKeyHash)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	return cfg, cfg.Store.normalize()
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	var cfg WorkerConfig
	if err := parse(&cfg); err != nil {
		return cfg, err
	}
	if cfg.SweepEvery <= 0 {
		return cfg, fmt.Errorf("SOUTHBAG_FEE_SWEEP_EVERY must be positive")
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 100
	}
	return cfg, cfg.Store.normalize()
}

func LoadBotFromEnv() (BotConfig, error) {
	var cfg BotConfig
	if err := parse(&cfg); err != nil {
		return cfg, err
	}
	cfg.Token = strings.TrimSpace(cfg.Token)
	if cfg.Token == "" {
		return cfg, fmt.Errorf("DISCORD_TOKEN is required")
	}
	cfg.Prefix = strings.TrimSpace(cfg.Prefix)
	if cfg.Prefix == "" {
		cfg.Prefix = "!sb"
	}
	channels := cfg.Channels[:0]
	for _, ch := range cfg.Channels {
		if ch = strings.TrimSpace(ch); ch != "" {
			channels = append(channels, ch)
		}
	}
	cfg.Channels = channels
	return cfg, cfg.Store.normalize()
}

func LoadCLIFromEnv() CLIConfig {
	var cfg CLIConfig
	if err := parse(&cfg); err != nil {
		cfg = CLIConfig{APIBaseURL: "http://localhost:8080"}
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	return cfg
}
