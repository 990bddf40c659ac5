package config

import (
	"testing"
	"time"
)

func TestLoadAPIFromEnvDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SOUTHBAG_STORE", "")
	t.Setenv("SOUTHBAG_API_ADDR", "")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr=%q", cfg.Addr)
	}
	if cfg.Store.Driver != StoreSQLite || cfg.Store.SQLitePath != "southbag.db" {
		t.Fatalf("store=%+v", cfg.Store)
	}
	if cfg.RequestTimeout != 60*time.Second {
		t.Fatalf("timeout=%s", cfg.RequestTimeout)
	}
}

func TestLoadAPIFromEnvPortOverridesAddr(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SOUTHBAG_API_ADDR", ":7070")
	t.Setenv("SOUTHBAG_STORE", "memory")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr=%q", cfg.Addr)
	}
}

func TestPostgresStoreRequiresURL(t *testing.T) {
	t.Setenv("SOUTHBAG_STORE", "Postgres")
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("expected DATABASE_URL error")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/southbag")
	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Driver != StorePostgres {
		t.Fatalf("driver=%q", cfg.Store.Driver)
	}
}

func TestUnknownStoreRejected(t *testing.T) {
	t.Setenv("SOUTHBAG_STORE", "mongo")
	if _, err := LoadWorkerFromEnv(); err == nil {
		t.Fatalf("expected unknown store error")
	}
}

func TestLoadWorkerFromEnv(t *testing.T) {
	t.Setenv("SOUTHBAG_STORE", "memory")
	t.Setenv("SOUTHBAG_FEE_SWEEP_EVERY", "15m")
	t.Setenv("SOUTHBAG_FEE_SWEEP_BATCH", "0")
	t.Setenv("SOUTHBAG_WORKER_RUN_ONCE", "true")

	cfg, err := LoadWorkerFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SweepEvery != 15*time.Minute || cfg.SweepIdle != 24*time.Hour {
		t.Fatalf("durations=%s %s", cfg.SweepEvery, cfg.SweepIdle)
	}
	if cfg.SweepBatch != 100 || !cfg.RunOnce {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadBotFromEnv(t *testing.T) {
	t.Setenv("SOUTHBAG_STORE", "memory")
	t.Setenv("DISCORD_TOKEN", "")
	if _, err := LoadBotFromEnv(); err == nil {
		t.Fatalf("expected missing token error")
	}

	t.Setenv("DISCORD_TOKEN", " abc ")
	t.Setenv("SOUTHBAG_BOT_CHANNELS", "c1, ,c2")
	cfg, err := LoadBotFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Token != "abc" || cfg.Prefix != "!sb" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if len(cfg.Channels) != 2 || cfg.Channels[0] != "c1" || cfg.Channels[1] != "c2" {
		t.Fatalf("channels=%v", cfg.Channels)
	}
}

func TestLoadCLIFromEnv(t *testing.T) {
	t.Setenv("SOUTHBAG_API_BASE_URL", "https://bank.example/ ")
	cfg := LoadCLIFromEnv()
	if cfg.APIBaseURL != "https://bank.example" {
		t.Fatalf("base=%q", cfg.APIBaseURL)
	}
}
