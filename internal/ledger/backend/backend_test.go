package backend

import (
	"context"
	"path/filepath"
	"testing"

	"southbag/internal/config"
	"southbag/internal/ledger/memory"
	"southbag/internal/ledger/sqlite"
)

func TestOpenMemory(t *testing.T) {
	store, err := Open(context.Background(), config.StoreConfig{Driver: config.StoreMemory}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("got %T", store)
	}
}

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := Open(context.Background(), config.StoreConfig{Driver: config.StoreSQLite, SQLitePath: path}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, ok := store.(*sqlite.Store); !ok {
		t.Fatalf("got %T", store)
	}
}

func TestOpenUnknown(t *testing.T) {
	if _, err := Open(context.Background(), config.StoreConfig{Driver: "csv"}, nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
