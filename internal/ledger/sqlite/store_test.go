package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"southbag/internal/ledger"
	"southbag/internal/ledger/ledgertest"
	"southbag/internal/money"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "southbag.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestStore(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store {
		return openTempStore(t)
	})
}

func TestReopenKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "southbag.db")
	ctx := context.Background()
	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	err = store.RunAtomic(ctx, func(tx ledger.Tx) error {
		_, err := tx.InsertAccount(ctx, ledger.Account{
			OwnerID:       "u1",
			AccountNumber: "1000-SBAG-10000-A",
			Name:          "Uma",
			Balance:       money.MustParse("0.985"),
			Status:        ledger.StatusActive,
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert account: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	err = reopened.RunAtomic(ctx, func(tx ledger.Tx) error {
		got, err := tx.GetAccount(ctx, "u1")
		if err != nil {
			return err
		}
		if !got.Balance.Equal(money.MustParse("0.985")) {
			t.Fatalf("balance=%s", got.Balance)
		}
		if !got.CreatedAt.IsZero() {
			t.Fatalf("expected zero created at to round trip, got %s", got.CreatedAt)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read account: %v", err)
	}
}

func TestMillisRoundTrip(t *testing.T) {
	if got := fromMillis(0); !got.IsZero() {
		t.Fatalf("expected zero time, got %s", got)
	}
	if got := toMillis(fromMillis(1_775_000_000_123)); got != 1_775_000_000_123 {
		t.Fatalf("got %d", got)
	}
}
