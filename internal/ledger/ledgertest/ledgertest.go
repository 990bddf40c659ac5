// Package ledgertest is the behavioural suite every ledger.Store backend
// runs from its own tests.
package ledgertest

import (
	"context"
	"errors"
	"testing"
	"time"

	"southbag/internal/ledger"
	"southbag/internal/money"
)

// Opener returns an empty store. The suite closes it.
type Opener func(t *testing.T) ledger.Store

var base = time.Date(2026, time.April, 1, 9, 30, 0, 0, time.UTC)

func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s ledger.Store)
	}{
		{"AccountLifecycle", testAccountLifecycle},
		{"AccountsFeeDue", testAccountsFeeDue},
		{"TransactionsOrdering", testTransactionsOrdering},
		{"RollbackOnError", testRollbackOnError},
		{"Loans", testLoans},
		{"Holdings", testHoldings},
		{"Insurance", testInsurance},
		{"Jobs", testJobs},
		{"Heists", testHeists},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func atomic(t *testing.T, s ledger.Store, fn func(tx ledger.Tx) error) {
	t.Helper()
	if err := s.RunAtomic(context.Background(), fn); err != nil {
		t.Fatalf("run atomic: %v", err)
	}
}

func testAccountLifecycle(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	var inserted ledger.Account
	atomic(t, s, func(tx ledger.Tx) error {
		if _, err := tx.GetAccount(ctx, "u1"); !errors.Is(err, ledger.ErrNotFound) {
			t.Fatalf("expected not found before insert, got %v", err)
		}
		var err error
		inserted, err = tx.InsertAccount(ctx, ledger.Account{
			OwnerID:       "u1",
			AccountNumber: "1234-SBAG-56789-Q",
			Name:          "Ursula",
			Balance:       money.MustParse("1.225"),
			Status:        ledger.StatusActive,
			CreatedAt:     base,
			LastFeeAt:     base,
		})
		return err
	})
	if inserted.ID == 0 {
		t.Fatalf("expected assigned id")
	}

	err := s.RunAtomic(ctx, func(tx ledger.Tx) error {
		_, err := tx.InsertAccount(ctx, ledger.Account{OwnerID: "u1", Status: ledger.StatusActive, CreatedAt: base})
		return err
	})
	if !errors.Is(err, ledger.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}

	balance := money.MustParse("-0.42")
	status := ledger.StatusSuspicious
	tier := 3
	notify := true
	begAt := base.Add(time.Minute)
	atomic(t, s, func(tx ledger.Tx) error {
		return tx.PatchAccount(ctx, "u1", ledger.AccountPatch{
			Balance:       &balance,
			Status:        &status,
			Tier:          &tier,
			Notifications: &notify,
			LastBegAt:     &begAt,
		})
	})

	atomic(t, s, func(tx ledger.Tx) error {
		got, err := tx.GetAccount(ctx, "u1")
		if err != nil {
			return err
		}
		if got.AccountNumber != "1234-SBAG-56789-Q" || got.Name != "Ursula" {
			t.Fatalf("unexpected identity fields: %+v", got)
		}
		if !got.Balance.Equal(balance) {
			t.Fatalf("balance=%s want %s", got.Balance, balance)
		}
		if got.Status != status || got.Tier != tier || !got.Notifications {
			t.Fatalf("patch not applied: %+v", got)
		}
		if !got.LastBegAt.Equal(begAt) {
			t.Fatalf("last beg at=%s want %s", got.LastBegAt, begAt)
		}
		if !got.LastDailyAt.IsZero() {
			t.Fatalf("expected zero last daily, got %s", got.LastDailyAt)
		}
		if !got.CreatedAt.Equal(base) {
			t.Fatalf("created at=%s want %s", got.CreatedAt, base)
		}
		return nil
	})

	err = s.RunAtomic(ctx, func(tx ledger.Tx) error {
		return tx.PatchAccount(ctx, "ghost", ledger.AccountPatch{Status: &status})
	})
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found patching ghost, got %v", err)
	}
}

func testAccountsFeeDue(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	atomic(t, s, func(tx ledger.Tx) error {
		for i, owner := range []string{"fresh", "stale", "staler", "never"} {
			a := ledger.Account{OwnerID: owner, Status: ledger.StatusActive, Balance: money.Zero, CreatedAt: base}
			switch owner {
			case "fresh":
				a.LastFeeAt = base.Add(2 * time.Hour)
			case "stale":
				a.LastFeeAt = base.Add(-1 * time.Hour)
			case "staler":
				a.LastFeeAt = base.Add(-3 * time.Hour)
			}
			if _, err := tx.InsertAccount(ctx, a); err != nil {
				t.Fatalf("insert %d: %v", i, err)
			}
		}
		return nil
	})
	atomic(t, s, func(tx ledger.Tx) error {
		due, err := tx.ListAccountsFeeDue(ctx, base, 0)
		if err != nil {
			return err
		}
		if len(due) != 3 {
			t.Fatalf("expected 3 due accounts, got %d", len(due))
		}
		if due[0].OwnerID != "never" || due[1].OwnerID != "staler" || due[2].OwnerID != "stale" {
			t.Fatalf("unexpected order: %s %s %s", due[0].OwnerID, due[1].OwnerID, due[2].OwnerID)
		}
		limited, err := tx.ListAccountsFeeDue(ctx, base, 1)
		if err != nil {
			return err
		}
		if len(limited) != 1 {
			t.Fatalf("expected limit 1, got %d", len(limited))
		}
		return nil
	})
}

func testTransactionsOrdering(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	rows := []ledger.Transaction{
		{OwnerID: "u1", BatchID: "b1", Kind: ledger.KindDeposit, Amount: money.MustParse("1.23"), Description: "open", BalanceAfter: money.MustParse("1.23"), CreatedAt: base},
		{OwnerID: "u1", BatchID: "b1", Kind: ledger.KindFee, Amount: money.MustParse("-0.005"), Description: "fee", BalanceAfter: money.MustParse("1.225"), CreatedAt: base.Add(time.Millisecond)},
		{OwnerID: "u2", BatchID: "b2", Kind: ledger.KindDeposit, Amount: money.MustParse("3.50"), Description: "other", BalanceAfter: money.MustParse("3.50"), CreatedAt: base},
		{OwnerID: "u1", BatchID: "b3", Kind: ledger.KindTransfer, Amount: money.MustParse("-1"), Description: "transfer", BalanceAfter: money.MustParse("0.225"), CreatedAt: base.Add(time.Second)},
	}
	atomic(t, s, func(tx ledger.Tx) error {
		return tx.InsertTransactions(ctx, rows)
	})
	atomic(t, s, func(tx ledger.Tx) error {
		got, err := tx.ListTransactions(ctx, "u1", 0)
		if err != nil {
			return err
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 rows for u1, got %d", len(got))
		}
		if got[0].Description != "transfer" || got[1].Description != "fee" || got[2].Description != "open" {
			t.Fatalf("expected newest first, got %q %q %q", got[0].Description, got[1].Description, got[2].Description)
		}
		if !got[1].Amount.Equal(money.MustParse("-0.005")) || got[1].Kind != ledger.KindFee || got[1].BatchID != "b1" {
			t.Fatalf("fee row mismatch: %+v", got[1])
		}
		if got[0].ID == 0 || got[0].ID == got[1].ID {
			t.Fatalf("expected distinct ids, got %d %d", got[0].ID, got[1].ID)
		}
		limited, err := tx.ListTransactions(ctx, "u1", 2)
		if err != nil {
			return err
		}
		if len(limited) != 2 || limited[0].Description != "transfer" {
			t.Fatalf("limit mismatch: %+v", limited)
		}
		n, err := tx.DeleteTransactions(ctx, "u1")
		if err != nil {
			return err
		}
		if n != 3 {
			t.Fatalf("deleted %d rows, want 3", n)
		}
		left, err := tx.ListTransactions(ctx, "u2", 0)
		if err != nil {
			return err
		}
		if len(left) != 1 {
			t.Fatalf("expected u2 rows untouched, got %d", len(left))
		}
		return nil
	})
}

func testRollbackOnError(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.RunAtomic(ctx, func(tx ledger.Tx) error {
		if _, err := tx.InsertAccount(ctx, ledger.Account{OwnerID: "u1", Status: ledger.StatusActive, Balance: money.New(1), CreatedAt: base}); err != nil {
			return err
		}
		if err := tx.InsertTransactions(ctx, []ledger.Transaction{{OwnerID: "u1", BatchID: "b", Kind: ledger.KindDeposit, Amount: money.New(1), BalanceAfter: money.New(1), CreatedAt: base}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	atomic(t, s, func(tx ledger.Tx) error {
		if _, err := tx.GetAccount(ctx, "u1"); !errors.Is(err, ledger.ErrNotFound) {
			t.Fatalf("expected rolled back account, got %v", err)
		}
		rows, err := tx.ListTransactions(ctx, "u1", 0)
		if err != nil {
			return err
		}
		if len(rows) != 0 {
			t.Fatalf("expected rolled back rows, got %d", len(rows))
		}
		return nil
	})
}

func testLoans(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	var loan ledger.Loan
	atomic(t, s, func(tx ledger.Tx) error {
		if _, err := tx.GetActiveLoan(ctx, "u1"); !errors.Is(err, ledger.ErrNotFound) {
			t.Fatalf("expected no loan, got %v", err)
		}
		var err error
		loan, err = tx.InsertLoan(ctx, ledger.Loan{
			OwnerID:   "u1",
			Principal: money.MustParse("5.00"),
			Rate:      money.MustParse("0.20"),
			Status:    ledger.LoanActive,
			TakenAt:   base,
		})
		return err
	})
	atomic(t, s, func(tx ledger.Tx) error {
		got, err := tx.GetActiveLoan(ctx, "u1")
		if err != nil {
			return err
		}
		if got.ID != loan.ID || !got.Principal.Equal(money.New(5)) || !got.Rate.Equal(money.MustParse("0.2")) {
			t.Fatalf("loan mismatch: %+v", got)
		}
		if !got.TakenAt.Equal(base) || !got.ClosedAt.IsZero() {
			t.Fatalf("loan times mismatch: %+v", got)
		}
		status := ledger.LoanPaid
		owed := money.MustParse("6.00")
		closed := base.Add(time.Hour)
		return tx.PatchLoan(ctx, loan.ID, ledger.LoanPatch{Status: &status, TotalOwed: &owed, ClosedAt: &closed})
	})
	atomic(t, s, func(tx ledger.Tx) error {
		if _, err := tx.GetActiveLoan(ctx, "u1"); !errors.Is(err, ledger.ErrNotFound) {
			t.Fatalf("expected paid loan to be inactive, got %v", err)
		}
		return nil
	})
}

func testHoldings(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	atomic(t, s, func(tx ledger.Tx) error {
		for _, h := range []ledger.Holding{
			{OwnerID: "u1", Coin: "SBAG", Quantity: money.MustParse("0.95238"), BoughtAt: money.MustParse("1.05"), CreatedAt: base},
			{OwnerID: "u1", Coin: "SBAG", Quantity: money.MustParse("0.5"), BoughtAt: money.MustParse("0.98"), CreatedAt: base.Add(time.Second)},
			{OwnerID: "u1", Coin: "RUG", Quantity: money.MustParse("0.01"), BoughtAt: money.MustParse("4.9"), CreatedAt: base},
			{OwnerID: "u2", Coin: "SBAG", Quantity: money.MustParse("1"), BoughtAt: money.MustParse("1"), CreatedAt: base},
		} {
			if _, err := tx.InsertHolding(ctx, h); err != nil {
				return err
			}
		}
		return nil
	})
	atomic(t, s, func(tx ledger.Tx) error {
		got, err := tx.ListHoldings(ctx, "u1")
		if err != nil {
			return err
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 holdings, got %d", len(got))
		}
		if !got[0].Quantity.Equal(money.MustParse("0.95238")) {
			t.Fatalf("quantity precision lost: %s", got[0].Quantity)
		}
		n, err := tx.DeleteHoldings(ctx, "u1", "SBAG")
		if err != nil {
			return err
		}
		if n != 2 {
			t.Fatalf("deleted %d holdings, want 2", n)
		}
		left, err := tx.ListHoldings(ctx, "u1")
		if err != nil {
			return err
		}
		if len(left) != 1 || left[0].Coin != "RUG" {
			t.Fatalf("unexpected remaining holdings: %+v", left)
		}
		other, err := tx.ListHoldings(ctx, "u2")
		if err != nil {
			return err
		}
		if len(other) != 1 {
			t.Fatalf("expected other owner untouched")
		}
		return nil
	})
}

func testInsurance(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	atomic(t, s, func(tx ledger.Tx) error {
		if _, err := tx.GetInsurance(ctx, "u1"); !errors.Is(err, ledger.ErrNotFound) {
			t.Fatalf("expected no policy, got %v", err)
		}
		_, err := tx.PutInsurance(ctx, ledger.Insurance{OwnerID: "u1", Plan: "basic", Premium: money.MustParse("0.10"), CoveredUntil: base.Add(time.Hour), CreatedAt: base})
		return err
	})
	atomic(t, s, func(tx ledger.Tx) error {
		_, err := tx.PutInsurance(ctx, ledger.Insurance{OwnerID: "u1", Plan: "gold", Premium: money.MustParse("0.50"), CoveredUntil: base.Add(25 * time.Hour), CreatedAt: base.Add(time.Hour)})
		return err
	})
	atomic(t, s, func(tx ledger.Tx) error {
		got, err := tx.GetInsurance(ctx, "u1")
		if err != nil {
			return err
		}
		if got.Plan != "gold" || !got.Premium.Equal(money.MustParse("0.5")) {
			t.Fatalf("expected overwritten policy, got %+v", got)
		}
		if !got.CoveredUntil.Equal(base.Add(25 * time.Hour)) {
			t.Fatalf("covered until=%s", got.CoveredUntil)
		}
		if !got.CreatedAt.Equal(base) {
			t.Fatalf("expected original created at, got %s", got.CreatedAt)
		}
		return nil
	})
}

func testJobs(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	atomic(t, s, func(tx ledger.Tx) error {
		_, err := tx.InsertJob(ctx, ledger.Job{OwnerID: "u1", Title: "Hold Music DJ", Salary: money.New(6), HiredAt: base})
		return err
	})
	err := s.RunAtomic(ctx, func(tx ledger.Tx) error {
		_, err := tx.InsertJob(ctx, ledger.Job{OwnerID: "u1", Title: "Vibe Coder", Salary: money.New(2), HiredAt: base})
		return err
	})
	if !errors.Is(err, ledger.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	worked := base.Add(time.Minute)
	atomic(t, s, func(tx ledger.Tx) error {
		got, err := tx.GetJob(ctx, "u1")
		if err != nil {
			return err
		}
		if got.Title != "Hold Music DJ" || !got.LastWorkedAt.IsZero() {
			t.Fatalf("unexpected job: %+v", got)
		}
		return tx.TouchJob(ctx, "u1", worked)
	})
	atomic(t, s, func(tx ledger.Tx) error {
		got, err := tx.GetJob(ctx, "u1")
		if err != nil {
			return err
		}
		if !got.LastWorkedAt.Equal(worked) {
			t.Fatalf("last worked=%s want %s", got.LastWorkedAt, worked)
		}
		if err := tx.DeleteJob(ctx, "u1"); err != nil {
			return err
		}
		if _, err := tx.GetJob(ctx, "u1"); !errors.Is(err, ledger.ErrNotFound) {
			t.Fatalf("expected deleted job, got %v", err)
		}
		if err := tx.DeleteJob(ctx, "u1"); !errors.Is(err, ledger.ErrNotFound) {
			t.Fatalf("expected not found on second delete, got %v", err)
		}
		return nil
	})
}

func testHeists(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	var first ledger.Heist
	atomic(t, s, func(tx ledger.Tx) error {
		var err error
		first, err = tx.InsertHeist(ctx, ledger.Heist{ChannelID: "c1", OrganizerID: "u1", Participants: []string{"u1"}, Status: ledger.HeistRecruiting, CreatedAt: base})
		if err != nil {
			return err
		}
		_, err = tx.InsertHeist(ctx, ledger.Heist{ChannelID: "c2", OrganizerID: "u9", Participants: []string{"u9"}, Status: ledger.HeistRecruiting, CreatedAt: base})
		return err
	})
	atomic(t, s, func(tx ledger.Tx) error {
		return tx.PatchHeist(ctx, first.ID, ledger.HeistPatch{Participants: []string{"u1", "u2", "u3"}})
	})
	atomic(t, s, func(tx ledger.Tx) error {
		got, err := tx.ListHeists(ctx, "c1", ledger.HeistRecruiting)
		if err != nil {
			return err
		}
		if len(got) != 1 {
			t.Fatalf("expected one recruiting heist, got %d", len(got))
		}
		if len(got[0].Participants) != 3 || got[0].Participants[2] != "u3" {
			t.Fatalf("participants=%v", got[0].Participants)
		}
		if !got[0].HasParticipant("u2") || got[0].HasParticipant("u9") {
			t.Fatalf("participant lookup mismatch")
		}
		status := ledger.HeistCompleted
		done := base.Add(time.Hour)
		return tx.PatchHeist(ctx, first.ID, ledger.HeistPatch{Status: &status, CompletedAt: &done})
	})
	atomic(t, s, func(tx ledger.Tx) error {
		recruiting, err := tx.ListHeists(ctx, "c1", ledger.HeistRecruiting)
		if err != nil {
			return err
		}
		if len(recruiting) != 0 {
			t.Fatalf("expected no recruiting heist after completion")
		}
		all, err := tx.ListHeists(ctx, "c1", "")
		if err != nil {
			return err
		}
		if len(all) != 1 || all[0].Status != ledger.HeistCompleted || !all[0].CompletedAt.Equal(base.Add(time.Hour)) {
			t.Fatalf("unexpected heists: %+v", all)
		}
		return nil
	})
}
