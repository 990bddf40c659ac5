package cli

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"southbag/internal/api"
	"southbag/internal/auth"
	"southbag/internal/config"
	"southbag/internal/game"
	"southbag/internal/ledger"
	"southbag/internal/ledger/memory"
	"southbag/internal/money"

	"golang.org/x/crypto/bcrypt"
)

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

func newAPI(t *testing.T, key string) *httptest.Server {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	keys, err := auth.NewKeyVerifier(string(hash))
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	svc := game.NewService(memory.New(), nil, game.WithRandom(fixedRand(0.35)))
	srv := httptest.NewServer(api.New(config.APIConfig{}, nil, keys, svc).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestClientAgainstAPI(t *testing.T) {
	srv := newAPI(t, "k")
	c := NewClient(srv.URL+"/", "k")
	ctx := context.Background()

	acct, err := c.Open(ctx, "u1", "Dana", "open-u1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if acct.Balance.String() != "1.225" || acct.Name != "Dana" {
		t.Fatalf("account=%+v", acct)
	}
	again, err := c.Open(ctx, "u1", "Dana", "open-u1")
	if err != nil || again.AccountNumber != acct.AccountNumber {
		t.Fatalf("replayed open: %+v %v", again, err)
	}

	rows, err := c.History(ctx, "u1", 10)
	if err != nil || len(rows) != 2 {
		t.Fatalf("history=%v err=%v", rows, err)
	}
	if err := c.Freeze(ctx, "u1", ""); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if err := c.SetStatus(ctx, "u1", ledger.StatusActive, ""); err != nil {
		t.Fatalf("status: %v", err)
	}

	coins, err := c.Prices(ctx)
	if err != nil || len(coins) != 5 {
		t.Fatalf("prices=%v err=%v", coins, err)
	}

	res, err := c.TakeLoan(ctx, "u1", money.MustParse("5"), "")
	if err != nil || !res.Loan.Principal.Equal(money.MustParse("5")) {
		t.Fatalf("loan=%+v err=%v", res, err)
	}
	view, err := c.LoanStatus(ctx, "u1")
	if err != nil || view.Loan.Status != ledger.LoanActive {
		t.Fatalf("loan status=%+v err=%v", view, err)
	}

	n, err := c.ClearHistory(ctx, "u1", "")
	if err != nil || n == 0 {
		t.Fatalf("clear=%d err=%v", n, err)
	}
}

func TestClientDecodesRejections(t *testing.T) {
	srv := newAPI(t, "k")
	ctx := context.Background()

	_, err := NewClient(srv.URL, "wrong").Account(ctx, "u1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("err=%v", err)
	}

	_, err = NewClient(srv.URL, "k").Account(ctx, "ghost")
	if !errors.As(err, &apiErr) || apiErr.Rejection == nil || apiErr.Rejection.Code != game.CodeNoAccount {
		t.Fatalf("err=%v", err)
	}
	if Retryable(err) {
		t.Fatalf("a rejection is not retryable")
	}
}

func TestSettings(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	s, err := LoadSettings()
	if err != nil || s != (Settings{}) {
		t.Fatalf("fresh settings=%+v err=%v", s, err)
	}
	if err := SaveSettings(Settings{BaseURL: "http://bank", APIKey: "k"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	s, err = LoadSettings()
	if err != nil || s.APIKey != "k" {
		t.Fatalf("settings=%+v err=%v", s, err)
	}

	merged := Settings{BaseURL: "http://override/"}.Merge(s)
	if merged.BaseURL != "http://override" || merged.APIKey != "k" {
		t.Fatalf("merged=%+v", merged)
	}
	if err := ClearSettings(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := ClearSettings(); err != nil {
		t.Fatalf("clear twice: %v", err)
	}
}
