package syncq

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"southbag/internal/cli"
)

func TestPushAndLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	got, err := Load()
	if err != nil || len(got) != 0 {
		t.Fatalf("empty queue: %v %v", got, err)
	}
	a := New(http.MethodPost, "/v1/accounts/u1/freeze", nil)
	b := New(http.MethodPut, "/v1/accounts/u1/status", map[string]any{"status": "active"})
	if a.IdempotencyKey == b.IdempotencyKey || a.IdempotencyKey == "" {
		t.Fatalf("keys %q %q", a.IdempotencyKey, b.IdempotencyKey)
	}
	if err := Push(a); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := Push(b); err != nil {
		t.Fatalf("push: %v", err)
	}
	got, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[1].Body["status"] != "active" || got[0].IdempotencyKey != a.IdempotencyKey {
		t.Fatalf("queue=%+v", got)
	}
}

func TestReplay(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	ok := New(http.MethodPost, "/ok", nil)
	down := New(http.MethodPost, "/down", nil)
	refused := New(http.MethodPost, "/refused", nil)
	for _, c := range []Command{ok, down, refused} {
		if err := Push(c); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	send := func(_ context.Context, c Command) error {
		switch c.Path {
		case "/down":
			return &cli.APIError{Status: http.StatusServiceUnavailable}
		case "/refused":
			return &cli.APIError{Status: http.StatusPaymentRequired}
		}
		return nil
	}
	sent, failures, err := Replay(context.Background(), send)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if sent != 1 || len(failures) != 2 {
		t.Fatalf("sent=%d failures=%+v", sent, failures)
	}
	if failures[0].Dropped || !failures[1].Dropped {
		t.Fatalf("failures=%+v", failures)
	}

	left, _ := Load()
	if len(left) != 1 || left[0].Path != "/down" || left[0].Attempts != 1 {
		t.Fatalf("left=%+v", left)
	}
	if left[0].IdempotencyKey != down.IdempotencyKey {
		t.Fatalf("idempotency key changed")
	}

	sent, failures, err = Replay(context.Background(), func(context.Context, Command) error { return nil })
	if err != nil || sent != 1 || len(failures) != 0 {
		t.Fatalf("second replay sent=%d failures=%v err=%v", sent, failures, err)
	}
}

func TestRetryable(t *testing.T) {
	if !cli.Retryable(errors.New("dial tcp: connection refused")) {
		t.Fatalf("transport error should be retryable")
	}
	if cli.Retryable(&cli.APIError{Status: http.StatusConflict}) {
		t.Fatalf("rejections should not be retried")
	}
	if cli.Retryable(context.Canceled) || cli.Retryable(nil) {
		t.Fatalf("cancel or nil should not be retried")
	}
}
