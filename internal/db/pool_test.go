package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://localhost:notaport/southbag", nil)
	if err == nil || !strings.Contains(err.Error(), "parse database url") {
		t.Fatalf("err=%v", err)
	}
}

func TestSleepWithContext(t *testing.T) {
	if err := SleepWithContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepWithContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}
