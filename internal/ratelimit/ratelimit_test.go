package ratelimit

import (
	"testing"
	"time"
)

func TestCheck(t *testing.T) {
	now := time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		lastAt    time.Time
		cooldown  time.Duration
		allowed   bool
		remaining time.Duration
	}{
		{name: "never", lastAt: time.Time{}, cooldown: BegCooldown, allowed: true},
		{name: "expired", lastAt: now.Add(-61 * time.Second), cooldown: BegCooldown, allowed: true},
		{name: "exact boundary", lastAt: now.Add(-BegCooldown), cooldown: BegCooldown, allowed: true},
		{name: "beg pending", lastAt: now.Add(-20 * time.Second), cooldown: BegCooldown, remaining: 40 * time.Second},
		{name: "daily pending", lastAt: now.Add(-23 * time.Hour), cooldown: DailyCooldown, remaining: time.Hour},
		{name: "shift pending", lastAt: now.Add(-1 * time.Millisecond), cooldown: ShiftCooldown, remaining: ShiftCooldown - time.Millisecond},
	}
	for _, tc := range tests {
		got := Check(tc.lastAt, now, tc.cooldown)
		if got.Allowed != tc.allowed {
			t.Fatalf("%s: allowed=%v want %v", tc.name, got.Allowed, tc.allowed)
		}
		if got.Remaining != tc.remaining {
			t.Fatalf("%s: remaining=%s want %s", tc.name, got.Remaining, tc.remaining)
		}
	}
}

func TestHumanize(t *testing.T) {
	tests := map[time.Duration]string{
		0:                                 "0s",
		400 * time.Millisecond:            "1s",
		42 * time.Second:                  "42s",
		3*time.Minute + 5*time.Second:     "3m 5s",
		5*time.Hour + 12*time.Minute + 9:  "5h 12m",
		23*time.Hour + 59*time.Minute + 1: "23h 59m",
	}
	for in, want := range tests {
		if got := Humanize(in); got != want {
			t.Fatalf("Humanize(%s)=%q want %q", in, got, want)
		}
	}
}
