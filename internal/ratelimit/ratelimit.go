// Package ratelimit evaluates per-action cooldowns against a stored
// last-action timestamp. It never sleeps; callers persist now when allowed.
package ratelimit

import (
	"fmt"
	"time"
)

const (
	BegCooldown   = 60 * time.Second
	DailyCooldown = 24 * time.Hour
	ShiftCooldown = 30 * time.Second
)

type Decision struct {
	Allowed   bool
	Remaining time.Duration
}

// Check allows when lastAt is zero or at least cooldown has elapsed.
func Check(lastAt, now time.Time, cooldown time.Duration) Decision {
	if lastAt.IsZero() {
		return Decision{Allowed: true}
	}
	elapsed := now.Sub(lastAt)
	if elapsed >= cooldown {
		return Decision{Allowed: true}
	}
	return Decision{Remaining: cooldown - elapsed}
}

// Humanize renders a remaining wait as "42s", "3m 5s" or "5h 12m".
func Humanize(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	if d < time.Second {
		d = time.Second
	}
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
