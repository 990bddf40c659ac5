package game

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"southbag/internal/money"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return money.MustParse(s) }

func TestErrorMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", insufficient(d("1.00"), d("2.82")))
	if !errors.Is(err, ErrInsufficient) {
		t.Fatalf("expected insufficient match")
	}
	if errors.Is(err, ErrFrozen) {
		t.Fatalf("unexpected frozen match")
	}
	if !IsRejection(err) || RejectionCode(err) != CodeInsufficient {
		t.Fatalf("code=%q", RejectionCode(err))
	}
	if got := err.Error(); got != "wrapped: insufficient: balance $1.00, needed $2.82" {
		t.Fatalf("message=%q", got)
	}
	if got := cooldown(42 * time.Second).Error(); got != "cooldown: 42s remaining" {
		t.Fatalf("cooldown message=%q", got)
	}
}

func TestStorageErrorIsNotRejection(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrStorage, errors.New("connection refused"))
	if IsRejection(err) {
		t.Fatalf("storage failure reported as rejection")
	}
	if RejectionCode(err) != "" {
		t.Fatalf("unexpected code")
	}
}

func TestNormalizeAmount(t *testing.T) {
	got, err := normalizeAmount(d("1.005"))
	if err != nil || !got.Equal(d("1.01")) {
		t.Fatalf("got=%s err=%v", got, err)
	}
	for _, bad := range []string{"0", "0.004", "-1"} {
		if _, err := normalizeAmount(d(bad)); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%s: expected invalid amount, got %v", bad, err)
		}
	}
}

func TestCoinflipSide(t *testing.T) {
	if coinflipSide(0) != Heads || coinflipSide(0.4999) != Heads || coinflipSide(0.5) != Tails {
		t.Fatalf("band boundary wrong")
	}
	if side, ok := ParseSide(" T "); !ok || side != Tails {
		t.Fatalf("side=%q ok=%v", side, ok)
	}
	if _, ok := ParseSide("edge"); ok {
		t.Fatalf("edge accepted")
	}
}

func TestSlotsMultiplier(t *testing.T) {
	tests := []struct {
		reels [3]string
		want  string
	}{
		{[3]string{"💎", "💎", "💎"}, "10"},
		{[3]string{"💰", "💰", "💰"}, "7"},
		{[3]string{"💀", "💀", "💀"}, "-3"},
		{[3]string{"🍋", "🍋", "🍋"}, "5"},
		{[3]string{"🍋", "💀", "🍋"}, "1.5"},
		{[3]string{"🍋", "🍒", "💰"}, "0"},
	}
	for _, tc := range tests {
		if got := slotsMultiplier(tc.reels); !got.Equal(d(tc.want)) {
			t.Fatalf("%v: got=%s want=%s", tc.reels, got, tc.want)
		}
	}
	if slotSymbol(0) != "🍋" || slotSymbol(0.9999) != "📉" || slotSymbol(4.0/7+0.01) != "💀" {
		t.Fatalf("symbol mapping wrong")
	}
}

func TestCardOutcomeBands(t *testing.T) {
	tests := []struct {
		roll float64
		want string
	}{
		{0, "15"}, {0.99, "15"}, {1, "5"}, {4.99, "5"}, {5, "3"}, {14.99, "3"},
		{15, "1.5"}, {34.99, "1.5"}, {35, "0.9"}, {49.99, "0.9"}, {50, "0"},
		{84.99, "0"}, {85, "-1"}, {94.99, "-1"}, {95, "-2"}, {99.99, "-2"},
	}
	for _, tc := range tests {
		if got, _ := cardOutcome(tc.roll); !got.Equal(d(tc.want)) {
			t.Fatalf("roll=%v got=%s want=%s", tc.roll, got, tc.want)
		}
	}
}

func TestSettleBet(t *testing.T) {
	tests := []struct {
		bet, mult, payout, net string
	}{
		{"1.00", "1.8", "1.80", "0.80"},
		{"2.00", "-3", "0", "-8.00"},
		{"1.00", "0.9", "0.90", "-0.10"},
		{"1.00", "0", "0", "-1.00"},
		{"0.33", "1.5", "0.50", "0.17"},
	}
	for _, tc := range tests {
		payout, net := settleBet(d(tc.bet), d(tc.mult))
		if !payout.Equal(d(tc.payout)) || !net.Equal(d(tc.net)) {
			t.Fatalf("bet=%s mult=%s payout=%s net=%s", tc.bet, tc.mult, payout, net)
		}
	}
}

func TestBegBands(t *testing.T) {
	tests := []struct {
		u    float64
		want BegOutcome
	}{
		{0, BegDenied}, {0.4999, BegDenied}, {0.5, BegTiny}, {0.6999, BegTiny},
		{0.7, BegDecent}, {0.85, BegReverse}, {0.9499, BegReverse}, {0.95, BegJackpot},
	}
	for _, tc := range tests {
		if got := begOutcome(tc.u); got != tc.want {
			t.Fatalf("u=%v got=%s want=%s", tc.u, got, tc.want)
		}
	}
	if got := begAmount(BegTiny, 0.5); !got.Equal(d("0.006")) {
		t.Fatalf("tiny=%s", got)
	}
	if got := begAmount(BegJackpot, 0.999); !got.Equal(d("0.50")) {
		t.Fatalf("jackpot=%s", got)
	}
	if !begAmount(BegDenied, 0.9).IsZero() {
		t.Fatalf("denied pays")
	}
}

func TestWorkEventBands(t *testing.T) {
	if workEvent(0.05) != WorkOvertime || workEvent(0.1) != WorkDocked || workEvent(0.2) != WorkIncident || workEvent(0.25) != WorkNormal {
		t.Fatalf("work bands wrong")
	}
}

func TestHeistChance(t *testing.T) {
	tests := []struct {
		crew int
		want string
	}{
		{1, "0.4"}, {2, "0.5"}, {3, "0.6"}, {4, "0.7"}, {5, "0.8"}, {6, "0.8"},
	}
	for _, tc := range tests {
		if got := HeistChance(tc.crew); !got.Equal(d(tc.want)) {
			t.Fatalf("crew=%d got=%s want=%s", tc.crew, got, tc.want)
		}
	}
}

func TestOwed(t *testing.T) {
	p, r := d("5.00"), d("0.20")
	if got := Owed(p, r, 0); !got.Equal(p) {
		t.Fatalf("owed at zero=%s", got)
	}
	if got := Owed(p, r, time.Hour); !got.Equal(d("6.00")) {
		t.Fatalf("owed after 1h=%s", got)
	}
	if got := Owed(p, r, 2*time.Hour); !got.Equal(d("7.20")) {
		t.Fatalf("owed after 2h=%s", got)
	}
	// 5 * 1.2^0.5 = 5.477...
	if got := Owed(p, r, 30*time.Minute); !got.Equal(d("5.48")) {
		t.Fatalf("owed after 30m=%s", got)
	}
	prev := Owed(p, r, 0)
	for h := 1; h <= 48; h++ {
		next := Owed(p, r, time.Duration(h)*15*time.Minute)
		if !next.GreaterThan(prev) {
			t.Fatalf("owed not increasing at step %d: %s <= %s", h, next, prev)
		}
		prev = next
	}
}

func TestKeyedMutexSortsKeys(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.lock("b", "a", "b")
	if len(k.locks) != 2 {
		t.Fatalf("locks=%d", len(k.locks))
	}
	done := make(chan struct{})
	go func() {
		u := k.lock("a", "c")
		u()
		close(done)
	}()
	select {
	case <-done:
		t.Fatalf("second lock acquired while first held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-done
	if len(k.locks) != 0 {
		t.Fatalf("entries leaked: %d", len(k.locks))
	}
}
