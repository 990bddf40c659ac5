package game

import (
	"strings"

	"southbag/internal/money"

	"github.com/shopspring/decimal"
)

// Every game draws uniformly and walks its bands in order. A band matches
// when the draw is below its upper bound; earlier bands win.

const (
	Heads = "heads"
	Tails = "tails"
)

func coinflipSide(u float64) string {
	if u < 0.5 {
		return Heads
	}
	return Tails
}

var coinflipPayout = money.MustParse("1.8")

var SlotSymbols = []string{"🍋", "🍒", "💰", "💎", "💀", "🏦", "📉"}

const (
	slotGem      = "💎"
	slotMoneybag = "💰"
	slotSkull    = "💀"
)

func slotSymbol(u float64) string {
	i := int(u * float64(len(SlotSymbols)))
	if i >= len(SlotSymbols) {
		i = len(SlotSymbols) - 1
	}
	return SlotSymbols[i]
}

func slotsMultiplier(reels [3]string) decimal.Decimal {
	a, b, c := reels[0], reels[1], reels[2]
	switch {
	case a == b && b == c:
		switch a {
		case slotGem:
			return decimal.NewFromInt(10)
		case slotMoneybag:
			return decimal.NewFromInt(7)
		case slotSkull:
			return decimal.NewFromInt(-3)
		}
		return decimal.NewFromInt(5)
	case a == b || b == c || a == c:
		return money.MustParse("1.5")
	}
	return money.Zero
}

type cardBand struct {
	below      float64
	multiplier decimal.Decimal
	outcome    string
}

var cardBands = []cardBand{
	{1, decimal.NewFromInt(15), "JACKPOT"},
	{5, decimal.NewFromInt(5), "Big win"},
	{15, decimal.NewFromInt(3), "Nice win"},
	{35, money.MustParse("1.5"), "Small win"},
	{50, money.MustParse("0.9"), "Break even (house fee applied)"},
	{85, money.Zero, "Loss"},
	{95, decimal.NewFromInt(-1), "Double loss"},
	{100, decimal.NewFromInt(-2), "Catastrophic loss"},
}

// cardOutcome takes a roll in [0,100).
func cardOutcome(roll float64) (decimal.Decimal, string) {
	for _, b := range cardBands {
		if roll < b.below {
			return b.multiplier, b.outcome
		}
	}
	last := cardBands[len(cardBands)-1]
	return last.multiplier, last.outcome
}

// settleBet turns a multiplier into payout and net change. Negative
// multipliers cost the bet plus bet*|m| on top.
func settleBet(bet, multiplier decimal.Decimal) (payout, net decimal.Decimal) {
	switch {
	case multiplier.IsPositive():
		payout = money.Cents(bet.Mul(multiplier))
		return payout, payout.Sub(bet)
	case multiplier.IsNegative():
		penalty := money.Cents(bet.Mul(multiplier.Abs()))
		return money.Zero, bet.Add(penalty).Neg()
	}
	return money.Zero, bet.Neg()
}

type BegOutcome string

const (
	BegDenied  BegOutcome = "denied"
	BegTiny    BegOutcome = "tiny"
	BegDecent  BegOutcome = "decent"
	BegReverse BegOutcome = "reverse"
	BegJackpot BegOutcome = "jackpot"
)

func begOutcome(u float64) BegOutcome {
	switch {
	case u < 0.50:
		return BegDenied
	case u < 0.70:
		return BegTiny
	case u < 0.85:
		return BegDecent
	case u < 0.95:
		return BegReverse
	}
	return BegJackpot
}

// begAmount draws the unsigned amount for an outcome.
func begAmount(o BegOutcome, u float64) decimal.Decimal {
	switch o {
	case BegTiny:
		return money.Milli(money.Uniform(u, money.MustParse("0.009"), money.MustParse("0.001")))
	case BegDecent, BegReverse:
		return money.Cents(money.Uniform(u, money.MustParse("0.04"), money.MustParse("0.01")))
	case BegJackpot:
		return money.Cents(money.Uniform(u, money.MustParse("0.40"), money.MustParse("0.10")))
	}
	return money.Zero
}

type WorkEvent string

const (
	WorkNormal   WorkEvent = "normal"
	WorkOvertime WorkEvent = "overtime"
	WorkDocked   WorkEvent = "docked"
	WorkIncident WorkEvent = "incident"
)

func workEvent(u float64) WorkEvent {
	switch {
	case u < 0.10:
		return WorkOvertime
	case u < 0.20:
		return WorkDocked
	case u < 0.25:
		return WorkIncident
	}
	return WorkNormal
}

const (
	MaxHeistCrew = 5
	MinHeistCrew = 2
)

var (
	heistBase = money.MustParse("0.30")
	heistStep = money.MustParse("0.10")
	heistCap  = money.MustParse("0.80")
)

// HeistChance is min(0.30 + 0.10*crew, 0.80), exact in decimal.
func HeistChance(crew int) decimal.Decimal {
	c := heistBase.Add(heistStep.Mul(decimal.NewFromInt(int64(crew))))
	return decimal.Min(c, heistCap)
}

// ParseSide accepts "heads"/"tails" and their first letters.
func ParseSide(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "heads", "h":
		return Heads, true
	case "tails", "t":
		return Tails, true
	}
	return "", false
}
