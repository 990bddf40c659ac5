package game

import (
	"context"
	"fmt"
	"strings"
	"time"

	"southbag/internal/ledger"

	"github.com/shopspring/decimal"
)

// wager runs the shared bet flow: validate, draw, settle, post one row.
func (s *Service) wager(ctx context.Context, owner string, bet decimal.Decimal, play func(res *GambleResult)) (GambleResult, error) {
	var out GambleResult
	bet, err := normalizeAmount(bet)
	if err != nil {
		return out, err
	}
	err = s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		j := newJournal(tx, now)
		if _, err := j.usable(ctx, owner); err != nil {
			return err
		}
		if err := j.afford(owner, bet); err != nil {
			return err
		}
		res := GambleResult{Bet: bet}
		play(&res)
		res.Payout, res.Net = settleBet(bet, res.Multiplier)
		res.Won = res.Multiplier.IsPositive()
		kind := ledger.KindWithdrawal
		if res.Net.IsPositive() {
			kind = ledger.KindDeposit
		}
		res.Balance = j.post(owner, kind, res.Net, res.describe())
		out = res
		return j.commit(ctx)
	})
	return out, err
}

func (r GambleResult) describe() string {
	switch r.Game {
	case "coinflip":
		if r.Won {
			return fmt.Sprintf("Coinflip: Won (%s)", r.Result)
		}
		return fmt.Sprintf("Coinflip: Lost (%s)", r.Result)
	case "slots":
		verdict := "Lost"
		switch {
		case r.Won:
			verdict = "Won"
		case r.Multiplier.IsNegative():
			verdict = "Cursed"
		}
		return fmt.Sprintf("Slots: %s - %s", strings.Join(r.Reels, " "), verdict)
	}
	return "Card Game: " + r.Outcome
}

// Coinflip pays 1.8x the bet when the call matches.
func (s *Service) Coinflip(ctx context.Context, owner string, bet decimal.Decimal, call string) (GambleResult, error) {
	side, ok := ParseSide(call)
	if !ok {
		return GambleResult{}, rejectf(CodeInvalidCall, "call heads or tails, not %q", call)
	}
	return s.wager(ctx, owner, bet, func(res *GambleResult) {
		res.Game = "coinflip"
		res.Call = side
		res.Result = coinflipSide(s.nextFloat())
		res.Multiplier = decimal.Zero
		if res.Result == side {
			res.Multiplier = coinflipPayout
		}
		res.Outcome = "Lost"
		if res.Multiplier.IsPositive() {
			res.Outcome = "Won"
		}
	})
}

func (s *Service) Slots(ctx context.Context, owner string, bet decimal.Decimal) (GambleResult, error) {
	return s.wager(ctx, owner, bet, func(res *GambleResult) {
		reels := [3]string{slotSymbol(s.nextFloat()), slotSymbol(s.nextFloat()), slotSymbol(s.nextFloat())}
		res.Game = "slots"
		res.Reels = reels[:]
		res.Multiplier = slotsMultiplier(reels)
		switch {
		case res.Multiplier.IsNegative():
			res.Outcome = "Cursed"
		case res.Multiplier.IsPositive():
			res.Outcome = "Won"
		default:
			res.Outcome = "Lost"
		}
	})
}

// CardGame rolls once in [0,100) against the card bands.
func (s *Service) CardGame(ctx context.Context, owner string, bet decimal.Decimal) (GambleResult, error) {
	return s.wager(ctx, owner, bet, func(res *GambleResult) {
		res.Game = "cards"
		res.Multiplier, res.Outcome = cardOutcome(s.nextFloat() * 100)
	})
}
