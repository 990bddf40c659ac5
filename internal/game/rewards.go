package game

import (
	"context"
	"fmt"
	"time"

	"southbag/internal/ledger"
	"southbag/internal/money"
	"southbag/internal/ratelimit"
)

var (
	DailyFee       = money.MustParse("0.005")
	dailySpan      = money.MustParse("0.24")
	dailyFloor     = money.MustParse("0.01")
	dailyBonusRate = money.MustParse("5")
)

const dailyBonusChance = 0.05

func begMessage(o BegOutcome, amount string) string {
	switch o {
	case BegTiny:
		return fmt.Sprintf("You scraped %s off the floor. Pathetic.", amount)
	case BegDecent:
		return fmt.Sprintf("A teller tossed you %s out of pity.", amount)
	case BegReverse:
		return fmt.Sprintf("Reverse beg! You got charged %s for wasting their time.", amount)
	case BegJackpot:
		return fmt.Sprintf("The teller felt sorry for you. Here's %s.", amount)
	}
	return "$0.00. Southbag doesn't do charity."
}

// Beg is limited to one attempt a minute. Denied attempts still consume the
// cooldown.
func (s *Service) Beg(ctx context.Context, owner string) (BegResult, error) {
	var out BegResult
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		j := newJournal(tx, now)
		a, err := j.mustAccount(ctx, owner)
		if err != nil {
			return err
		}
		if d := ratelimit.Check(a.LastBegAt, now, ratelimit.BegCooldown); !d.Allowed {
			return cooldown(d.Remaining)
		}

		outcome := begOutcome(s.nextFloat())
		amount := begAmount(outcome, s.nextFloat())
		out = BegResult{Outcome: outcome, Amount: amount, Balance: a.Balance}
		switch {
		case outcome == BegReverse:
			out.Amount = amount.Neg()
			out.Balance = j.post(owner, ledger.KindFee, amount.Neg(), "Reverse beg: charged for wasting time")
			out.Message = begMessage(outcome, money.Format(amount))
		case amount.IsPositive():
			out.Balance = j.post(owner, ledger.KindDeposit, amount, fmt.Sprintf("Begging proceeds (%s)", outcome))
			if outcome == BegTiny {
				out.Message = begMessage(outcome, money.FormatMilli(amount))
			} else {
				out.Message = begMessage(outcome, money.Format(amount))
			}
		default:
			out.Message = begMessage(outcome, "")
		}
		j.patch(owner).LastBegAt = &now
		return j.commit(ctx)
	})
	return out, err
}

// Daily pays a small reward once every 24 hours, less a processing fee.
func (s *Service) Daily(ctx context.Context, owner string) (DailyResult, error) {
	var out DailyResult
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		j := newJournal(tx, now)
		a, err := j.mustAccount(ctx, owner)
		if err != nil {
			return err
		}
		if d := ratelimit.Check(a.LastDailyAt, now, ratelimit.DailyCooldown); !d.Allowed {
			return cooldown(d.Remaining)
		}

		bonus := s.nextFloat() < dailyBonusChance
		reward := money.Cents(money.Uniform(s.nextFloat(), dailySpan, dailyFloor))
		desc := "Daily reward"
		if bonus {
			reward = money.Cents(reward.Mul(dailyBonusRate))
			desc = "Daily reward (BONUS DAY 5x!)"
		}
		j.post(owner, ledger.KindDeposit, reward, desc)
		out = DailyResult{
			Reward:  reward,
			Bonus:   bonus,
			Fee:     DailyFee,
			Net:     reward.Sub(DailyFee),
			Balance: j.post(owner, ledger.KindFee, DailyFee.Neg(), "Daily processing fee"),
		}
		j.patch(owner).LastDailyAt = &now
		return j.commit(ctx)
	})
	return out, err
}
