package game

import (
	"context"
	"fmt"
	"time"

	"southbag/internal/ledger"
	"southbag/internal/money"

	"github.com/shopspring/decimal"
)

var MysteryFees = []string{
	"Existing fee",
	"Fee for having a fee",
	"Loyalty penalty",
	"Inactivity fee (you blinked)",
	"Account awareness surcharge",
	"Oxygen consumption tax",
	"Monday fee",
	"Vibes assessment",
	"Password remembering fee",
	"Southbag pride contribution",
	"Fee",
	"Being-a-customer fee",
	"Digital presence surcharge",
	"Screen-looking fee",
	"Balance inquiry anticipation fee",
}

var (
	mysterySpan  = money.MustParse("0.49")
	mysteryFloor = money.MustParse("0.01")
)

func (s *Service) mysteryFee() (string, decimal.Decimal) {
	label := MysteryFees[int(s.nextFloat()*float64(len(MysteryFees)))%len(MysteryFees)]
	return label, money.Cents(money.Uniform(s.nextFloat(), mysterySpan, mysteryFloor))
}

// MysteryFee charges a random amount under a random label.
func (s *Service) MysteryFee(ctx context.Context, owner string) (FeeResult, error) {
	var out FeeResult
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		label, amount := s.mysteryFee()
		var err error
		out, err = chargeFeeTx(ctx, tx, now, owner, amount, label)
		return err
	})
	return out, err
}

// SweepFees charges a mystery fee to up to limit accounts whose last fee is
// older than idle. Each account is charged in its own unit of work, so one
// failure does not undo the others.
func (s *Service) SweepFees(ctx context.Context, idle time.Duration, limit int) (SweepResult, error) {
	out := SweepResult{Total: money.Zero}
	if limit <= 0 {
		limit = 100
	}
	cutoff := s.clock().Add(-idle)

	var due []ledger.Account
	err := s.store.RunAtomic(ctx, func(tx ledger.Tx) error {
		var err error
		due, err = tx.ListAccountsFeeDue(ctx, cutoff, limit)
		return err
	})
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	for _, a := range due {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.MysteryFee(ctx, a.OwnerID)
		if err != nil {
			if IsRejection(err) {
				continue
			}
			return out, err
		}
		out.Charged++
		out.Total = out.Total.Add(res.Amount)
	}
	if out.Charged > 0 {
		s.log.Info("fee sweep", "charged", out.Charged, "total", out.Total.String())
	}
	return out, nil
}
