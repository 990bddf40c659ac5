package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"southbag/internal/ledger"
	"southbag/internal/money"

	"github.com/shopspring/decimal"
)

var (
	MinLoan   = money.MustParse("0.10")
	MaxLoan   = money.MustParse("10.00")
	rateSpan  = money.MustParse("0.35")
	rateFloor = money.MustParse("0.15")
)

// Owed compounds the hourly rate over fractional hours:
// principal * (1+rate)^hours, rounded to cents. Whole hours are raised in
// decimal so the common case stays exact.
func Owed(principal, rate decimal.Decimal, elapsed time.Duration) decimal.Decimal {
	if elapsed <= 0 {
		return money.Cents(principal)
	}
	hours := elapsed.Hours()
	whole, frac := math.Modf(hours)
	base := decimal.NewFromInt(1).Add(rate)
	factor := base.Pow(decimal.NewFromInt(int64(whole)))
	if frac > 0 {
		f, _ := base.Float64()
		factor = factor.Mul(decimal.NewFromFloat(math.Pow(f, frac)))
	}
	return money.Cents(principal.Mul(factor))
}

func activeLoan(ctx context.Context, tx ledger.Tx, owner string) (ledger.Loan, error) {
	l, err := tx.GetActiveLoan(ctx, owner)
	if errors.Is(err, ledger.ErrNotFound) {
		return l, ErrNoLoan
	}
	return l, err
}

func (s *Service) TakeLoan(ctx context.Context, owner string, amount decimal.Decimal) (LoanResult, error) {
	var out LoanResult
	amount = money.Cents(amount)
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		j := newJournal(tx, now)
		if _, err := j.usable(ctx, owner); err != nil {
			return err
		}
		if amount.LessThan(MinLoan) {
			return &Error{Code: CodeMinLoan, Needed: MinLoan}
		}
		if amount.GreaterThan(MaxLoan) {
			return &Error{Code: CodeMaxLoan, Needed: MaxLoan}
		}
		if _, err := activeLoan(ctx, tx, owner); err == nil {
			return ErrExistingLoan
		} else if !errors.Is(err, ErrNoLoan) {
			return err
		}

		rate := money.Cents(money.Uniform(s.nextFloat(), rateSpan, rateFloor))
		loan, err := tx.InsertLoan(ctx, ledger.Loan{
			OwnerID:   owner,
			Principal: amount,
			Rate:      rate,
			Status:    ledger.LoanActive,
			TakenAt:   now,
		})
		if err != nil {
			return err
		}
		desc := fmt.Sprintf("Loan disbursement (%s%% per hour interest, good luck)", rate.Shift(2).StringFixed(0))
		out = LoanResult{
			Loan:    loan,
			Owed:    amount,
			Balance: j.post(owner, ledger.KindDeposit, amount, desc),
		}
		return j.commit(ctx)
	})
	return out, err
}

// LoanStatus values the active loan at the current instant.
func (s *Service) LoanStatus(ctx context.Context, owner string) (LoanView, error) {
	var out LoanView
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		l, err := activeLoan(ctx, tx, owner)
		if err != nil {
			return err
		}
		elapsed := now.Sub(l.TakenAt)
		owed := Owed(l.Principal, l.Rate, elapsed)
		out = LoanView{Loan: l, Owed: owed, Interest: owed.Sub(l.Principal), Elapsed: elapsed}
		return nil
	})
	return out, err
}

func (s *Service) RepayLoan(ctx context.Context, owner string) (LoanResult, error) {
	var out LoanResult
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		l, err := activeLoan(ctx, tx, owner)
		if err != nil {
			return err
		}
		j := newJournal(tx, now)
		if _, err := j.mustAccount(ctx, owner); err != nil {
			return err
		}
		owed := Owed(l.Principal, l.Rate, now.Sub(l.TakenAt))
		if err := j.afford(owner, owed); err != nil {
			return err
		}
		desc := fmt.Sprintf("Loan repayment (principal: %s, interest: %s)", money.Format(l.Principal), money.Format(owed.Sub(l.Principal)))
		out.Balance = j.post(owner, ledger.KindWithdrawal, owed.Neg(), desc)
		l, err = closeLoan(ctx, tx, l, ledger.LoanPaid, owed, now)
		if err != nil {
			return err
		}
		out.Loan = l
		out.Owed = owed
		return j.commit(ctx)
	})
	return out, err
}

// DefaultLoan walks away from the active loan. The account is frozen and a
// fee row records the debt, but the balance itself is not debited.
func (s *Service) DefaultLoan(ctx context.Context, owner string) (LoanResult, error) {
	var out LoanResult
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		l, err := activeLoan(ctx, tx, owner)
		if err != nil {
			return err
		}
		j := newJournal(tx, now)
		a, err := j.mustAccount(ctx, owner)
		if err != nil {
			return err
		}
		owed := Owed(l.Principal, l.Rate, now.Sub(l.TakenAt))
		l, err = closeLoan(ctx, tx, l, ledger.LoanDefaulted, owed, now)
		if err != nil {
			return err
		}
		frozen := ledger.StatusFrozen
		j.patch(owner).Status = &frozen
		j.note(owner, ledger.KindFee, owed.Neg(), fmt.Sprintf("Loan default, account frozen (owed %s)", money.Format(owed)))
		out = LoanResult{Loan: l, Owed: owed, Balance: a.Balance}
		return j.commit(ctx)
	})
	if err == nil {
		s.log.Info("loan defaulted", "owner", owner, "owed", out.Owed.String())
	}
	return out, err
}

func closeLoan(ctx context.Context, tx ledger.Tx, l ledger.Loan, status ledger.LoanStatus, owed decimal.Decimal, now time.Time) (ledger.Loan, error) {
	p := ledger.LoanPatch{Status: &status, TotalOwed: &owed, ClosedAt: &now}
	if err := tx.PatchLoan(ctx, l.ID, p); err != nil {
		return l, err
	}
	return p.Apply(l), nil
}
