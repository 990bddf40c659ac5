package game

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"southbag/internal/ledger"
	"southbag/internal/money"

	"github.com/shopspring/decimal"
)

type Plan struct {
	ID       string
	Name     string
	Premium  decimal.Decimal
	Duration time.Duration
}

var Plans = map[string]Plan{
	"basic":  {ID: "basic", Name: "Basic (covers nothing)", Premium: money.MustParse("0.10"), Duration: time.Hour},
	"silver": {ID: "silver", Name: "Silver (covers almost nothing)", Premium: money.MustParse("0.25"), Duration: 4 * time.Hour},
	"gold":   {ID: "gold", Name: "Gold (still covers nothing)", Premium: money.MustParse("0.50"), Duration: 24 * time.Hour},
}

var (
	AdminFee = money.MustParse("0.03")
	ClaimFee = money.MustParse("0.02")
)

var denialReasons = []string{
	"Pre-existing condition",
	"Act of Southbag",
	"Insufficient documentation",
	"Claim filed on a day ending in Y",
	"Your policy explicitly excludes this",
	"We lost your paperwork",
	"Claim denied by our AI (it doesn't like you)",
	"Force majeure (we don't feel like it)",
}

func PlanIDs() []string {
	ids := make([]string, 0, len(Plans))
	for id := range Plans {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func planName(id string) string {
	if p, ok := Plans[id]; ok {
		return p.Name
	}
	return id
}

// BuyInsurance replaces the owner's policy with plan, covered from now.
func (s *Service) BuyInsurance(ctx context.Context, owner, plan string) (InsuranceResult, error) {
	var out InsuranceResult
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		j := newJournal(tx, now)
		if _, err := j.mustAccount(ctx, owner); err != nil {
			return err
		}
		p, ok := Plans[strings.ToLower(strings.TrimSpace(plan))]
		if !ok {
			return rejectf(CodeUnknownPlan, "choose one of %s", strings.Join(PlanIDs(), ", "))
		}
		if err := j.afford(owner, p.Premium.Add(AdminFee)); err != nil {
			return err
		}

		policy, err := tx.PutInsurance(ctx, ledger.Insurance{
			OwnerID:      owner,
			Plan:         p.ID,
			Premium:      p.Premium,
			CoveredUntil: now.Add(p.Duration),
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
		j.post(owner, ledger.KindWithdrawal, p.Premium.Neg(), "Insurance premium: "+p.Name)
		out = InsuranceResult{
			Policy:   policy,
			PlanName: p.Name,
			AdminFee: AdminFee,
			Balance:  j.post(owner, ledger.KindFee, AdminFee.Neg(), "Policy administration fee"),
		}
		return j.commit(ctx)
	})
	return out, err
}

// ClaimInsurance charges the processing fee and denies the claim. It does
// not matter whether a policy exists.
func (s *Service) ClaimInsurance(ctx context.Context, owner, reason string) (ClaimResult, error) {
	var out ClaimResult
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		j := newJournal(tx, now)
		if _, err := j.mustAccount(ctx, owner); err != nil {
			return err
		}
		out = ClaimResult{
			Reason:  strings.TrimSpace(reason),
			Fee:     ClaimFee,
			Balance: j.post(owner, ledger.KindFee, ClaimFee.Neg(), "Claim processing fee"),
			Denial:  denialReasons[int(s.nextFloat()*float64(len(denialReasons)))%len(denialReasons)],
		}
		return j.commit(ctx)
	})
	return out, err
}

func (s *Service) Insurance(ctx context.Context, owner string) (InsuranceView, error) {
	var out InsuranceView
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		p, err := tx.GetInsurance(ctx, owner)
		if errors.Is(err, ledger.ErrNotFound) {
			return ErrNoPolicy
		}
		if err != nil {
			return err
		}
		out = InsuranceView{Policy: p, PlanName: planName(p.Plan), Active: p.CoveredUntil.After(now)}
		return nil
	})
	return out, err
}
