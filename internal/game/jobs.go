package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"southbag/internal/ledger"
	"southbag/internal/money"
	"southbag/internal/ratelimit"

	"github.com/shopspring/decimal"
)

type Listing struct {
	Title  string
	Salary decimal.Decimal
}

var Listings = []Listing{
	{"Southbag Branch Greeter", money.MustParse("1")},
	{"ATM Apology Writer", money.MustParse("1.50")},
	{"Fee Explanation Specialist", money.MustParse("0.04")},
	{"Complaint Ignorer", money.MustParse("0.06")},
	{"Password Reset Denier", money.MustParse("2.02")},
	{"Queue Extension Coordinator", money.MustParse("1.07")},
	{"Hold Music DJ", money.MustParse("6")},
	{"Overdraft Celebration Planner", money.MustParse("0.05")},
	{"Terms & Conditions Lengthener", money.MustParse("0.08")},
	{"Customer Disappointment Analyst", money.MustParse("0.03")},
	{"Lobby Floor Starer", money.MustParse("0.01")},
	{"Senior Vice President of Nothing", money.MustParse("100")},
	{"Chief Vibes Officer", money.MustParse("9")},
	{"Intern (Unpaid)", money.Zero},
	{"Executive Paper Shredder", money.MustParse("0.06")},
	{"Vibe Coder", money.MustParse("2")},
}

var (
	UniformFee        = money.MustParse("0.02")
	ExitFee           = money.MustParse("0.05")
	incomeTaxRate     = money.MustParse("0.40")
	overtimeRate      = money.MustParse("2.5")
	dockedRate        = money.MustParse("0.3")
	incidentFineSpan  = money.MustParse("0.10")
	incidentFineFloor = money.MustParse("0.01")
)

var workEventLabels = map[WorkEvent]string{
	WorkNormal:   "Completed a shift",
	WorkOvertime: "Overtime bonus shift",
	WorkDocked:   "Pay docked (bad attitude)",
	WorkIncident: "Workplace incident",
}

func currentJob(ctx context.Context, tx ledger.Tx, owner string) (ledger.Job, error) {
	j, err := tx.GetJob(ctx, owner)
	if errors.Is(err, ledger.ErrNotFound) {
		return j, ErrNoJob
	}
	return j, err
}

// ApplyJob hires the owner into a random listing.
func (s *Service) ApplyJob(ctx context.Context, owner string) (JobResult, error) {
	var out JobResult
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		if existing, err := currentJob(ctx, tx, owner); err == nil {
			return rejectf(CodeAlreadyEmployed, "already working as %s", existing.Title)
		} else if !errors.Is(err, ErrNoJob) {
			return err
		}
		j := newJournal(tx, now)
		if _, err := j.mustAccount(ctx, owner); err != nil {
			return err
		}

		listing := Listings[int(s.nextFloat()*float64(len(Listings)))%len(Listings)]
		job, err := tx.InsertJob(ctx, ledger.Job{
			OwnerID: owner,
			Title:   listing.Title,
			Salary:  listing.Salary,
			HiredAt: now,
		})
		if err != nil {
			return err
		}
		out = JobResult{
			Job:     job,
			Fee:     UniformFee,
			Balance: j.post(owner, ledger.KindFee, UniformFee.Neg(), "Uniform deposit fee"),
		}
		return j.commit(ctx)
	})
	return out, err
}

func (s *Service) Job(ctx context.Context, owner string) (ledger.Job, error) {
	var out ledger.Job
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, _ time.Time) error {
		j, err := currentJob(ctx, tx, owner)
		out = j
		return err
	})
	return out, err
}

// Work runs one shift. Pay is taxed at 40%; an incident costs a fine
// instead.
func (s *Service) Work(ctx context.Context, owner string) (WorkResult, error) {
	var out WorkResult
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		job, err := currentJob(ctx, tx, owner)
		if err != nil {
			return err
		}
		j := newJournal(tx, now)
		if _, err := j.mustAccount(ctx, owner); err != nil {
			return err
		}
		if d := ratelimit.Check(job.LastWorkedAt, now, ratelimit.ShiftCooldown); !d.Allowed {
			return cooldown(d.Remaining)
		}

		event := workEvent(s.nextFloat())
		out = WorkResult{Title: job.Title, Event: event}
		pay := job.Salary
		switch event {
		case WorkOvertime:
			pay = money.Cents(pay.Mul(overtimeRate))
		case WorkDocked:
			pay = money.Cents(pay.Mul(dockedRate))
		case WorkIncident:
			fine := money.Cents(money.Uniform(s.nextFloat(), incidentFineSpan, incidentFineFloor))
			out.Fine = fine
			out.Net = fine.Neg()
			out.Balance = j.post(owner, ledger.KindFee, fine.Neg(), "Workplace incident fine")
		}
		if event != WorkIncident {
			tax := money.Cents(pay.Mul(incomeTaxRate))
			out.Gross = pay
			out.Tax = tax
			out.Net = pay.Sub(tax)
			j.post(owner, ledger.KindDeposit, pay, fmt.Sprintf("Salary: %s (%s)", job.Title, workEventLabels[event]))
			out.Balance = j.post(owner, ledger.KindFee, tax.Neg(), "Income tax (40%)")
		}
		if err := tx.TouchJob(ctx, owner, now); err != nil {
			return err
		}
		return j.commit(ctx)
	})
	return out, err
}

// QuitJob deletes the job and charges an exit interview fee when the owner
// still has an account.
func (s *Service) QuitJob(ctx context.Context, owner string) (JobResult, error) {
	var out JobResult
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		job, err := currentJob(ctx, tx, owner)
		if err != nil {
			return err
		}
		if err := tx.DeleteJob(ctx, owner); err != nil {
			return err
		}
		out = JobResult{Job: job}
		j := newJournal(tx, now)
		if _, err := j.mustAccount(ctx, owner); err != nil {
			if errors.Is(err, ErrNoAccount) {
				return nil
			}
			return err
		}
		out.Fee = ExitFee
		out.Balance = j.post(owner, ledger.KindFee, ExitFee.Neg(), "Exit interview fee")
		return j.commit(ctx)
	})
	return out, err
}

// WorkEventLabel is the human wording of a shift outcome.
func WorkEventLabel(e WorkEvent) string {
	return workEventLabels[e]
}
