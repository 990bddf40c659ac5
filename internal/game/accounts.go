package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"southbag/internal/ledger"
	"southbag/internal/money"

	"github.com/shopspring/decimal"
)

var startingBalances = []decimal.Decimal{
	money.MustParse("0.01"),
	money.MustParse("0.03"),
	money.MustParse("0.47"),
	money.MustParse("1.23"),
	money.MustParse("3.50"),
	money.MustParse("0.69"),
	money.MustParse("2.01"),
	money.MustParse("0.10"),
	money.MustParse("4.20"),
	money.MustParse("0.99"),
}

var (
	OpeningFee     = money.MustParse("0.005")
	InquiryFee     = money.MustParse("0.01")
	ProcessingFee  = money.MustParse("0.50")
	BreathingFee   = money.MustParse("0.02")
	ConvenienceFee = money.MustParse("0.25")
	transferRate   = money.MustParse("0.15")
	depositShrink  = money.MustParse("0.73")
	generosityRate = money.MustParse("0.20")
	fenceRate      = money.MustParse("0.30")
	robCap         = money.MustParse("2.00")
	robFineSpan    = money.MustParse("1.50")
	robFineFloor   = money.MustParse("0.50")
	robShare       = money.MustParse("0.5")
	robMinimum     = money.MustParse("0.01")
)

const (
	robCatchChance = 0.45
	DefaultHistory = 20
	maxHistoryRows = 200
)

type Tier struct {
	Name string
	Cost decimal.Decimal
}

var Tiers = []Tier{
	{Name: "Bronze", Cost: money.MustParse("0.10")},
	{Name: "Silver", Cost: money.MustParse("0.25")},
	{Name: "Gold", Cost: money.MustParse("0.50")},
	{Name: "Platinum", Cost: money.MustParse("1.00")},
	{Name: "Diamond", Cost: money.MustParse("2.00")},
	{Name: "Obsidian", Cost: money.MustParse("5.00")},
}

// TierName maps the stored ordinal to its label; 0 is "None".
func TierName(tier int) string {
	if tier <= 0 || tier > len(Tiers) {
		return "None"
	}
	return Tiers[tier-1].Name
}

func (s *Service) accountNumber() string {
	head := 1000 + int(s.nextFloat()*9000)
	tail := 10000 + int(s.nextFloat()*90000)
	letter := rune('A' + int(s.nextFloat()*26))
	return fmt.Sprintf("%04d-SBAG-%05d-%c", head, tail, letter)
}

// Open returns the owner's account, creating it with a random starting
// balance minus the opening fee when none exists.
func (s *Service) Open(ctx context.Context, owner, name string) (ledger.Account, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return ledger.Account{}, rejectf(CodeInvalidCall, "owner is required")
	}
	var out ledger.Account
	created := false
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		existing, err := tx.GetAccount(ctx, owner)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return err
		}

		start := startingBalances[int(s.nextFloat()*float64(len(startingBalances)))%len(startingBalances)]
		acc, err := tx.InsertAccount(ctx, ledger.Account{
			OwnerID:       owner,
			AccountNumber: s.accountNumber(),
			Name:          strings.TrimSpace(name),
			Balance:       money.Zero,
			Status:        ledger.StatusActive,
			CreatedAt:     now,
			LastFeeAt:     now,
		})
		if err != nil {
			return err
		}
		j := newJournal(tx, now)
		j.accounts[owner] = acc
		j.post(owner, ledger.KindDeposit, start, "Welcome bonus (we were feeling generous)")
		j.post(owner, ledger.KindFee, OpeningFee.Neg(), "Account opening fee")
		if err := j.commit(ctx); err != nil {
			return err
		}
		out = j.accounts[owner]
		created = true
		return nil
	})
	if err != nil {
		return ledger.Account{}, err
	}
	if created {
		s.log.Info("account opened", "owner", owner, "account_number", out.AccountNumber, "balance", out.Balance.String())
	}
	return out, nil
}

func (s *Service) Account(ctx context.Context, owner string) (ledger.Account, error) {
	var out ledger.Account
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, _ time.Time) error {
		a, err := loadAccount(ctx, tx, owner)
		out = a
		return err
	})
	return out, err
}

// BalanceInquiry is the chat-facing balance read. Looking costs a cent.
func (s *Service) BalanceInquiry(ctx context.Context, owner string) (BalanceView, error) {
	var out BalanceView
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		j := newJournal(tx, now)
		a, err := j.mustAccount(ctx, owner)
		if err != nil {
			return err
		}
		out = BalanceView{
			AccountNumber: a.AccountNumber,
			Status:        a.Status,
			Fee:           InquiryFee,
			Balance:       j.post(owner, ledger.KindFee, InquiryFee.Neg(), "Balance inquiry fee"),
		}
		return j.commit(ctx)
	})
	return out, err
}

// ChargeFee debits amount with no floor; the balance may go negative.
func (s *Service) ChargeFee(ctx context.Context, owner string, amount decimal.Decimal, description string) (FeeResult, error) {
	var out FeeResult
	amount = money.Milli(amount)
	if !amount.IsPositive() {
		return out, ErrInvalidAmount
	}
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		var err error
		out, err = chargeFeeTx(ctx, tx, now, owner, amount, description)
		return err
	})
	return out, err
}

func chargeFeeTx(ctx context.Context, tx ledger.Tx, now time.Time, owner string, amount decimal.Decimal, description string) (FeeResult, error) {
	j := newJournal(tx, now)
	if _, err := j.mustAccount(ctx, owner); err != nil {
		return FeeResult{}, err
	}
	bal := j.post(owner, ledger.KindFee, amount.Neg(), description)
	j.patch(owner).LastFeeAt = &now
	if err := j.commit(ctx); err != nil {
		return FeeResult{}, err
	}
	return FeeResult{Description: description, Amount: amount, Balance: bal}, nil
}

// TransferFees itemizes what moving amount out of the bank costs.
func TransferFees(amount decimal.Decimal) []FeeLine {
	return []FeeLine{
		{Description: "Processing fee", Amount: ProcessingFee},
		{Description: "Transfer fee (15%)", Amount: money.Cents(amount.Mul(transferRate))},
		{Description: "Breathing fee", Amount: BreathingFee},
	}
}

func (s *Service) Transfer(ctx context.Context, owner string, amount decimal.Decimal, recipient string) (TransferResult, error) {
	var out TransferResult
	amount, err := normalizeAmount(amount)
	if err != nil {
		return out, err
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return out, rejectf(CodeInvalidCall, "recipient is required")
	}
	fees := TransferFees(amount)
	total := money.Zero
	for _, f := range fees {
		total = total.Add(f.Amount)
	}
	debit := amount.Add(total)

	err = s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		j := newJournal(tx, now)
		if _, err := j.usable(ctx, owner); err != nil {
			return err
		}
		if err := j.afford(owner, debit); err != nil {
			return err
		}
		j.post(owner, ledger.KindTransfer, amount.Neg(), "Transfer to "+recipient)
		for _, f := range fees {
			j.post(owner, ledger.KindFee, f.Amount.Neg(), f.Description)
		}
		out = TransferResult{
			Recipient: recipient,
			Amount:    amount,
			Fees:      fees,
			TotalFees: total,
			Debited:   debit,
			Balance:   j.balance(owner),
		}
		return j.commit(ctx)
	})
	return out, err
}

// Deposit credits 73% of the request and then takes the convenience fee.
func (s *Service) Deposit(ctx context.Context, owner string, amount decimal.Decimal) (DepositResult, error) {
	var out DepositResult
	amount, err := normalizeAmount(amount)
	if err != nil {
		return out, err
	}
	credited := money.Cents(amount.Mul(depositShrink))
	err = s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		j := newJournal(tx, now)
		if _, err := j.mustAccount(ctx, owner); err != nil {
			return err
		}
		j.post(owner, ledger.KindDeposit, credited, "Deposit (adjusted for market conditions)")
		bal := j.post(owner, ledger.KindFee, ConvenienceFee.Neg(), "Deposit convenience fee")
		out = DepositResult{Requested: amount, Credited: credited, Fee: ConvenienceFee, Balance: bal}
		return j.commit(ctx)
	})
	return out, err
}

func (s *Service) Freeze(ctx context.Context, owner string) error {
	return s.SetStatus(ctx, owner, ledger.StatusFrozen)
}

func (s *Service) SetStatus(ctx context.Context, owner string, status ledger.AccountStatus) error {
	if !status.Valid() {
		return rejectf(CodeUnknownStatus, "%q", status)
	}
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, _ time.Time) error {
		err := tx.PatchAccount(ctx, owner, ledger.AccountPatch{Status: &status})
		if errors.Is(err, ledger.ErrNotFound) {
			return ErrNoAccount
		}
		return err
	})
	if err == nil {
		s.log.Info("account status changed", "owner", owner, "status", string(status))
	}
	return err
}

// Rob moves a slice of the victim's balance to the robber, unless the
// robber gets caught first. Both sides commit together.
func (s *Service) Rob(ctx context.Context, robber, victim string) (RobResult, error) {
	out := RobResult{VictimID: victim}
	if robber == victim {
		return out, ErrSelfRob
	}
	err := s.run(ctx, []string{robber, victim}, func(tx ledger.Tx, now time.Time) error {
		j := newJournal(tx, now)
		if _, err := j.usable(ctx, robber); err != nil {
			return err
		}
		v, err := j.account(ctx, victim)
		if errors.Is(err, ledger.ErrNotFound) {
			return ErrNoVictim
		}
		if err != nil {
			return err
		}
		maxSteal := decimal.Min(v.Balance, robCap)
		if !maxSteal.IsPositive() {
			return ErrVictimBroke
		}

		if s.nextFloat() < robCatchChance {
			fine := money.Cents(money.Uniform(s.nextFloat(), robFineSpan, robFineFloor))
			suspicious := ledger.StatusSuspicious
			out.Caught = true
			out.Fine = fine
			out.Balance = j.post(robber, ledger.KindFee, fine.Neg(), "Attempted robbery fine")
			out.VictimBalance = v.Balance
			j.patch(robber).Status = &suspicious
			return j.commit(ctx)
		}

		stolen := money.Cents(money.Uniform(s.nextFloat(), maxSteal.Mul(robShare), robMinimum))
		stolen = decimal.Min(stolen, maxSteal)
		fence := money.Cents(stolen.Mul(fenceRate))
		out.Stolen = stolen
		out.Fence = fence
		out.Net = stolen.Sub(fence)
		out.VictimBalance = j.post(victim, ledger.KindWithdrawal, stolen.Neg(), "Mysterious disappearance of funds")
		j.post(robber, ledger.KindDeposit, stolen, "Found money on the ground")
		out.Balance = j.post(robber, ledger.KindFee, fence.Neg(), "Fencing fee (30%)")
		return j.commit(ctx)
	})
	return out, err
}

func (s *Service) Upgrade(ctx context.Context, owner string) (UpgradeResult, error) {
	var out UpgradeResult
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		j := newJournal(tx, now)
		a, err := j.mustAccount(ctx, owner)
		if err != nil {
			return err
		}
		next := a.Tier + 1
		if next > len(Tiers) {
			return rejectf(CodeMaxTier, "already %s", TierName(a.Tier))
		}
		tier := Tiers[next-1]
		if err := j.afford(owner, tier.Cost); err != nil {
			return err
		}
		out = UpgradeResult{
			PreviousTier: TierName(a.Tier),
			Tier:         tier.Name,
			Cost:         tier.Cost,
			Balance:      j.post(owner, ledger.KindFee, tier.Cost.Neg(), fmt.Sprintf("Account upgrade to %s (does absolutely nothing)", tier.Name)),
		}
		j.patch(owner).Tier = &next
		return j.commit(ctx)
	})
	return out, err
}

// Gift sends amount plus a 20% tax out of the sender; the recipient gets
// exactly amount.
func (s *Service) Gift(ctx context.Context, sender, recipient string, amount decimal.Decimal) (GiftResult, error) {
	out := GiftResult{RecipientID: recipient}
	if sender == recipient {
		return out, ErrSelfGift
	}
	amount, err := normalizeAmount(amount)
	if err != nil {
		return out, err
	}
	tax := money.Cents(amount.Mul(generosityRate))
	debit := amount.Add(tax)
	err = s.run(ctx, []string{sender, recipient}, func(tx ledger.Tx, now time.Time) error {
		j := newJournal(tx, now)
		if _, err := j.mustAccount(ctx, sender); err != nil {
			return err
		}
		if _, err := j.account(ctx, recipient); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return ErrNoRecipient
			}
			return err
		}
		if err := j.afford(sender, debit); err != nil {
			return err
		}
		j.post(sender, ledger.KindTransfer, amount.Neg(), fmt.Sprintf("Gift to <@%s>", recipient))
		out.Balance = j.post(sender, ledger.KindFee, tax.Neg(), "Generosity tax (20%)")
		out.RecipientBalance = j.post(recipient, ledger.KindDeposit, amount, fmt.Sprintf("Gift from <@%s>", sender))
		out.Amount = amount
		out.Tax = tax
		out.Debited = debit
		return j.commit(ctx)
	})
	return out, err
}

// ToggleNotifications flips the DM opt-in and returns the new value.
func (s *Service) ToggleNotifications(ctx context.Context, owner string) (bool, error) {
	var enabled bool
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, _ time.Time) error {
		a, err := tx.GetAccount(ctx, owner)
		if errors.Is(err, ledger.ErrNotFound) {
			return ErrNoAccount
		}
		if err != nil {
			return err
		}
		enabled = !a.Notifications
		return tx.PatchAccount(ctx, owner, ledger.AccountPatch{Notifications: &enabled})
	})
	return enabled, err
}

// NotificationSubscribers filters owners down to those who opted in.
// Owners without an account are skipped.
func (s *Service) NotificationSubscribers(ctx context.Context, owners []string) ([]string, error) {
	var out []string
	err := s.run(ctx, nil, func(tx ledger.Tx, _ time.Time) error {
		out = out[:0]
		for _, owner := range owners {
			a, err := tx.GetAccount(ctx, owner)
			if errors.Is(err, ledger.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if a.Notifications {
				out = append(out, owner)
			}
		}
		return nil
	})
	return out, err
}

// History returns the latest rows, newest first.
func (s *Service) History(ctx context.Context, owner string, limit int) ([]ledger.Transaction, error) {
	if limit <= 0 {
		limit = DefaultHistory
	}
	limit = min(limit, maxHistoryRows)
	var out []ledger.Transaction
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, _ time.Time) error {
		if _, err := loadAccount(ctx, tx, owner); err != nil {
			return err
		}
		rows, err := tx.ListTransactions(ctx, owner, limit)
		out = rows
		return err
	})
	return out, err
}

// ClearHistory drops the owner's statement. Balances are untouched.
func (s *Service) ClearHistory(ctx context.Context, owner string) (int, error) {
	var n int
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, _ time.Time) error {
		if _, err := loadAccount(ctx, tx, owner); err != nil {
			return err
		}
		var err error
		n, err = tx.DeleteTransactions(ctx, owner)
		return err
	})
	if err == nil {
		s.log.Info("history cleared", "owner", owner, "rows", n)
	}
	return n, err
}
