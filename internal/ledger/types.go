package ledger

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	StatusActive     AccountStatus = "active"
	StatusFrozen     AccountStatus = "frozen"
	StatusSuspicious AccountStatus = "suspicious"
	StatusVibes      AccountStatus = "vibes-based"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case StatusActive, StatusFrozen, StatusSuspicious, StatusVibes:
		return true
	}
	return false
}

type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindTransfer   Kind = "transfer"
	KindFee        Kind = "fee"
)

type Account struct {
	ID            int64           `json:"id"`
	OwnerID       string          `json:"owner_id"`
	AccountNumber string          `json:"account_number"`
	Name          string          `json:"name"`
	Balance       decimal.Decimal `json:"balance"`
	Status        AccountStatus   `json:"status"`
	Tier          int             `json:"tier"`
	Notifications bool            `json:"notifications"`
	CreatedAt     time.Time       `json:"created_at"`
	LastFeeAt     time.Time       `json:"last_fee_at"`
	LastBegAt     time.Time       `json:"last_beg_at"`
	LastDailyAt   time.Time       `json:"last_daily_at"`
}

// AccountPatch updates only the non-nil fields.
type AccountPatch struct {
	Balance       *decimal.Decimal
	Status        *AccountStatus
	Tier          *int
	Notifications *bool
	LastFeeAt     *time.Time
	LastBegAt     *time.Time
	LastDailyAt   *time.Time
}

func (p AccountPatch) Apply(a Account) Account {
	if p.Balance != nil {
		a.Balance = *p.Balance
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.Tier != nil {
		a.Tier = *p.Tier
	}
	if p.Notifications != nil {
		a.Notifications = *p.Notifications
	}
	if p.LastFeeAt != nil {
		a.LastFeeAt = *p.LastFeeAt
	}
	if p.LastBegAt != nil {
		a.LastBegAt = *p.LastBegAt
	}
	if p.LastDailyAt != nil {
		a.LastDailyAt = *p.LastDailyAt
	}
	return a
}

// Transaction rows are append-only. Every row written by one operation
// shares a BatchID.
type Transaction struct {
	ID           int64           `json:"id"`
	OwnerID      string          `json:"owner_id"`
	BatchID      string          `json:"batch_id"`
	Kind         Kind            `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

type LoanStatus string

const (
	LoanActive    LoanStatus = "active"
	LoanPaid      LoanStatus = "paid"
	LoanDefaulted LoanStatus = "defaulted"
)

type Loan struct {
	ID        int64           `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Principal decimal.Decimal `json:"principal"`
	Rate      decimal.Decimal `json:"rate"`
	Status    LoanStatus      `json:"status"`
	TakenAt   time.Time       `json:"taken_at"`
	TotalOwed decimal.Decimal `json:"total_owed"`
	ClosedAt  time.Time       `json:"closed_at"`
}

type LoanPatch struct {
	Status    *LoanStatus
	TotalOwed *decimal.Decimal
	ClosedAt  *time.Time
}

func (p LoanPatch) Apply(l Loan) Loan {
	if p.Status != nil {
		l.Status = *p.Status
	}
	if p.TotalOwed != nil {
		l.TotalOwed = *p.TotalOwed
	}
	if p.ClosedAt != nil {
		l.ClosedAt = *p.ClosedAt
	}
	return l
}

type Holding struct {
	ID        int64           `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Coin      string          `json:"coin"`
	Quantity  decimal.Decimal `json:"quantity"`
	BoughtAt  decimal.Decimal `json:"bought_at"`
	CreatedAt time.Time       `json:"created_at"`
}

type Insurance struct {
	ID           int64           `json:"id"`
	OwnerID      string          `json:"owner_id"`
	Plan         string          `json:"plan"`
	Premium      decimal.Decimal `json:"premium"`
	CoveredUntil time.Time       `json:"covered_until"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Job struct {
	ID           int64           `json:"id"`
	OwnerID      string          `json:"owner_id"`
	Title        string          `json:"title"`
	Salary       decimal.Decimal `json:"salary"`
	HiredAt      time.Time       `json:"hired_at"`
	LastWorkedAt time.Time       `json:"last_worked_at"`
}

type HeistStatus string

const (
	HeistRecruiting HeistStatus = "recruiting"
	HeistCompleted  HeistStatus = "completed"
	HeistFailed     HeistStatus = "failed"
)

type Heist struct {
	ID           int64       `json:"id"`
	ChannelID    string      `json:"channel_id"`
	OrganizerID  string      `json:"organizer_id"`
	Participants []string    `json:"participants"`
	Status       HeistStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	CompletedAt  time.Time   `json:"completed_at"`
}

func (h Heist) HasParticipant(owner string) bool {
	return slices.Contains(h.Participants, owner)
}

// HeistPatch replaces Participants when it is non-nil.
type HeistPatch struct {
	Participants []string
	Status       *HeistStatus
	CompletedAt  *time.Time
}

func (p HeistPatch) Apply(h Heist) Heist {
	if p.Participants != nil {
		h.Participants = slices.Clone(p.Participants)
	}
	if p.Status != nil {
		h.Status = *p.Status
	}
	if p.CompletedAt != nil {
		h.CompletedAt = *p.CompletedAt
	}
	return h
}
