package game

import (
	"errors"
	"fmt"
	"time"

	"southbag/internal/money"

	"github.com/shopspring/decimal"
)

// Code tags a business-rule rejection. Callers translate codes into user
// facing text; they are never infrastructure failures.
type Code string

const (
	CodeNoAccount            Code = "no_account"
	CodeFrozen               Code = "frozen"
	CodeInsufficient         Code = "insufficient"
	CodeCooldown             Code = "cooldown"
	CodeUnknownCoin          Code = "unknown_coin"
	CodeUnknownPlan          Code = "unknown_plan"
	CodeUnknownStatus        Code = "unknown_status"
	CodeSelfRob              Code = "self_rob"
	CodeSelfGift             Code = "self_gift"
	CodeNoVictim             Code = "no_victim"
	CodeNoRecipient          Code = "no_recipient"
	CodeExistingLoan         Code = "existing_loan"
	CodeNoLoan               Code = "no_loan"
	CodeMinLoan              Code = "min_loan"
	CodeMaxLoan              Code = "max_loan"
	CodeHeistActive          Code = "heist_active"
	CodeNoHeist              Code = "no_heist"
	CodeAlreadyJoined        Code = "already_joined"
	CodeHeistFull            Code = "heist_full"
	CodeNotStarter           Code = "not_starter"
	CodeNeedMoreParticipants Code = "need_more_participants"
	CodeVictimBroke          Code = "victim_broke"
	CodeNoHoldings           Code = "no_holdings"
	CodeMaxTier              Code = "max_tier"
	CodeAlreadyEmployed      Code = "already_employed"
	CodeNoJob                Code = "no_job"
	CodeNoPolicy             Code = "no_policy"
	CodeInvalidAmount        Code = "invalid_amount"
	CodeInvalidCall          Code = "invalid_call"
)

type Error struct {
	Code      Code            `json:"code"`
	Balance   decimal.Decimal `json:"balance,omitzero"`
	Needed    decimal.Decimal `json:"needed,omitzero"`
	Remaining time.Duration   `json:"remaining_ns,omitzero"`
	Detail    string          `json:"detail,omitempty"`
}

func (e *Error) Error() string {
	switch {
	case e.Code == CodeInsufficient && !e.Needed.IsZero():
		return fmt.Sprintf("insufficient: balance %s, needed %s", money.Format(e.Balance), money.Format(e.Needed))
	case e.Code == CodeCooldown:
		return fmt.Sprintf("cooldown: %s remaining", e.Remaining.Round(time.Second))
	case e.Detail != "":
		return string(e.Code) + ": " + e.Detail
	}
	return string(e.Code)
}

// Is matches any *Error carrying the same code, so errors.Is(err,
// ErrInsufficient) holds for rejections that also carry amounts.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrNoAccount            = &Error{Code: CodeNoAccount}
	ErrFrozen               = &Error{Code: CodeFrozen}
	ErrInsufficient         = &Error{Code: CodeInsufficient}
	ErrCooldown             = &Error{Code: CodeCooldown}
	ErrUnknownCoin          = &Error{Code: CodeUnknownCoin}
	ErrUnknownPlan          = &Error{Code: CodeUnknownPlan}
	ErrUnknownStatus        = &Error{Code: CodeUnknownStatus}
	ErrSelfRob              = &Error{Code: CodeSelfRob}
	ErrSelfGift             = &Error{Code: CodeSelfGift}
	ErrNoVictim             = &Error{Code: CodeNoVictim}
	ErrNoRecipient          = &Error{Code: CodeNoRecipient}
	ErrExistingLoan         = &Error{Code: CodeExistingLoan}
	ErrNoLoan               = &Error{Code: CodeNoLoan}
	ErrMinLoan              = &Error{Code: CodeMinLoan}
	ErrMaxLoan              = &Error{Code: CodeMaxLoan}
	ErrHeistActive          = &Error{Code: CodeHeistActive}
	ErrNoHeist              = &Error{Code: CodeNoHeist}
	ErrAlreadyJoined        = &Error{Code: CodeAlreadyJoined}
	ErrHeistFull            = &Error{Code: CodeHeistFull}
	ErrNotStarter           = &Error{Code: CodeNotStarter}
	ErrNeedMoreParticipants = &Error{Code: CodeNeedMoreParticipants}
	ErrVictimBroke          = &Error{Code: CodeVictimBroke}
	ErrNoHoldings           = &Error{Code: CodeNoHoldings}
	ErrMaxTier              = &Error{Code: CodeMaxTier}
	ErrAlreadyEmployed      = &Error{Code: CodeAlreadyEmployed}
	ErrNoJob                = &Error{Code: CodeNoJob}
	ErrNoPolicy             = &Error{Code: CodeNoPolicy}
	ErrInvalidAmount        = &Error{Code: CodeInvalidAmount}
	ErrInvalidCall          = &Error{Code: CodeInvalidCall}

	// ErrStorage wraps every failure of the backing store.
	ErrStorage = errors.New("ledger storage unavailable")
)

func insufficient(balance, needed decimal.Decimal) *Error {
	return &Error{Code: CodeInsufficient, Balance: balance, Needed: needed}
}

func cooldown(remaining time.Duration) *Error {
	return &Error{Code: CodeCooldown, Remaining: remaining}
}

func rejectf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err is a business-rule rejection rather than
// a storage failure.
func IsRejection(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// RejectionCode returns the code of a rejection, or "" for anything else.
func RejectionCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// normalizeAmount rounds user input to cents and rejects non-positive values.
func normalizeAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	amount = money.Cents(amount)
	if !amount.IsPositive() {
		return money.Zero, ErrInvalidAmount
	}
	return amount, nil
}
