// Package ledger defines the records of the Southbag economy and the storage
// contract every backend implements. Implementations live in the memory,
// sqlite and postgres subpackages.
package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	// ErrTxConflict is returned when a serializable unit of work keeps
	// failing after the retry budget.
	ErrTxConflict = errors.New("transaction conflict, retry")
)

// Store runs units of work. Every write made through the Tx handed to fn is
// committed together, or not at all when fn returns an error.
type Store interface {
	RunAtomic(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx is the per-kind record access available inside a unit of work.
// Lookups by owner return ErrNotFound when nothing matches.
type Tx interface {
	GetAccount(ctx context.Context, owner string) (Account, error)
	InsertAccount(ctx context.Context, a Account) (Account, error)
	PatchAccount(ctx context.Context, owner string, p AccountPatch) error
	// ListAccountsFeeDue returns accounts whose LastFeeAt is before cutoff,
	// oldest first.
	ListAccountsFeeDue(ctx context.Context, cutoff time.Time, limit int) ([]Account, error)

	InsertTransactions(ctx context.Context, rows []Transaction) error
	// ListTransactions returns newest first. limit <= 0 returns every row.
	ListTransactions(ctx context.Context, owner string, limit int) ([]Transaction, error)
	DeleteTransactions(ctx context.Context, owner string) (int, error)

	GetActiveLoan(ctx context.Context, owner string) (Loan, error)
	InsertLoan(ctx context.Context, l Loan) (Loan, error)
	PatchLoan(ctx context.Context, id int64, p LoanPatch) error

	ListHoldings(ctx context.Context, owner string) ([]Holding, error)
	InsertHolding(ctx context.Context, h Holding) (Holding, error)
	DeleteHoldings(ctx context.Context, owner, coin string) (int, error)

	GetInsurance(ctx context.Context, owner string) (Insurance, error)
	// PutInsurance inserts or overwrites the owner's single policy. CreatedAt
	// of an existing policy is preserved.
	PutInsurance(ctx context.Context, ins Insurance) (Insurance, error)

	GetJob(ctx context.Context, owner string) (Job, error)
	InsertJob(ctx context.Context, j Job) (Job, error)
	TouchJob(ctx context.Context, owner string, workedAt time.Time) error
	DeleteJob(ctx context.Context, owner string) error

	// ListHeists returns the channel's heists with the given status, newest
	// first. An empty status matches every heist.
	ListHeists(ctx context.Context, channel string, status HeistStatus) ([]Heist, error)
	InsertHeist(ctx context.Context, h Heist) (Heist, error)
	PatchHeist(ctx context.Context, id int64, p HeistPatch) error
}
