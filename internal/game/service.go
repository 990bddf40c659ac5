package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"slices"
	"sync"
	"time"

	"southbag/internal/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Random is a uniform source over [0,1). *rand.Rand satisfies it.
type Random interface {
	Float64() float64
}

type Option func(*Service)

// WithClock replaces the wall clock. Readings are truncated to milliseconds
// because that is the precision every backend persists.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithRandom(r Random) Option {
	return func(s *Service) {
		if r != nil {
			s.rand = r
		}
	}
}

type Service struct {
	store ledger.Store
	log   *slog.Logger
	now   func() time.Time
	locks *keyedMutex

	mu   sync.Mutex
	rand Random
}

func NewService(store ledger.Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store: store,
		log:   logger,
		now:   time.Now,
		locks: newKeyedMutex(),
		rand:  mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Service) nextFloat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64()
}

// run serializes on every key, then executes fn inside one unit of work.
// Rejections pass through untouched; anything else is a storage failure.
func (s *Service) run(ctx context.Context, keys []string, fn func(tx ledger.Tx, now time.Time) error) error {
	unlock := s.locks.lock(keys...)
	defer unlock()

	now := s.clock()
	err := s.store.RunAtomic(ctx, func(tx ledger.Tx) error {
		return fn(tx, now)
	})
	if err == nil || IsRejection(err) {
		return err
	}
	if errors.Is(err, ledger.ErrTxConflict) {
		s.log.Warn("ledger conflict", "keys", keys, "err", err)
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

// keyedMutex hands out one mutex per owner. Multi-owner callers lock in
// sorted order so two operations touching the same pair cannot deadlock.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) lock(keys ...string) func() {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	entries := make([]*keyedEntry, 0, len(keys))
	k.mu.Lock()
	for _, key := range keys {
		e := k.locks[key]
		if e == nil {
			e = &keyedEntry{}
			k.locks[key] = e
		}
		e.refs++
		entries = append(entries, e)
	}
	k.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
	}
	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
		}
		k.mu.Lock()
		for i, key := range keys {
			entries[i].refs--
			if entries[i].refs == 0 {
				delete(k.locks, key)
			}
		}
		k.mu.Unlock()
	}
}

func heistKey(channel string) string {
	return "\x00heist:" + channel
}

// journal collects the rows one operation writes. It tracks a running
// balance per owner so every BalanceAfter follows from the row before it,
// and flushes rows and balance patches together on commit.
type journal struct {
	tx       ledger.Tx
	batch    string
	now      time.Time
	rows     []ledger.Transaction
	accounts map[string]ledger.Account
	patches  map[string]*ledger.AccountPatch
	order    []string
}

func newJournal(tx ledger.Tx, now time.Time) *journal {
	return &journal{
		tx:       tx,
		batch:    uuid.NewString(),
		now:      now,
		accounts: make(map[string]ledger.Account),
		patches:  make(map[string]*ledger.AccountPatch),
	}
}

// account loads an owner's account once per unit of work. A missing account
// comes back as ledger.ErrNotFound so callers can pick the rejection.
func (j *journal) account(ctx context.Context, owner string) (ledger.Account, error) {
	if a, ok := j.accounts[owner]; ok {
		return a, nil
	}
	a, err := j.tx.GetAccount(ctx, owner)
	if err != nil {
		return ledger.Account{}, err
	}
	j.accounts[owner] = a
	return a, nil
}

// mustAccount is account with ErrNoAccount for a missing owner.
func (j *journal) mustAccount(ctx context.Context, owner string) (ledger.Account, error) {
	a, err := j.account(ctx, owner)
	if errors.Is(err, ledger.ErrNotFound) {
		return a, ErrNoAccount
	}
	return a, err
}

func loadAccount(ctx context.Context, tx ledger.Tx, owner string) (ledger.Account, error) {
	a, err := tx.GetAccount(ctx, owner)
	if errors.Is(err, ledger.ErrNotFound) {
		return a, ErrNoAccount
	}
	return a, err
}

func (j *journal) balance(owner string) decimal.Decimal {
	return j.accounts[owner].Balance
}

func (j *journal) patch(owner string) *ledger.AccountPatch {
	p, ok := j.patches[owner]
	if !ok {
		p = &ledger.AccountPatch{}
		j.patches[owner] = p
		j.order = append(j.order, owner)
	}
	return p
}

// post appends a row and moves the owner's running balance by amount.
func (j *journal) post(owner string, kind ledger.Kind, amount decimal.Decimal, description string) decimal.Decimal {
	a := j.accounts[owner]
	a.Balance = a.Balance.Add(amount)
	j.accounts[owner] = a
	bal := a.Balance
	j.patch(owner).Balance = &bal
	j.append(owner, kind, amount, description, bal)
	return bal
}

// note appends a row without touching the balance.
func (j *journal) note(owner string, kind ledger.Kind, amount decimal.Decimal, description string) {
	j.append(owner, kind, amount, description, j.balance(owner))
}

func (j *journal) append(owner string, kind ledger.Kind, amount decimal.Decimal, description string, after decimal.Decimal) {
	j.rows = append(j.rows, ledger.Transaction{
		OwnerID:      owner,
		BatchID:      j.batch,
		Kind:         kind,
		Amount:       amount,
		Description:  description,
		BalanceAfter: after,
		CreatedAt:    j.now,
	})
}

func (j *journal) commit(ctx context.Context) error {
	for _, owner := range j.order {
		if err := j.tx.PatchAccount(ctx, owner, *j.patches[owner]); err != nil {
			return fmt.Errorf("patch account %s: %w", owner, err)
		}
	}
	if len(j.rows) == 0 {
		return nil
	}
	if err := j.tx.InsertTransactions(ctx, j.rows); err != nil {
		return fmt.Errorf("insert transactions: %w", err)
	}
	return nil
}

// usable rejects missing and frozen accounts.
func (j *journal) usable(ctx context.Context, owner string) (ledger.Account, error) {
	a, err := j.mustAccount(ctx, owner)
	if err != nil {
		return a, err
	}
	if a.Status == ledger.StatusFrozen {
		return a, ErrFrozen
	}
	return a, nil
}

// afford rejects when the owner's running balance is below needed.
func (j *journal) afford(owner string, needed decimal.Decimal) error {
	if bal := j.balance(owner); bal.LessThan(needed) {
		return insufficient(bal, needed)
	}
	return nil
}
