// Package memory keeps the ledger in process memory. A unit of work holds a
// single mutex and restores a snapshot when it fails.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"southbag/internal/ledger"
)

type state struct {
	nextID    int64
	accounts  map[string]ledger.Account
	txs       []ledger.Transaction
	loans     []ledger.Loan
	holdings  []ledger.Holding
	insurance map[string]ledger.Insurance
	jobs      map[string]ledger.Job
	heists    []ledger.Heist
}

func newState() state {
	return state{
		accounts:  map[string]ledger.Account{},
		insurance: map[string]ledger.Insurance{},
		jobs:      map[string]ledger.Job{},
	}
}

func (s state) clone() state {
	out := state{
		nextID:    s.nextID,
		accounts:  maps.Clone(s.accounts),
		txs:       slices.Clone(s.txs),
		loans:     slices.Clone(s.loans),
		holdings:  slices.Clone(s.holdings),
		insurance: maps.Clone(s.insurance),
		jobs:      maps.Clone(s.jobs),
		heists:    make([]ledger.Heist, len(s.heists)),
	}
	for i, h := range s.heists {
		h.Participants = slices.Clone(h.Participants)
		out.heists[i] = h
	}
	return out
}

type Store struct {
	mu sync.Mutex
	st state
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) RunAtomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&tx{st: &s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) Close() error { return nil }

type tx struct {
	st *state
}

func (t *tx) id() int64 {
	t.st.nextID++
	return t.st.nextID
}

func (t *tx) GetAccount(ctx context.Context, owner string) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}
	a, ok := t.st.accounts[owner]
	if !ok {
		return ledger.Account{}, ledger.ErrNotFound
	}
	return a, nil
}

func (t *tx) InsertAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}
	if _, ok := t.st.accounts[a.OwnerID]; ok {
		return ledger.Account{}, ledger.ErrAlreadyExists
	}
	a.ID = t.id()
	t.st.accounts[a.OwnerID] = a
	return a, nil
}

func (t *tx) PatchAccount(ctx context.Context, owner string, p ledger.AccountPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a, ok := t.st.accounts[owner]
	if !ok {
		return ledger.ErrNotFound
	}
	t.st.accounts[owner] = p.Apply(a)
	return nil
}

func (t *tx) ListAccountsFeeDue(ctx context.Context, cutoff time.Time, limit int) ([]ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []ledger.Account
	for _, a := range t.st.accounts {
		if a.LastFeeAt.Before(cutoff) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b ledger.Account) int {
		if c := a.LastFeeAt.Compare(b.LastFeeAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *tx) InsertTransactions(ctx context.Context, rows []ledger.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, row := range rows {
		row.ID = t.id()
		t.st.txs = append(t.st.txs, row)
	}
	return nil
}

func (t *tx) ListTransactions(ctx context.Context, owner string, limit int) ([]ledger.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []ledger.Transaction
	for i := len(t.st.txs) - 1; i >= 0; i-- {
		row := t.st.txs[i]
		if row.OwnerID != owner {
			continue
		}
		out = append(out, row)
	}
	slices.SortStableFunc(out, func(a, b ledger.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *tx) DeleteTransactions(ctx context.Context, owner string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	before := len(t.st.txs)
	t.st.txs = slices.DeleteFunc(t.st.txs, func(row ledger.Transaction) bool {
		return row.OwnerID == owner
	})
	return before - len(t.st.txs), nil
}

func (t *tx) GetActiveLoan(ctx context.Context, owner string) (ledger.Loan, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Loan{}, err
	}
	for i := len(t.st.loans) - 1; i >= 0; i-- {
		l := t.st.loans[i]
		if l.OwnerID == owner && l.Status == ledger.LoanActive {
			return l, nil
		}
	}
	return ledger.Loan{}, ledger.ErrNotFound
}

func (t *tx) InsertLoan(ctx context.Context, l ledger.Loan) (ledger.Loan, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Loan{}, err
	}
	l.ID = t.id()
	t.st.loans = append(t.st.loans, l)
	return l, nil
}

func (t *tx) PatchLoan(ctx context.Context, id int64, p ledger.LoanPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, l := range t.st.loans {
		if l.ID == id {
			t.st.loans[i] = p.Apply(l)
			return nil
		}
	}
	return ledger.ErrNotFound
}

func (t *tx) ListHoldings(ctx context.Context, owner string) ([]ledger.Holding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []ledger.Holding
	for _, h := range t.st.holdings {
		if h.OwnerID == owner {
			out = append(out, h)
		}
	}
	return out, nil
}

func (t *tx) InsertHolding(ctx context.Context, h ledger.Holding) (ledger.Holding, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Holding{}, err
	}
	h.ID = t.id()
	t.st.holdings = append(t.st.holdings, h)
	return h, nil
}

func (t *tx) DeleteHoldings(ctx context.Context, owner, coin string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	before := len(t.st.holdings)
	t.st.holdings = slices.DeleteFunc(t.st.holdings, func(h ledger.Holding) bool {
		return h.OwnerID == owner && h.Coin == coin
	})
	return before - len(t.st.holdings), nil
}

func (t *tx) GetInsurance(ctx context.Context, owner string) (ledger.Insurance, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Insurance{}, err
	}
	ins, ok := t.st.insurance[owner]
	if !ok {
		return ledger.Insurance{}, ledger.ErrNotFound
	}
	return ins, nil
}

func (t *tx) PutInsurance(ctx context.Context, ins ledger.Insurance) (ledger.Insurance, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Insurance{}, err
	}
	if existing, ok := t.st.insurance[ins.OwnerID]; ok {
		ins.ID = existing.ID
		ins.CreatedAt = existing.CreatedAt
	} else {
		ins.ID = t.id()
	}
	t.st.insurance[ins.OwnerID] = ins
	return ins, nil
}

func (t *tx) GetJob(ctx context.Context, owner string) (ledger.Job, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Job{}, err
	}
	j, ok := t.st.jobs[owner]
	if !ok {
		return ledger.Job{}, ledger.ErrNotFound
	}
	return j, nil
}

func (t *tx) InsertJob(ctx context.Context, j ledger.Job) (ledger.Job, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Job{}, err
	}
	if _, ok := t.st.jobs[j.OwnerID]; ok {
		return ledger.Job{}, ledger.ErrAlreadyExists
	}
	j.ID = t.id()
	t.st.jobs[j.OwnerID] = j
	return j, nil
}

func (t *tx) TouchJob(ctx context.Context, owner string, workedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j, ok := t.st.jobs[owner]
	if !ok {
		return ledger.ErrNotFound
	}
	j.LastWorkedAt = workedAt
	t.st.jobs[owner] = j
	return nil
}

func (t *tx) DeleteJob(ctx context.Context, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.st.jobs[owner]; !ok {
		return ledger.ErrNotFound
	}
	delete(t.st.jobs, owner)
	return nil
}

func (t *tx) ListHeists(ctx context.Context, channel string, status ledger.HeistStatus) ([]ledger.Heist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []ledger.Heist
	for i := len(t.st.heists) - 1; i >= 0; i-- {
		h := t.st.heists[i]
		if h.ChannelID != channel || (status != "" && h.Status != status) {
			continue
		}
		h.Participants = slices.Clone(h.Participants)
		out = append(out, h)
	}
	return out, nil
}

func (t *tx) InsertHeist(ctx context.Context, h ledger.Heist) (ledger.Heist, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Heist{}, err
	}
	h.ID = t.id()
	h.Participants = slices.Clone(h.Participants)
	t.st.heists = append(t.st.heists, h)
	return h, nil
}

func (t *tx) PatchHeist(ctx context.Context, id int64, p ledger.HeistPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, h := range t.st.heists {
		if h.ID == id {
			t.st.heists[i] = p.Apply(h)
			return nil
		}
	}
	return ledger.ErrNotFound
}
