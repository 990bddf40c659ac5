// Package postgres is the pgx-backed ledger store. Units of work run at
// SERIALIZABLE isolation and are retried on serialization failures.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"southbag/internal/db"
	"southbag/internal/ledger"
	"southbag/internal/ledger/postgres/migrations"
	"southbag/internal/money"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	maxAttempts    = 8
	firstBackoff   = 75 * time.Millisecond
	maxBackoffStep = 1200 * time.Millisecond
)

type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// Open connects, applies the embedded schema and returns the store. The
// store owns the pool.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	pool, err := db.Connect(ctx, databaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := db.ApplyPostgres(ctx, pool, migrations.FS); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return New(pool, logger), nil
}

func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, log: logger}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) RunAtomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	retryDelay := firstBackoff
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		s.log.Warn("ledger transaction conflict, retrying", "attempt", attempt+1, "delay", retryDelay.String())
		if err := db.SleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < maxBackoffStep {
			retryDelay *= 2
		}
	}
	return ledger.ErrTxConflict
}

func (s *Store) runOnce(ctx context.Context, fn func(tx ledger.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer pgTx.Rollback(ctx)

	if err := fn(&tx{tx: pgTx}); err != nil {
		return err
	}
	return pgTx.Commit(ctx)
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func fromNull(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ErrNotFound
	}
	return err
}

type tx struct {
	tx pgx.Tx
}

const accountColumns = `id, owner_id, account_number, name, balance_micros, status, tier, notifications,
	created_at, last_fee_at, last_beg_at, last_daily_at`

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var (
		a                         ledger.Account
		balance                   int64
		status                    string
		created                   time.Time
		lastFee, lastBeg, lastDly *time.Time
	)
	if err := row.Scan(&a.ID, &a.OwnerID, &a.AccountNumber, &a.Name, &balance, &status, &a.Tier, &a.Notifications,
		&created, &lastFee, &lastBeg, &lastDly); err != nil {
		return ledger.Account{}, err
	}
	a.Balance = money.FromMicros(balance)
	a.Status = ledger.AccountStatus(status)
	a.CreatedAt = created.UTC()
	a.LastFeeAt = fromNull(lastFee)
	a.LastBegAt = fromNull(lastBeg)
	a.LastDailyAt = fromNull(lastDly)
	return a, nil
}

// GetAccount locks the row for the rest of the unit of work.
func (t *tx) GetAccount(ctx context.Context, owner string) (ledger.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM bank.accounts
		WHERE owner_id = $1
		FOR UPDATE
	`, owner))
	if err != nil {
		return ledger.Account{}, notFound(err)
	}
	return a, nil
}

func (t *tx) InsertAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO bank.accounts (owner_id, account_number, name, balance_micros, status, tier, notifications,
			created_at, last_fee_at, last_beg_at, last_daily_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, a.OwnerID, a.AccountNumber, a.Name, money.ToMicros(a.Balance), string(a.Status), a.Tier, a.Notifications,
		created, nullTime(a.LastFeeAt), nullTime(a.LastBegAt), nullTime(a.LastDailyAt)).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.Account{}, ledger.ErrAlreadyExists
		}
		return ledger.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

type setList struct {
	sets []string
	args []any
}

func (l *setList) add(column string, value any) {
	l.args = append(l.args, value)
	l.sets = append(l.sets, fmt.Sprintf("%s = $%d", column, len(l.args)))
}

func (l *setList) where(column string, value any) string {
	l.args = append(l.args, value)
	return fmt.Sprintf("%s WHERE %s = $%d", strings.Join(l.sets, ", "), column, len(l.args))
}

func (t *tx) PatchAccount(ctx context.Context, owner string, p ledger.AccountPatch) error {
	var l setList
	if p.Balance != nil {
		l.add("balance_micros", money.ToMicros(*p.Balance))
	}
	if p.Status != nil {
		l.add("status", string(*p.Status))
	}
	if p.Tier != nil {
		l.add("tier", *p.Tier)
	}
	if p.Notifications != nil {
		l.add("notifications", *p.Notifications)
	}
	if p.LastFeeAt != nil {
		l.add("last_fee_at", nullTime(*p.LastFeeAt))
	}
	if p.LastBegAt != nil {
		l.add("last_beg_at", nullTime(*p.LastBegAt))
	}
	if p.LastDailyAt != nil {
		l.add("last_daily_at", nullTime(*p.LastDailyAt))
	}
	if len(l.sets) == 0 {
		_, err := t.GetAccount(ctx, owner)
		return err
	}
	tag, err := t.tx.Exec(ctx, `UPDATE bank.accounts SET `+l.where("owner_id", owner), l.args...)
	if err != nil {
		return fmt.Errorf("patch account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (t *tx) ListAccountsFeeDue(ctx context.Context, cutoff time.Time, limit int) ([]ledger.Account, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+accountColumns+`
		FROM bank.accounts
		WHERE last_fee_at IS NULL OR last_fee_at < $1
		ORDER BY last_fee_at NULLS FIRST, id
		LIMIT $2
	`, cutoff.UTC(), lim)
	if err != nil {
		return nil, fmt.Errorf("list fee due: %w", err)
	}
	defer rows.Close()
	var out []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *tx) InsertTransactions(ctx context.Context, txs []ledger.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, row := range txs {
		batch.Queue(`
			INSERT INTO bank.transactions (owner_id, batch_id, kind, amount_micros, description, balance_after_micros, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, row.OwnerID, row.BatchID, string(row.Kind), money.ToMicros(row.Amount), row.Description,
			money.ToMicros(row.BalanceAfter), row.CreatedAt.UTC())
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert transactions: %w", err)
	}
	return nil
}

func (t *tx) ListTransactions(ctx context.Context, owner string, limit int) ([]ledger.Transaction, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := t.tx.Query(ctx, `
		SELECT id, owner_id, batch_id::text, kind, amount_micros, description, balance_after_micros, created_at
		FROM bank.transactions
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, owner, lim)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	var out []ledger.Transaction
	for rows.Next() {
		var (
			row           ledger.Transaction
			kind          string
			amount, after int64
		)
		if err := rows.Scan(&row.ID, &row.OwnerID, &row.BatchID, &kind, &amount, &row.Description, &after, &row.CreatedAt); err != nil {
			return nil, err
		}
		row.Kind = ledger.Kind(kind)
		row.Amount = money.FromMicros(amount)
		row.BalanceAfter = money.FromMicros(after)
		row.CreatedAt = row.CreatedAt.UTC()
		out = append(out, row)
	}
	return out, rows.Err()
}

func (t *tx) DeleteTransactions(ctx context.Context, owner string) (int, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM bank.transactions WHERE owner_id = $1`, owner)
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (t *tx) GetActiveLoan(ctx context.Context, owner string) (ledger.Loan, error) {
	var (
		l                     ledger.Loan
		principal, rate, owed int64
		status                string
		closed                *time.Time
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, owner_id, principal_micros, rate_micros, status, taken_at, total_owed_micros, closed_at
		FROM bank.loans
		WHERE owner_id = $1 AND status = 'active'
		ORDER BY id DESC
		LIMIT 1
		FOR UPDATE
	`, owner).Scan(&l.ID, &l.OwnerID, &principal, &rate, &status, &l.TakenAt, &owed, &closed)
	if err != nil {
		return ledger.Loan{}, notFound(err)
	}
	l.Principal = money.FromMicros(principal)
	l.Rate = money.FromMicros(rate)
	l.Status = ledger.LoanStatus(status)
	l.TakenAt = l.TakenAt.UTC()
	l.TotalOwed = money.FromMicros(owed)
	l.ClosedAt = fromNull(closed)
	return l, nil
}

func (t *tx) InsertLoan(ctx context.Context, l ledger.Loan) (ledger.Loan, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO bank.loans (owner_id, principal_micros, rate_micros, status, taken_at, total_owed_micros, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, l.OwnerID, money.ToMicros(l.Principal), money.ToMicros(l.Rate), string(l.Status), l.TakenAt.UTC(),
		money.ToMicros(l.TotalOwed), nullTime(l.ClosedAt)).Scan(&l.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.Loan{}, ledger.ErrAlreadyExists
		}
		return ledger.Loan{}, fmt.Errorf("insert loan: %w", err)
	}
	return l, nil
}

func (t *tx) PatchLoan(ctx context.Context, id int64, p ledger.LoanPatch) error {
	var l setList
	if p.Status != nil {
		l.add("status", string(*p.Status))
	}
	if p.TotalOwed != nil {
		l.add("total_owed_micros", money.ToMicros(*p.TotalOwed))
	}
	if p.ClosedAt != nil {
		l.add("closed_at", nullTime(*p.ClosedAt))
	}
	if len(l.sets) == 0 {
		return nil
	}
	tag, err := t.tx.Exec(ctx, `UPDATE bank.loans SET `+l.where("id", id), l.args...)
	if err != nil {
		return fmt.Errorf("patch loan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (t *tx) ListHoldings(ctx context.Context, owner string) ([]ledger.Holding, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, owner_id, coin, quantity_micros, bought_at_micros, created_at
		FROM bank.holdings
		WHERE owner_id = $1
		ORDER BY id
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	defer rows.Close()
	var out []ledger.Holding
	for rows.Next() {
		var (
			h             ledger.Holding
			qty, boughtAt int64
		)
		if err := rows.Scan(&h.ID, &h.OwnerID, &h.Coin, &qty, &boughtAt, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Quantity = money.FromMicros(qty)
		h.BoughtAt = money.FromMicros(boughtAt)
		h.CreatedAt = h.CreatedAt.UTC()
		out = append(out, h)
	}
	return out, rows.Err()
}

func (t *tx) InsertHolding(ctx context.Context, h ledger.Holding) (ledger.Holding, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO bank.holdings (owner_id, coin, quantity_micros, bought_at_micros, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, h.OwnerID, h.Coin, money.ToMicros(h.Quantity), money.ToMicros(h.BoughtAt), h.CreatedAt.UTC()).Scan(&h.ID)
	if err != nil {
		return ledger.Holding{}, fmt.Errorf("insert holding: %w", err)
	}
	return h, nil
}

func (t *tx) DeleteHoldings(ctx context.Context, owner, coin string) (int, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM bank.holdings WHERE owner_id = $1 AND coin = $2`, owner, coin)
	if err != nil {
		return 0, fmt.Errorf("delete holdings: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (t *tx) GetInsurance(ctx context.Context, owner string) (ledger.Insurance, error) {
	var (
		ins     ledger.Insurance
		premium int64
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, owner_id, plan, premium_micros, covered_until, created_at
		FROM bank.insurance
		WHERE owner_id = $1
	`, owner).Scan(&ins.ID, &ins.OwnerID, &ins.Plan, &premium, &ins.CoveredUntil, &ins.CreatedAt)
	if err != nil {
		return ledger.Insurance{}, notFound(err)
	}
	ins.Premium = money.FromMicros(premium)
	ins.CoveredUntil = ins.CoveredUntil.UTC()
	ins.CreatedAt = ins.CreatedAt.UTC()
	return ins, nil
}

func (t *tx) PutInsurance(ctx context.Context, ins ledger.Insurance) (ledger.Insurance, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bank.insurance (owner_id, plan, premium_micros, covered_until, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id) DO UPDATE SET
			plan = EXCLUDED.plan,
			premium_micros = EXCLUDED.premium_micros,
			covered_until = EXCLUDED.covered_until
	`, ins.OwnerID, ins.Plan, money.ToMicros(ins.Premium), ins.CoveredUntil.UTC(), ins.CreatedAt.UTC())
	if err != nil {
		return ledger.Insurance{}, fmt.Errorf("put insurance: %w", err)
	}
	return t.GetInsurance(ctx, ins.OwnerID)
}

func (t *tx) GetJob(ctx context.Context, owner string) (ledger.Job, error) {
	var (
		j      ledger.Job
		salary int64
		worked *time.Time
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, owner_id, title, salary_micros, hired_at, last_worked_at
		FROM bank.jobs
		WHERE owner_id = $1
	`, owner).Scan(&j.ID, &j.OwnerID, &j.Title, &salary, &j.HiredAt, &worked)
	if err != nil {
		return ledger.Job{}, notFound(err)
	}
	j.Salary = money.FromMicros(salary)
	j.HiredAt = j.HiredAt.UTC()
	j.LastWorkedAt = fromNull(worked)
	return j, nil
}

func (t *tx) InsertJob(ctx context.Context, j ledger.Job) (ledger.Job, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO bank.jobs (owner_id, title, salary_micros, hired_at, last_worked_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, j.OwnerID, j.Title, money.ToMicros(j.Salary), j.HiredAt.UTC(), nullTime(j.LastWorkedAt)).Scan(&j.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.Job{}, ledger.ErrAlreadyExists
		}
		return ledger.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return j, nil
}

func (t *tx) TouchJob(ctx context.Context, owner string, workedAt time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE bank.jobs SET last_worked_at = $1 WHERE owner_id = $2`, nullTime(workedAt), owner)
	if err != nil {
		return fmt.Errorf("touch job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (t *tx) DeleteJob(ctx context.Context, owner string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM bank.jobs WHERE owner_id = $1`, owner)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (t *tx) ListHeists(ctx context.Context, channel string, status ledger.HeistStatus) ([]ledger.Heist, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, channel_id, organizer_id, participants, status, created_at, completed_at
		FROM bank.heists
		WHERE channel_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY id DESC
	`, channel, string(status))
	if err != nil {
		return nil, fmt.Errorf("list heists: %w", err)
	}
	defer rows.Close()
	var out []ledger.Heist
	for rows.Next() {
		var (
			h         ledger.Heist
			hStatus   string
			completed *time.Time
		)
		if err := rows.Scan(&h.ID, &h.ChannelID, &h.OrganizerID, &h.Participants, &hStatus, &h.CreatedAt, &completed); err != nil {
			return nil, err
		}
		h.Status = ledger.HeistStatus(hStatus)
		h.CreatedAt = h.CreatedAt.UTC()
		h.CompletedAt = fromNull(completed)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (t *tx) InsertHeist(ctx context.Context, h ledger.Heist) (ledger.Heist, error) {
	participants := h.Participants
	if participants == nil {
		participants = []string{}
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO bank.heists (channel_id, organizer_id, participants, status, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, h.ChannelID, h.OrganizerID, participants, string(h.Status), h.CreatedAt.UTC(), nullTime(h.CompletedAt)).Scan(&h.ID)
	if err != nil {
		return ledger.Heist{}, fmt.Errorf("insert heist: %w", err)
	}
	return h, nil
}

func (t *tx) PatchHeist(ctx context.Context, id int64, p ledger.HeistPatch) error {
	var l setList
	if p.Participants != nil {
		l.add("participants", p.Participants)
	}
	if p.Status != nil {
		l.add("status", string(*p.Status))
	}
	if p.CompletedAt != nil {
		l.add("completed_at", nullTime(*p.CompletedAt))
	}
	if len(l.sets) == 0 {
		return nil
	}
	tag, err := t.tx.Exec(ctx, `UPDATE bank.heists SET `+l.where("id", id), l.args...)
	if err != nil {
		return fmt.Errorf("patch heist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}
