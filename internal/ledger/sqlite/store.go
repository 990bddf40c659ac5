// Package sqlite provides the SQLite-backed ledger store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"southbag/internal/db"
	"southbag/internal/ledger"
	"southbag/internal/ledger/sqlite/migrations"
	"southbag/internal/money"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists the ledger in a single SQLite file.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite ledger store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := db.ApplySQLite(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) RunAtomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(&tx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type tx struct {
	tx *sql.Tx
}

type scanner interface {
	Scan(dest ...any) error
}

const accountColumns = `id, owner_id, account_number, name, balance_micros, status, tier, notifications,
	created_at, last_fee_at, last_beg_at, last_daily_at`

func scanAccount(row scanner) (ledger.Account, error) {
	var (
		a                                 ledger.Account
		balance                           int64
		status                            string
		notify                            int
		created, lastFee, lastBeg, lastDy int64
	)
	if err := row.Scan(&a.ID, &a.OwnerID, &a.AccountNumber, &a.Name, &balance, &status, &a.Tier, &notify,
		&created, &lastFee, &lastBeg, &lastDy); err != nil {
		return ledger.Account{}, err
	}
	a.Balance = money.FromMicros(balance)
	a.Status = ledger.AccountStatus(status)
	a.Notifications = notify != 0
	a.CreatedAt = fromMillis(created)
	a.LastFeeAt = fromMillis(lastFee)
	a.LastBegAt = fromMillis(lastBeg)
	a.LastDailyAt = fromMillis(lastDy)
	return a, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrNotFound
	}
	return err
}

func (t *tx) GetAccount(ctx context.Context, owner string) (ledger.Account, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id = ?`, owner)
	a, err := scanAccount(row)
	if err != nil {
		return ledger.Account{}, notFound(err)
	}
	return a, nil
}

func (t *tx) InsertAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (owner_id, account_number, name, balance_micros, status, tier, notifications,
			created_at, last_fee_at, last_beg_at, last_daily_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.OwnerID, a.AccountNumber, a.Name, money.ToMicros(a.Balance), string(a.Status), a.Tier, boolInt(a.Notifications),
		toMillis(a.CreatedAt), toMillis(a.LastFeeAt), toMillis(a.LastBegAt), toMillis(a.LastDailyAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.Account{}, ledger.ErrAlreadyExists
		}
		return ledger.Account{}, fmt.Errorf("insert account: %w", err)
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return ledger.Account{}, fmt.Errorf("insert account id: %w", err)
	}
	return a, nil
}

func (t *tx) PatchAccount(ctx context.Context, owner string, p ledger.AccountPatch) error {
	var (
		sets []string
		args []any
	)
	if p.Balance != nil {
		sets = append(sets, "balance_micros = ?")
		args = append(args, money.ToMicros(*p.Balance))
	}
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*p.Status))
	}
	if p.Tier != nil {
		sets = append(sets, "tier = ?")
		args = append(args, *p.Tier)
	}
	if p.Notifications != nil {
		sets = append(sets, "notifications = ?")
		args = append(args, boolInt(*p.Notifications))
	}
	if p.LastFeeAt != nil {
		sets = append(sets, "last_fee_at = ?")
		args = append(args, toMillis(*p.LastFeeAt))
	}
	if p.LastBegAt != nil {
		sets = append(sets, "last_beg_at = ?")
		args = append(args, toMillis(*p.LastBegAt))
	}
	if p.LastDailyAt != nil {
		sets = append(sets, "last_daily_at = ?")
		args = append(args, toMillis(*p.LastDailyAt))
	}
	if len(sets) == 0 {
		_, err := t.GetAccount(ctx, owner)
		return err
	}
	args = append(args, owner)
	res, err := t.tx.ExecContext(ctx, `UPDATE accounts SET `+strings.Join(sets, ", ")+` WHERE owner_id = ?`, args...)
	if err != nil {
		return fmt.Errorf("patch account: %w", err)
	}
	return requireRow(res)
}

func (t *tx) ListAccountsFeeDue(ctx context.Context, cutoff time.Time, limit int) ([]ledger.Account, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE last_fee_at < ?
		ORDER BY last_fee_at, id
		LIMIT ?`, toMillis(cutoff), limit)
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
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO transactions (owner_id, batch_id, kind, amount_micros, description, balance_after_micros, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare transactions: %w", err)
	}
	defer stmt.Close()
	for _, row := range txs {
		if _, err := stmt.ExecContext(ctx, row.OwnerID, row.BatchID, string(row.Kind), money.ToMicros(row.Amount),
			row.Description, money.ToMicros(row.BalanceAfter), toMillis(row.CreatedAt)); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	}
	return nil
}

func (t *tx) ListTransactions(ctx context.Context, owner string, limit int) ([]ledger.Transaction, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, owner_id, batch_id, kind, amount_micros, description, balance_after_micros, created_at
		FROM transactions
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, owner, limit)
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
			created       int64
		)
		if err := rows.Scan(&row.ID, &row.OwnerID, &row.BatchID, &kind, &amount, &row.Description, &after, &created); err != nil {
			return nil, err
		}
		row.Kind = ledger.Kind(kind)
		row.Amount = money.FromMicros(amount)
		row.BalanceAfter = money.FromMicros(after)
		row.CreatedAt = fromMillis(created)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (t *tx) DeleteTransactions(ctx context.Context, owner string) (int, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM transactions WHERE owner_id = ?`, owner)
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *tx) GetActiveLoan(ctx context.Context, owner string) (ledger.Loan, error) {
	var (
		l                     ledger.Loan
		principal, rate, owed int64
		status                string
		taken, closed         int64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, owner_id, principal_micros, rate_micros, status, taken_at, total_owed_micros, closed_at
		FROM loans
		WHERE owner_id = ? AND status = 'active'
		ORDER BY id DESC
		LIMIT 1`, owner).Scan(&l.ID, &l.OwnerID, &principal, &rate, &status, &taken, &owed, &closed)
	if err != nil {
		return ledger.Loan{}, notFound(err)
	}
	l.Principal = money.FromMicros(principal)
	l.Rate = money.FromMicros(rate)
	l.Status = ledger.LoanStatus(status)
	l.TakenAt = fromMillis(taken)
	l.TotalOwed = money.FromMicros(owed)
	l.ClosedAt = fromMillis(closed)
	return l, nil
}

func (t *tx) InsertLoan(ctx context.Context, l ledger.Loan) (ledger.Loan, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO loans (owner_id, principal_micros, rate_micros, status, taken_at, total_owed_micros, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.OwnerID, money.ToMicros(l.Principal), money.ToMicros(l.Rate), string(l.Status),
		toMillis(l.TakenAt), money.ToMicros(l.TotalOwed), toMillis(l.ClosedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.Loan{}, ledger.ErrAlreadyExists
		}
		return ledger.Loan{}, fmt.Errorf("insert loan: %w", err)
	}
	l.ID, err = res.LastInsertId()
	return l, err
}

func (t *tx) PatchLoan(ctx context.Context, id int64, p ledger.LoanPatch) error {
	var (
		sets []string
		args []any
	)
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*p.Status))
	}
	if p.TotalOwed != nil {
		sets = append(sets, "total_owed_micros = ?")
		args = append(args, money.ToMicros(*p.TotalOwed))
	}
	if p.ClosedAt != nil {
		sets = append(sets, "closed_at = ?")
		args = append(args, toMillis(*p.ClosedAt))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := t.tx.ExecContext(ctx, `UPDATE loans SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("patch loan: %w", err)
	}
	return requireRow(res)
}

func (t *tx) ListHoldings(ctx context.Context, owner string) ([]ledger.Holding, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, owner_id, coin, quantity_micros, bought_at_micros, created_at
		FROM holdings
		WHERE owner_id = ?
		ORDER BY id`, owner)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	defer rows.Close()
	var out []ledger.Holding
	for rows.Next() {
		var (
			h             ledger.Holding
			qty, boughtAt int64
			created       int64
		)
		if err := rows.Scan(&h.ID, &h.OwnerID, &h.Coin, &qty, &boughtAt, &created); err != nil {
			return nil, err
		}
		h.Quantity = money.FromMicros(qty)
		h.BoughtAt = money.FromMicros(boughtAt)
		h.CreatedAt = fromMillis(created)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (t *tx) InsertHolding(ctx context.Context, h ledger.Holding) (ledger.Holding, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO holdings (owner_id, coin, quantity_micros, bought_at_micros, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		h.OwnerID, h.Coin, money.ToMicros(h.Quantity), money.ToMicros(h.BoughtAt), toMillis(h.CreatedAt))
	if err != nil {
		return ledger.Holding{}, fmt.Errorf("insert holding: %w", err)
	}
	h.ID, err = res.LastInsertId()
	return h, err
}

func (t *tx) DeleteHoldings(ctx context.Context, owner, coin string) (int, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM holdings WHERE owner_id = ? AND coin = ?`, owner, coin)
	if err != nil {
		return 0, fmt.Errorf("delete holdings: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *tx) GetInsurance(ctx context.Context, owner string) (ledger.Insurance, error) {
	var (
		ins              ledger.Insurance
		premium          int64
		covered, created int64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, owner_id, plan, premium_micros, covered_until, created_at
		FROM insurance
		WHERE owner_id = ?`, owner).Scan(&ins.ID, &ins.OwnerID, &ins.Plan, &premium, &covered, &created)
	if err != nil {
		return ledger.Insurance{}, notFound(err)
	}
	ins.Premium = money.FromMicros(premium)
	ins.CoveredUntil = fromMillis(covered)
	ins.CreatedAt = fromMillis(created)
	return ins, nil
}

func (t *tx) PutInsurance(ctx context.Context, ins ledger.Insurance) (ledger.Insurance, error) {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO insurance (owner_id, plan, premium_micros, covered_until, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner_id) DO UPDATE SET
			plan = excluded.plan,
			premium_micros = excluded.premium_micros,
			covered_until = excluded.covered_until`,
		ins.OwnerID, ins.Plan, money.ToMicros(ins.Premium), toMillis(ins.CoveredUntil), toMillis(ins.CreatedAt))
	if err != nil {
		return ledger.Insurance{}, fmt.Errorf("put insurance: %w", err)
	}
	return t.GetInsurance(ctx, ins.OwnerID)
}

func (t *tx) GetJob(ctx context.Context, owner string) (ledger.Job, error) {
	var (
		j             ledger.Job
		salary        int64
		hired, worked int64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, owner_id, title, salary_micros, hired_at, last_worked_at
		FROM jobs
		WHERE owner_id = ?`, owner).Scan(&j.ID, &j.OwnerID, &j.Title, &salary, &hired, &worked)
	if err != nil {
		return ledger.Job{}, notFound(err)
	}
	j.Salary = money.FromMicros(salary)
	j.HiredAt = fromMillis(hired)
	j.LastWorkedAt = fromMillis(worked)
	return j, nil
}

func (t *tx) InsertJob(ctx context.Context, j ledger.Job) (ledger.Job, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO jobs (owner_id, title, salary_micros, hired_at, last_worked_at)
		VALUES (?, ?, ?, ?, ?)`,
		j.OwnerID, j.Title, money.ToMicros(j.Salary), toMillis(j.HiredAt), toMillis(j.LastWorkedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.Job{}, ledger.ErrAlreadyExists
		}
		return ledger.Job{}, fmt.Errorf("insert job: %w", err)
	}
	j.ID, err = res.LastInsertId()
	return j, err
}

func (t *tx) TouchJob(ctx context.Context, owner string, workedAt time.Time) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE jobs SET last_worked_at = ? WHERE owner_id = ?`, toMillis(workedAt), owner)
	if err != nil {
		return fmt.Errorf("touch job: %w", err)
	}
	return requireRow(res)
}

func (t *tx) DeleteJob(ctx context.Context, owner string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM jobs WHERE owner_id = ?`, owner)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return requireRow(res)
}

func (t *tx) ListHeists(ctx context.Context, channel string, status ledger.HeistStatus) ([]ledger.Heist, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, channel_id, organizer_id, participants, status, created_at, completed_at
		FROM heists
		WHERE channel_id = ? AND (? = '' OR status = ?)
		ORDER BY id DESC`, channel, string(status), string(status))
	if err != nil {
		return nil, fmt.Errorf("list heists: %w", err)
	}
	defer rows.Close()
	var out []ledger.Heist
	for rows.Next() {
		var (
			h                  ledger.Heist
			participants       string
			hStatus            string
			created, completed int64
		)
		if err := rows.Scan(&h.ID, &h.ChannelID, &h.OrganizerID, &participants, &hStatus, &created, &completed); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(participants), &h.Participants); err != nil {
			return nil, fmt.Errorf("decode heist %d participants: %w", h.ID, err)
		}
		h.Status = ledger.HeistStatus(hStatus)
		h.CreatedAt = fromMillis(created)
		h.CompletedAt = fromMillis(completed)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (t *tx) InsertHeist(ctx context.Context, h ledger.Heist) (ledger.Heist, error) {
	participants, err := encodeParticipants(h.Participants)
	if err != nil {
		return ledger.Heist{}, err
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO heists (channel_id, organizer_id, participants, status, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.ChannelID, h.OrganizerID, participants, string(h.Status), toMillis(h.CreatedAt), toMillis(h.CompletedAt))
	if err != nil {
		return ledger.Heist{}, fmt.Errorf("insert heist: %w", err)
	}
	h.ID, err = res.LastInsertId()
	return h, err
}

func (t *tx) PatchHeist(ctx context.Context, id int64, p ledger.HeistPatch) error {
	var (
		sets []string
		args []any
	)
	if p.Participants != nil {
		participants, err := encodeParticipants(p.Participants)
		if err != nil {
			return err
		}
		sets = append(sets, "participants = ?")
		args = append(args, participants)
	}
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*p.Status))
	}
	if p.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, toMillis(*p.CompletedAt))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := t.tx.ExecContext(ctx, `UPDATE heists SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("patch heist: %w", err)
	}
	return requireRow(res)
}

func encodeParticipants(participants []string) (string, error) {
	if participants == nil {
		participants = []string{}
	}
	raw, err := json.Marshal(participants)
	if err != nil {
		return "", fmt.Errorf("encode participants: %w", err)
	}
	return string(raw), nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
