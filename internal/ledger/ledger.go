package ledger

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/wrenfield/starling/internal/model"
)

// ErrInsufficientStars is returned when a debit would take a balance below
// zero. The balance is left untouched.
var ErrInsufficientStars = errors.New("insufficient stars")

// querier is satisfied by both *sql.DB and *sql.Tx so a ledger mutation can
// commit inside the same transaction as the lifecycle transition that
// caused it.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
}

// StarLedger owns per-child star balances, partitioned by star type.
// Balances change only through Apply, keyed by a unique ledger entry id
// derived from the transition that caused the change.
type StarLedger struct {
	db *sql.DB
}

func New(db *sql.DB) *StarLedger {
	return &StarLedger{db: db}
}

// ApplyDelta applies a signed delta in its own transaction and returns the
// resulting balance. Replaying an entry id returns the balance recorded the
// first time, without mutating anything.
func (l *StarLedger) ApplyDelta(childID int64, starType string, delta int, entryID string) (int, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	after, err := Apply(tx, childID, starType, delta, entryID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delta: %w", err)
	}
	return after, nil
}

// Apply performs the guarded, idempotent delta against q, which may be a
// transaction shared with a status write. The sequence is: replay check on
// the durable entry table, balance guard, balance upsert, entry insert. On
// ErrInsufficientStars nothing has been written.
func Apply(q querier, childID int64, starType string, delta int, entryID string) (int, error) {
	var after int
	err := q.QueryRow(
		`SELECT balance_after FROM star_ledger_entries WHERE entry_id = ?`, entryID,
	).Scan(&after)
	if err == nil {
		// Entry already applied; a retried transition is a success.
		return after, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("check ledger entry: %w", err)
	}

	var current int
	err = q.QueryRow(
		`SELECT amount FROM star_balances WHERE child_id = ? AND star_type = ?`,
		childID, starType,
	).Scan(&current)
	if err == sql.ErrNoRows {
		current = 0
	} else if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}

	after = current + delta
	if after < 0 {
		return 0, fmt.Errorf("%w: balance %d, delta %d", ErrInsufficientStars, current, delta)
	}

	_, err = q.Exec(
		`INSERT INTO star_balances (child_id, star_type, amount, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(child_id, star_type) DO UPDATE SET amount = excluded.amount, updated_at = CURRENT_TIMESTAMP`,
		childID, starType, after,
	)
	if err != nil {
		return 0, fmt.Errorf("write balance: %w", err)
	}

	_, err = q.Exec(
		`INSERT INTO star_ledger_entries (entry_id, child_id, star_type, delta, balance_after)
		 VALUES (?, ?, ?, ?, ?)`,
		entryID, childID, starType, delta, after,
	)
	if err != nil {
		return 0, fmt.Errorf("write ledger entry: %w", err)
	}

	return after, nil
}

// Balance returns the current amount for one (child, star type) partition.
// A partition that has never been touched reads as zero.
func (l *StarLedger) Balance(childID int64, starType string) (int, error) {
	var amount int
	err := l.db.QueryRow(
		`SELECT amount FROM star_balances WHERE child_id = ? AND star_type = ?`,
		childID, starType,
	).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return amount, nil
}

// Balances returns every star-type partition a child has touched.
func (l *StarLedger) Balances(childID int64) ([]model.StarBalance, error) {
	rows, err := l.db.Query(
		`SELECT child_id, star_type, amount, updated_at
		 FROM star_balances WHERE child_id = ? ORDER BY star_type ASC`,
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var balances []model.StarBalance
	for rows.Next() {
		var b model.StarBalance
		if err := rows.Scan(&b.ChildID, &b.StarType, &b.Amount, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// History lists the most recent ledger entries for a child, newest first.
func (l *StarLedger) History(childID int64, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(
		`SELECT id, entry_id, child_id, star_type, delta, balance_after, created_at
		 FROM star_ledger_entries WHERE child_id = ? ORDER BY id DESC LIMIT ?`,
		childID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.EntryID, &e.ChildID, &e.StarType, &e.Delta, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
