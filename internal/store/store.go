package store

import "database/sql"

// querier is satisfied by *sql.DB and *sql.Tx so the lifecycle engine can
// run status transitions inside the same transaction as ledger writes.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}
