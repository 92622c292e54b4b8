package migrator

import (
	"context"
	"database/sql"
)

// Execer is the minimal interface needed to read the control table and run
// scripts. Implemented by *sql.DB, *sql.Tx, and *sql.Conn.
//
// When the value also has a BeginTx method (*sql.DB, *sql.Conn), each script
// runs inside its own transaction. A bare *sql.Tx runs statements directly and
// leaves commit to the caller.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
