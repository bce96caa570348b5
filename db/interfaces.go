package db

import (
	"context"
	"database/sql"
)

// These interfaces describe the connection a batch runs on. The engine never
// opens, commits or rolls back a connection itself; callers hand it an open
// transaction.

// A Execer is anything that provides an `ExecContext` function
type Execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// Queryer offers the QueryContext method. The LOB path uses it for the
// locking re-select of a just written row.
type Queryer interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}

// Conn is what a batch executes against. *sql.Tx, *sql.Conn, *sql.DB and
// WrappedTransaction all satisfy it.
type Conn interface {
	Execer
	Queryer
}

// Preparer is implemented by connections that can prepare a statement once
// and execute it for every row of a batch.
type Preparer interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

// Transaction is a Conn that can be finished.
type Transaction interface {
	Conn
	Rollback() error
	Commit() error
}

// Beginner starts transactions.
type Beginner interface {
	BeginTx(context.Context) (Transaction, error)
}
