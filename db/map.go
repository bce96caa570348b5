package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-sql-driver/mysql"
	"github.com/letsencrypt/borp"
	"github.com/lib/pq"
)

// ErrDatabaseOp is a failed database call: Op is what was attempted (begin
// transaction, exec, select, commit transaction) and Table, when known, the
// table the statement addressed.
type ErrDatabaseOp struct {
	Op    string
	Table string
	Err   error
}

func (e ErrDatabaseOp) Error() string {
	target := e.Op
	if e.Table != "" {
		target += " " + e.Table
	}
	return fmt.Sprintf("failed to %s: %s", target, e.Err)
}

func (e ErrDatabaseOp) Unwrap() error {
	return e.Err
}

// IsNoRows is a utility function for determining if an error wraps the go sql
// package's ErrNoRows, which is returned when a Scan operation has no more
// results to return.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsDuplicate is a utility function for determining if an error wraps MySQL's
// Error 1062: Duplicate entry, or PostgreSQL's unique_violation (23505). Both
// are returned when writing a row would violate a unique key constraint.
func IsDuplicate(err error) bool {
	var dbErr *mysql.MySQLError
	if errors.As(err, &dbErr) {
		return dbErr.Number == 1062
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// WrappedMap is a *borp.DbMap whose statement errors come back as
// ErrDatabaseOp. It satisfies Conn and Beginner.
type WrappedMap struct {
	dbMap *borp.DbMap
}

func NewWrappedMap(dbMap *borp.DbMap) *WrappedMap {
	return &WrappedMap{dbMap: dbMap}
}

// SQLDb returns the *sql.DB underlying the map.
func (m *WrappedMap) SQLDb() *sql.DB {
	return m.dbMap.Db
}

func (m *WrappedMap) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return WrappedExecutor{m.dbMap}.ExecContext(ctx, query, args...)
}

func (m *WrappedMap) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return WrappedExecutor{m.dbMap}.QueryContext(ctx, query, args...)
}

// BeginTx starts a transaction whose statements are wrapped the same way.
func (m *WrappedMap) BeginTx(ctx context.Context) (Transaction, error) {
	tx, err := m.dbMap.BeginTx(ctx)
	if err != nil {
		return nil, ErrDatabaseOp{Op: "begin transaction", Err: err}
	}
	return WrappedTransaction{WrappedExecutor{tx}, tx}, nil
}

// WrappedTransaction is a *borp.Transaction whose statement errors come back
// as ErrDatabaseOp. It does not implement Preparer; rows run through it are
// executed one ExecContext at a time.
type WrappedTransaction struct {
	WrappedExecutor
	tx *borp.Transaction
}

func (t WrappedTransaction) Commit() error {
	return t.tx.Commit()
}

func (t WrappedTransaction) Rollback() error {
	return t.tx.Rollback()
}

// WrappedExecutor runs statements on a borp.SqlExecutor, wrapping failures
// in an ErrDatabaseOp naming the statement's table.
type WrappedExecutor struct {
	exec borp.SqlExecutor
}

func (we WrappedExecutor) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := we.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ErrDatabaseOp{Op: "select", Table: tableOrUnknown(query), Err: err}
	}
	return rows, nil
}

func (we WrappedExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := we.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return res, ErrDatabaseOp{Op: "exec", Table: tableOrUnknown(query), Err: err}
	}
	return res, nil
}

// statementTable captures the table addressed by the statements the engine
// issues: INSERT INTO, UPDATE, DELETE FROM and the locator re-select. Names
// may be schema-qualified and quoted with backticks or double quotes.
var statementTable = regexp.MustCompile(
	`(?is)^\s*(?:insert\s+into|update|delete\s+from|select\s+.+?\s+from)\s+([a-z\d_.` + "`" + `"]+)(?:[\s(]|$)`)

// tableFromQuery returns the table addressed by query, or "" if it cannot
// tell.
func tableFromQuery(query string) string {
	m := statementTable.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	return m[1]
}

func tableOrUnknown(query string) string {
	if table := tableFromQuery(query); table != "" {
		return table
	}
	return "unknown table"
}
