package test

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// MockDB returns a sqlmock-backed *sql.DB whose expected statements must
// match exactly, and the mock to set expectations on. The DB is closed when
// the test finishes.
func MockDB(t testing.TB) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("Couldn't create mock db: %s", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// MockTx begins a transaction on a fresh MockDB. The Begin expectation is
// already consumed.
func MockTx(t testing.TB) (*sql.Tx, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := MockDB(t)
	mock.ExpectBegin()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Couldn't begin mock transaction: %s", err)
	}
	return tx, mock
}
