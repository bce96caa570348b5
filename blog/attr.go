// This file contains helper functions that can be used throughout the code
// base to ensure that certain commonly-logged values always have the same key
// name and value type. This prevents situations like sometimes calling the
// table "table" and sometimes "tbl"; or sometimes logging the row index as an
// integer and sometimes as a string.
//
// Any time we find ourselves logging the same slog.Attr from 3+ files we
// should consider adding a helper here instead.
//
// Note that several other attr keys are reserved and should not be used:
//   - "time": used by the slog package
//   - "level": used by the slog package
//   - "msg": used by the slog package
//   - "source": used by the slog package
//   - "error": used by our blog.Error and blog.AuditError helpers
//   - "audit": used by our blog.AuditError and blog.AuditInfo helpers

package blog

import "log/slog"

// Table returns a slog.Attr whose key is "table" and whose value is the
// schema-qualified, unquoted table name.
func Table(name string) slog.Attr {
	return slog.String("table", name)
}

// BatchID returns a slog.Attr whose key is "batch" and whose value is the
// per-batch correlation ID.
func BatchID(id string) slog.Attr {
	return slog.String("batch", id)
}

// Operation returns a slog.Attr whose key is "op" and whose value is the DML
// operation of the batch (insert, update, delete).
func Operation(op string) slog.Attr {
	return slog.String("op", op)
}

// RowIndex returns a slog.Attr whose key is "row" and whose value is the
// zero-based index of the row within its batch.
func RowIndex(i int) slog.Attr {
	return slog.Int("row", i)
}

// Rows returns a slog.Attr whose key is "rows" and whose value is a row
// count.
func Rows(n int64) slog.Attr {
	return slog.Int64("rows", n)
}

// SQL returns a slog.Attr whose key is "sql" and whose value is the statement
// text. Never log bound values with it.
func SQL(statement string) slog.Attr {
	return slog.String("sql", statement)
}
