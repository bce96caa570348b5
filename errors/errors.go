// Package errors provides the typed errors returned by the batch engine. Every
// failure the engine surfaces is one of these, so callers can decide whether
// to abort the surrounding transaction without string matching.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType provides a coarse category for BatchErrors
type ErrorType int

const (
	InternalServer ErrorType = iota
	// InvalidBatch means the batch itself was malformed: mismatched row widths,
	// columns from another table, or rows with differing qualifier NULLs.
	InvalidBatch
	// Mapping means a column could not be mapped to a converter.
	Mapping
	// Cardinality means a LOB re-select did not return exactly one row.
	Cardinality
	// Backend means a statement execution or LOB stream write failed.
	Backend
	// Unsupported means the batch cannot be run on the selected path, e.g. a
	// delete batch given to the LOB executor.
	Unsupported
	// OptimisticLock means an optimistically locked row was not matched.
	OptimisticLock
)

var typeNames = map[ErrorType]string{
	InternalServer: "internal",
	InvalidBatch:   "invalid batch",
	Mapping:        "mapping",
	Cardinality:    "cardinality",
	Backend:        "backend",
	Unsupported:    "unsupported",
	OptimisticLock: "optimistic lock",
}

func (t ErrorType) String() string {
	name, ok := typeNames[t]
	if !ok {
		return fmt.Sprintf("ErrorType(%d)", int(t))
	}
	return name
}

// NoRow is the Row value of a BatchError that is not tied to a particular row.
const NoRow = -1

// BatchError represents internal batch engine errors. SQL and Row carry the
// statement and the zero-based row index that were being processed, when
// known.
type BatchError struct {
	Type   ErrorType
	Detail string
	SQL    string
	Row    int
	Err    error
}

func (be *BatchError) Error() string {
	msg := be.Detail
	if be.Err != nil {
		if msg == "" {
			msg = be.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %s", msg, be.Err)
		}
	}
	if be.Row != NoRow {
		msg = fmt.Sprintf("row %d: %s", be.Row, msg)
	}
	if be.SQL != "" {
		msg = fmt.Sprintf("%s [sql: %s]", msg, be.SQL)
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (be *BatchError) Unwrap() error {
	return be.Err
}

// New is a convenience function for creating a new BatchError
func New(errType ErrorType, msg string, args ...any) error {
	return &BatchError{
		Type:   errType,
		Detail: fmt.Sprintf(msg, args...),
		Row:    NoRow,
	}
}

// Wrap creates a BatchError of the given type around err, annotated with the
// statement and row being processed. Use NoRow when no row applies.
func Wrap(errType ErrorType, err error, sql string, row int) error {
	return &BatchError{
		Type: errType,
		SQL:  sql,
		Row:  row,
		Err:  err,
	}
}

// WithContext returns err annotated with sql and row. A BatchError keeps its
// type and any context it already had; anything else becomes a Backend
// error.
func WithContext(err error, sql string, row int) error {
	if err == nil {
		return nil
	}
	var be *BatchError
	if errors.As(err, &be) {
		out := *be
		if out.SQL == "" {
			out.SQL = sql
		}
		if out.Row == NoRow {
			out.Row = row
		}
		return &out
	}
	return Wrap(Backend, err, sql, row)
}

// Is is a convenience function for testing the internal type of a BatchError
// anywhere in err's chain.
func Is(err error, errType ErrorType) bool {
	var be *BatchError
	if !errors.As(err, &be) {
		return false
	}
	return be.Type == errType
}
