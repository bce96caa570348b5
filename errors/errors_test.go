package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/letsencrypt/batchdml/test"
)

func TestBatchErrorMessage(t *testing.T) {
	cause := errors.New("connection reset")
	testCases := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "detail only",
			err:      New(Mapping, "no converter for %s", "GEOMETRY"),
			expected: "no converter for GEOMETRY",
		},
		{
			name:     "wrapped with row and sql",
			err:      Wrap(Backend, cause, "DELETE FROM t WHERE id = ?", 3),
			expected: "row 3: connection reset [sql: DELETE FROM t WHERE id = ?]",
		},
		{
			name:     "wrapped without row",
			err:      Wrap(Backend, cause, "INSERT INTO t () VALUES ()", NoRow),
			expected: "connection reset [sql: INSERT INTO t () VALUES ()]",
		},
		{
			name: "detail and cause",
			err: &BatchError{
				Type:   Cardinality,
				Detail: "expected one row",
				Row:    0,
				Err:    cause,
			},
			expected: "row 0: expected one row: connection reset",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			test.AssertEquals(t, tc.err.Error(), tc.expected)
		})
	}
}

func TestIs(t *testing.T) {
	err := New(Cardinality, "got %d rows", 2)
	test.Assert(t, Is(err, Cardinality), "expected Cardinality")
	test.Assert(t, !Is(err, Backend), "did not expect Backend")
	test.Assert(t, Is(fmt.Errorf("wrapped: %w", err), Cardinality), "expected Cardinality through a wrapper")
	test.Assert(t, !Is(errors.New("plain"), Cardinality), "plain errors have no type")
}

func TestWithContext(t *testing.T) {
	test.AssertNil(t, WithContext(nil, "SELECT 1", 0), "nil stays nil")

	cause := errors.New("i/o timeout")
	err := WithContext(cause, "UPDATE t SET a = ? WHERE id = ?", 5)
	test.Assert(t, Is(err, Backend), "foreign errors become Backend errors")
	test.AssertErrorIs(t, err, cause)

	var be *BatchError
	test.AssertErrorWraps(t, err, &be)
	test.AssertEquals(t, be.Row, 5)
	test.AssertEquals(t, be.SQL, "UPDATE t SET a = ? WHERE id = ?")

	typed := New(Mapping, "no converter")
	err = WithContext(typed, "INSERT INTO t (a) VALUES (?)", 2)
	test.Assert(t, Is(err, Mapping), "typed errors keep their type")
	test.AssertErrorWraps(t, err, &be)
	test.AssertEquals(t, be.Row, 2)

	// Context already present is not overwritten.
	err = WithContext(err, "SELECT 2", 9)
	test.AssertErrorWraps(t, err, &be)
	test.AssertEquals(t, be.Row, 2)
	test.AssertEquals(t, be.SQL, "INSERT INTO t (a) VALUES (?)")
}

func TestErrorTypeString(t *testing.T) {
	test.AssertEquals(t, Unsupported.String(), "unsupported")
	test.AssertEquals(t, ErrorType(99).String(), "ErrorType(99)")
}
