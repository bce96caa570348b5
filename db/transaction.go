package db

import (
	"context"
	"fmt"
)

// RollbackError is a combination of a database error and the error, if any,
// encountered while trying to rollback the transaction.
type RollbackError struct {
	Err         error
	RollbackErr error
}

// Error implements the error interface
func (re *RollbackError) Error() string {
	if re.RollbackErr == nil {
		return re.Err.Error()
	}
	return fmt.Sprintf("%s (also, while rolling back: %s)", re.Err, re.RollbackErr)
}

// Unwrap returns the error that caused the rollback.
func (re *RollbackError) Unwrap() error {
	return re.Err
}

// Rollback rolls back the provided transaction and returns err. If the
// rollback itself fails, both errors are returned in a RollbackError.
//
// The err parameter must be non-nil.
//
//	err = db.Rollback(tx, err)
func Rollback(tx Transaction, err error) error {
	rbErr := tx.Rollback()
	if rbErr != nil {
		return &RollbackError{Err: err, RollbackErr: rbErr}
	}
	return err
}

// WithTransaction runs the given function in a transaction, rolling back if it
// returns an error and committing if not. The provided context is also attached
// to the transaction. WithTransaction also passes through a value returned by
// `f`, if there is no error.
func WithTransaction[T any](ctx context.Context, b Beginner, f func(tx Transaction) (T, error)) (T, error) {
	var zero T
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tx, err := b.BeginTx(ctx)
	if err != nil {
		return zero, err
	}
	result, err := f(tx)
	if err != nil {
		return zero, Rollback(tx, err)
	}
	err = tx.Commit()
	if err != nil {
		return zero, ErrDatabaseOp{Op: "commit transaction", Err: err}
	}
	return result, nil
}
