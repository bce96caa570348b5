package executor

import (
	"context"
	"fmt"

	"github.com/letsencrypt/batchdml/batch"
	"github.com/letsencrypt/batchdml/db"
	berrors "github.com/letsencrypt/batchdml/errors"
	"github.com/letsencrypt/batchdml/translator"
)

// State is the progress of a RowUnit through the two-phase LOB protocol.
type State int

const (
	// StatePrepare renders the row statement with empty LOB literals.
	StatePrepare State = iota
	// StateExecute runs the row statement.
	StateExecute
	// StateSelect re-selects the written LOB columns FOR UPDATE.
	StateSelect
	// StateStream writes each LOB value into its locator.
	StateStream
	// StateNotify reports the row count to the observer.
	StateNotify
	// StateDone means every step succeeded.
	StateDone
	// StateFailed means a step failed; the unit cannot be resumed.
	StateFailed
)

var stateNames = map[State]string{
	StatePrepare: "prepare",
	StateExecute: "execute",
	StateSelect:  "select",
	StateStream:  "stream",
	StateNotify:  "notify",
	StateDone:    "done",
	StateFailed:  "failed",
}

func (s State) String() string {
	name, ok := stateNames[s]
	if !ok {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return name
}

// RowUnit runs one row of a LOB batch: the row statement, the locking
// re-select and the stream writes. All three happen on the same connection,
// which must be an open transaction that is not committed until Run returns.
type RowUnit struct {
	t     *translator.LOBTranslator
	conn  db.Conn
	batch batch.Batch
	obs   Observer

	index int
	state State

	sql      string
	args     []any
	count    int64
	locators []any
	written  int64
}

// NewRowUnit returns a RowUnit for row index of b. The translator must have
// been built for b.
func NewRowUnit(t *translator.LOBTranslator, conn db.Conn, b batch.Batch, index int, obs Observer) *RowUnit {
	if obs == nil {
		obs = noopObserver{}
	}
	return &RowUnit{t: t, conn: conn, batch: b, obs: obs, index: index}
}

// reset points u at another row, keeping its buffers.
func (u *RowUnit) reset(index int) {
	u.index = index
	u.state = StatePrepare
	u.sql = ""
	u.count = 0
	u.written = 0
}

// State returns the step the unit will run next, StateDone or StateFailed.
func (u *RowUnit) State() State {
	return u.state
}

// Count returns the number of rows the row statement affected.
func (u *RowUnit) Count() int64 {
	return u.count
}

// BytesWritten returns the number of bytes streamed into locators.
func (u *RowUnit) BytesWritten() int64 {
	return u.written
}

// Run drives the row from StatePrepare to StateDone. On error the unit moves
// to StateFailed and the surrounding transaction must be rolled back by its
// owner; nothing is retried.
func (u *RowUnit) Run(ctx context.Context) error {
	if u.state != StatePrepare {
		return berrors.New(berrors.InternalServer, "row %d unit is in state %s, not %s", u.index, u.state, StatePrepare)
	}
	for u.state != StateDone {
		err := u.step(ctx)
		if err != nil {
			u.state = StateFailed
			return berrors.WithContext(err, u.sql, u.index)
		}
	}
	return nil
}

func (u *RowUnit) step(ctx context.Context) error {
	row := u.batch.Rows()[u.index]
	switch u.state {
	case StatePrepare:
		query, bindings, err := u.t.Translate(row)
		if err != nil {
			return err
		}
		u.sql = u.t.Adapter().Rebind(query)
		u.args, err = bindings.Args(u.args)
		if err != nil {
			return err
		}
		u.state = StateExecute

	case StateExecute:
		res, err := u.conn.ExecContext(ctx, u.sql, u.args...)
		if err != nil {
			return execError(err, u.sql, u.index)
		}
		u.count, err = res.RowsAffected()
		if err != nil {
			return berrors.Wrap(berrors.Backend, err, u.sql, u.index)
		}
		err = checkOptimisticLock(u.batch, u.count)
		if err != nil {
			return err
		}
		if len(u.t.LOBValues()) == 0 {
			u.state = StateNotify
		} else {
			u.state = StateSelect
		}

	case StateSelect:
		query, keys, err := u.t.SelectForUpdate(row)
		if err != nil {
			return err
		}
		u.sql = u.t.Adapter().Rebind(query)
		u.args, err = keys.Args(u.args)
		if err != nil {
			return err
		}
		err = u.selectLocators(ctx)
		if err != nil {
			return err
		}
		u.state = StateStream

	case StateStream:
		for i, v := range u.t.LOBValues() {
			n, err := v.Converter.WriteLOB(u.locators[i], v.Value)
			u.written += n
			if err != nil {
				return &berrors.BatchError{
					Type:   berrors.Backend,
					Detail: "streaming column " + v.Column.Name,
					Row:    berrors.NoRow,
					Err:    err,
				}
			}
		}
		u.state = StateNotify

	case StateNotify:
		u.obs.NextCount(u.batch, u.index, u.count)
		u.state = StateDone

	default:
		return berrors.New(berrors.InternalServer, "row unit cannot step from state %s", u.state)
	}
	return nil
}

// selectLocators runs the re-select and scans exactly one row of locators.
func (u *RowUnit) selectLocators(ctx context.Context) error {
	rows, err := u.conn.QueryContext(ctx, u.sql, u.args...)
	if err != nil {
		return berrors.Wrap(berrors.Backend, err, u.sql, u.index)
	}
	defer rows.Close()

	if !rows.Next() {
		err = rows.Err()
		if err != nil {
			return berrors.Wrap(berrors.Backend, err, u.sql, u.index)
		}
		return berrors.New(berrors.Cardinality, "re-select matched no rows")
	}

	n := len(u.t.LOBValues())
	u.locators = u.locators[:0]
	for i := 0; i < n; i++ {
		u.locators = append(u.locators, nil)
	}
	dest := make([]any, n)
	for i := range dest {
		dest[i] = &u.locators[i]
	}
	err = rows.Scan(dest...)
	if err != nil {
		return berrors.Wrap(berrors.Backend, err, u.sql, u.index)
	}

	if rows.Next() {
		return berrors.New(berrors.Cardinality, "re-select matched more than one row")
	}
	err = rows.Err()
	if err != nil {
		return berrors.Wrap(berrors.Backend, err, u.sql, u.index)
	}
	return nil
}

// checkOptimisticLock fails a row of an optimistically locked batch that did
// not affect exactly one row.
func checkOptimisticLock(b batch.Batch, count int64) error {
	q, ok := b.(batch.Qualified)
	if !ok || !q.UsingOptimisticLocking() || count == 1 {
		return nil
	}
	return berrors.New(berrors.OptimisticLock, "expected 1 affected row, got %d", count)
}
