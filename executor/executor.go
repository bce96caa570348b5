// Package executor runs translated batches against a caller-owned
// transaction. It never begins, commits or rolls back; a failed batch leaves
// the transaction for its owner to roll back.
package executor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/letsencrypt/batchdml/adapter"
	"github.com/letsencrypt/batchdml/batch"
	"github.com/letsencrypt/batchdml/blog"
	"github.com/letsencrypt/batchdml/db"
	berrors "github.com/letsencrypt/batchdml/errors"
	"github.com/letsencrypt/batchdml/translator"
	"github.com/letsencrypt/batchdml/types"
)

// Action executes batches for one backend. It keeps no per-batch state, so a
// single Action may run batches on several connections concurrently.
type Action struct {
	adapter  adapter.Adapter
	registry *types.Registry
	metrics  *metrics
	tracer   trace.Tracer
	clk      clock.Clock
}

// New returns an Action. Its metrics are registered on stats, so only one
// Action may be created per registerer.
func New(a adapter.Adapter, r *types.Registry, stats prometheus.Registerer, clk clock.Clock) *Action {
	return &Action{
		adapter:  a,
		registry: r,
		metrics:  newMetrics(stats),
		tracer:   otel.GetTracerProvider().Tracer("github.com/letsencrypt/batchdml/executor"),
		clk:      clk,
	}
}

// execFunc executes the batch's statement with one row's arguments.
type execFunc func(ctx context.Context, args ...any) (sql.Result, error)

// Run executes every row of b, in order, on conn. Rows stop at the first
// failure; the returned error is a *berrors.BatchError naming the statement
// and row. obs may be nil.
func (a *Action) Run(ctx context.Context, conn db.Conn, b batch.Batch, obs Observer) (err error) {
	if obs == nil {
		obs = noopObserver{}
	}
	kind := b.Kind().String()
	id := uuid.NewString()

	ctx, span := a.tracer.Start(ctx, "batchdml."+kind, trace.WithAttributes(
		attribute.String("batchdml.table", b.Table().FullName()),
		attribute.Int("batchdml.rows", len(b.Rows())),
		attribute.String("batchdml.batch_id", id),
	))
	ctx = blog.ContextWith(ctx, blog.Table(b.Table().FullName()), blog.BatchID(id), blog.Operation(kind))

	start := a.clk.Now()
	var total int64
	defer func() {
		a.metrics.latency.WithLabelValues(kind).Observe(a.clk.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			blog.AuditError(ctx, "batch failed", err, blog.Rows(total))
		} else {
			span.SetAttributes(attribute.Int64("batchdml.affected", total))
			blog.AuditInfo(ctx, "batch executed", blog.Rows(total))
		}
		span.End()
	}()

	if batch.UpdatesLOBColumns(b) && !a.adapter.BindsLOBsInline() {
		total, err = a.runLOB(ctx, conn, b, obs)
	} else {
		total, err = a.runStatement(ctx, conn, b, obs)
	}
	return err
}

// runStatement executes one compiled statement per row, prepared once when
// the backend and connection allow it.
func (a *Action) runStatement(ctx context.Context, conn db.Conn, b batch.Batch, obs Observer) (int64, error) {
	kind := b.Kind().String()
	t, err := translator.New(b, a.adapter, a.registry)
	if err != nil {
		return 0, err
	}
	query, err := t.SQL()
	if err != nil {
		return 0, err
	}
	query = a.adapter.Rebind(query)
	blog.Debug(ctx, "compiled statement", blog.SQL(query))

	exec, closeStmt, err := a.executor(ctx, conn, query)
	if err != nil {
		return 0, err
	}
	defer closeStmt()

	var keyColumn *batch.Column
	if it, ok := t.(*translator.InsertTranslator); ok {
		keyColumn = it.GeneratedKeyColumn()
	}

	var args []any
	var total int64
	for i, row := range b.Rows() {
		n, err := func() (int64, error) {
			bindings, err := t.UpdateBindings(row)
			if err != nil {
				return 0, err
			}
			args, err = bindings.Args(args)
			if err != nil {
				return 0, err
			}
			res, err := exec(ctx, args...)
			if err != nil {
				return 0, execError(err, query, i)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return 0, berrors.Wrap(berrors.Backend, err, query, i)
			}
			err = checkOptimisticLock(b, n)
			if err != nil {
				return n, err
			}
			obs.NextCount(b, i, n)
			if keyColumn != nil {
				key, err := res.LastInsertId()
				if err != nil {
					return n, &berrors.BatchError{
						Type:   berrors.Backend,
						Detail: fmt.Sprintf("reading generated key %s", keyColumn.Name),
						Row:    i,
						Err:    err,
					}
				}
				obs.NextGeneratedKey(b, i, key)
			}
			return n, nil
		}()
		if err != nil {
			a.metrics.rows.WithLabelValues(kind, "failed").Inc()
			return total, berrors.WithContext(err, query, i)
		}
		a.metrics.rows.WithLabelValues(kind, "ok").Inc()
		total += n
	}
	return total, nil
}

// execError wraps a failed row execution as a Backend error, calling out
// unique key violations.
func execError(err error, query string, row int) error {
	be := &berrors.BatchError{Type: berrors.Backend, SQL: query, Row: row, Err: err}
	if db.IsDuplicate(err) {
		be.Detail = "duplicate key"
	}
	return be
}

// executor returns the function that runs query for one row, and a func
// releasing anything it holds.
func (a *Action) executor(ctx context.Context, conn db.Conn, query string) (execFunc, func(), error) {
	p, ok := conn.(db.Preparer)
	if !a.adapter.SupportsBatchUpdates() || !ok {
		return func(ctx context.Context, args ...any) (sql.Result, error) {
			return conn.ExecContext(ctx, query, args...)
		}, func() {}, nil
	}
	stmt, err := p.PrepareContext(ctx, query)
	if err != nil {
		return nil, nil, berrors.Wrap(berrors.Backend, err, query, berrors.NoRow)
	}
	return stmt.ExecContext, func() { _ = stmt.Close() }, nil
}

// runLOB executes each row as a RowUnit. The translator is compiled before
// the first row so that unsupported batches fail without touching conn.
func (a *Action) runLOB(ctx context.Context, conn db.Conn, b batch.Batch, obs Observer) (int64, error) {
	kind := b.Kind().String()
	t := translator.NewLOB(b, a.adapter, a.registry)
	_, err := t.Bindings()
	if err != nil {
		return 0, err
	}

	var total int64
	unit := NewRowUnit(t, conn, b, 0, obs)
	for i := range b.Rows() {
		unit.reset(i)
		err := unit.Run(ctx)
		a.metrics.lobBytes.Add(float64(unit.BytesWritten()))
		if err != nil {
			a.metrics.rows.WithLabelValues(kind, "failed").Inc()
			return total, err
		}
		a.metrics.rows.WithLabelValues(kind, "ok").Inc()
		total += unit.Count()
	}
	return total, nil
}
