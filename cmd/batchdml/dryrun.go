package main

import (
	"fmt"
	"io"

	"github.com/letsencrypt/batchdml/adapter"
	"github.com/letsencrypt/batchdml/batch"
	berrors "github.com/letsencrypt/batchdml/errors"
	"github.com/letsencrypt/batchdml/translator"
	"github.com/letsencrypt/batchdml/types"
)

// dryRun prints what running files would send to the database: each batch's
// statement and the arguments bound for every row. Nothing is executed.
func dryRun(w io.Writer, a adapter.Adapter, r *types.Registry, files []batchSet) error {
	for _, f := range files {
		for _, b := range f.batches {
			fmt.Fprintf(w, "-- %s: %s %s, %d rows\n", f.name, b.Kind(), b.Table().FullName(), len(b.Rows()))
			var err error
			if batch.UpdatesLOBColumns(b) && !a.BindsLOBsInline() {
				err = dryRunLOB(w, a, r, b)
			} else {
				err = dryRunStatement(w, a, r, b)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", f.name, err)
			}
		}
	}
	return nil
}

func dryRunStatement(w io.Writer, a adapter.Adapter, r *types.Registry, b batch.Batch) error {
	t, err := translator.New(b, a, r)
	if err != nil {
		return err
	}
	query, err := t.SQL()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, a.Rebind(query))

	var args []any
	for i, row := range b.Rows() {
		bindings, err := t.UpdateBindings(row)
		if err != nil {
			return berrors.WithContext(err, query, i)
		}
		args, err = bindings.Args(args)
		if err != nil {
			return berrors.WithContext(err, query, i)
		}
		fmt.Fprintf(w, "  row %d: %v\n", i, args)
	}
	return nil
}

// dryRunLOB prints the per-row statement, the locking re-select and the
// columns that would be streamed.
func dryRunLOB(w io.Writer, a adapter.Adapter, r *types.Registry, b batch.Batch) error {
	t := translator.NewLOB(b, a, r)
	var args []any
	for i, row := range b.Rows() {
		query, bindings, err := t.Translate(row)
		if err != nil {
			return berrors.WithContext(err, query, i)
		}
		args, err = bindings.Args(args)
		if err != nil {
			return berrors.WithContext(err, query, i)
		}
		fmt.Fprintf(w, "  row %d: %s %v\n", i, a.Rebind(query), args)

		sel, keys, err := t.SelectForUpdate(row)
		if err != nil {
			return err
		}
		if sel == "" {
			continue
		}
		args, err = keys.Args(args)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "    then: %s %v\n", a.Rebind(sel), args)
		for _, v := range t.LOBValues() {
			fmt.Fprintf(w, "    stream: %s\n", v.Column.Name)
		}
	}
	return nil
}
