// Package translator compiles batches into parameterized DML. Each translator
// builds its SQL text and binding slot array once per batch, then refreshes
// the same slot array in place for every row.
package translator

import (
	"strings"

	"github.com/letsencrypt/batchdml/adapter"
	"github.com/letsencrypt/batchdml/batch"
	berrors "github.com/letsencrypt/batchdml/errors"
	"github.com/letsencrypt/batchdml/types"
)

// New returns the translator for b's kind.
func New(b batch.Batch, a adapter.Adapter, r *types.Registry) (Translator, error) {
	switch b := b.(type) {
	case *batch.InsertBatch:
		return NewInsert(b, a, r), nil
	case *batch.UpdateBatch:
		return NewUpdate(b, a, r), nil
	case *batch.DeleteBatch:
		return NewDelete(b, a, r), nil
	}
	return nil, berrors.New(berrors.Unsupported, "no translator for %T", b)
}

func converterFor(r *types.Registry, c *batch.Column) (types.Converter, error) {
	conv, err := r.ConverterFor(c.Type)
	if err != nil {
		return nil, &berrors.BatchError{
			Type:   berrors.Mapping,
			Detail: "column " + c.Name,
			Row:    berrors.NoRow,
			Err:    err,
		}
	}
	return conv, nil
}

// qualifierSlots compiles one IncludedUnlessNull slot per qualifier column of
// q.
func qualifierSlots(q batch.Qualified, r *types.Registry) ([]Binding, error) {
	cols := q.QualifierColumns()
	slots := make([]Binding, 0, len(cols))
	for i, c := range cols {
		conv, err := converterFor(r, c)
		if err != nil {
			return nil, err
		}
		slots = append(slots, Binding{
			Column:    c,
			Converter: conv,
			Policy:    IncludedUnlessNull,
			source:    q.QualifierOffset() + i,
			nullInSQL: q.IsNullQualifier(i),
		})
	}
	return slots, nil
}

// writeWhere appends " WHERE a = ? AND b IS NULL" for the qualifier columns.
func writeWhere(sb *strings.Builder, a adapter.Adapter, cols []*batch.Column, isNull func(int) bool) {
	sb.WriteString(" WHERE ")
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString(a.QuotedName(c))
		if isNull(i) {
			sb.WriteString(" IS NULL")
		} else {
			sb.WriteString(" = ?")
		}
	}
}
