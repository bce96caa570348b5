package translator

import (
	"strings"

	"github.com/letsencrypt/batchdml/adapter"
	"github.com/letsencrypt/batchdml/batch"
	"github.com/letsencrypt/batchdml/db"
	"github.com/letsencrypt/batchdml/types"
)

// InsertTranslator renders INSERT INTO t (a, b) VALUES (?, ?).
type InsertTranslator struct {
	core
	batch    *batch.InsertBatch
	adapter  adapter.Adapter
	registry *types.Registry
}

// NewInsert returns an InsertTranslator. Nothing is compiled until first use.
func NewInsert(b *batch.InsertBatch, a adapter.Adapter, r *types.Registry) *InsertTranslator {
	t := &InsertTranslator{batch: b, adapter: a, registry: r}
	t.core.compiler = t
	return t
}

// includeInInsert reports whether c appears in the statement. Generated
// columns are left to the backend, except a generated primary key on a
// backend that cannot return generated keys, which the caller must supply.
func includeInInsert(c *batch.Column, a adapter.Adapter) bool {
	if !c.Generated {
		return true
	}
	return c.PrimaryKey && !a.SupportsGeneratedKeys()
}

func (t *InsertTranslator) compile() (compiled, error) {
	layout := t.batch.Layout()
	slots := make([]Binding, len(layout))
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(t.adapter.QuotedFullyQualifiedName(t.batch.Table()))
	sb.WriteString(" (")
	included := 0
	for i, c := range layout {
		slots[i] = Binding{Column: c, Policy: AlwaysExcluded, source: i}
		if !includeInInsert(c, t.adapter) {
			continue
		}
		conv, err := converterFor(t.registry, c)
		if err != nil {
			return compiled{}, err
		}
		slots[i].Converter = conv
		slots[i].Policy = AlwaysIncluded
		if included > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(t.adapter.QuotedName(c))
		included++
	}
	sb.WriteString(") VALUES (")
	sb.WriteString(db.QuestionMarks(included))
	sb.WriteString(")")
	return compiled{sql: sb.String(), slots: slots, width: len(layout)}, nil
}

// GeneratedKeyColumn returns the primary key column whose value the backend
// generates and reports back after each row, or nil. Only single-column
// generated keys are read back.
func (t *InsertTranslator) GeneratedKeyColumn() *batch.Column {
	if !t.adapter.SupportsGeneratedKeys() {
		return nil
	}
	pk := t.batch.Table().PrimaryKey()
	if len(pk) != 1 || !pk[0].Generated {
		return nil
	}
	return pk[0]
}
