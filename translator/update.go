package translator

import (
	"strings"

	"github.com/letsencrypt/batchdml/adapter"
	"github.com/letsencrypt/batchdml/batch"
	"github.com/letsencrypt/batchdml/types"
)

// UpdateTranslator renders UPDATE t SET a = ? WHERE k = ? AND n IS NULL.
// Updated columns take positions 1..U on every row; qualifier columns follow,
// skipping those rendered as IS NULL.
type UpdateTranslator struct {
	core
	batch    *batch.UpdateBatch
	adapter  adapter.Adapter
	registry *types.Registry
}

// NewUpdate returns an UpdateTranslator. Nothing is compiled until first use.
func NewUpdate(b *batch.UpdateBatch, a adapter.Adapter, r *types.Registry) *UpdateTranslator {
	t := &UpdateTranslator{batch: b, adapter: a, registry: r}
	t.core.compiler = t
	return t
}

func (t *UpdateTranslator) compile() (compiled, error) {
	updated := t.batch.UpdatedColumns()
	slots := make([]Binding, 0, len(t.batch.Layout()))
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(t.adapter.QuotedFullyQualifiedName(t.batch.Table()))
	sb.WriteString(" SET ")
	for i, c := range updated {
		conv, err := converterFor(t.registry, c)
		if err != nil {
			return compiled{}, err
		}
		slots = append(slots, Binding{Column: c, Converter: conv, Policy: AlwaysIncluded, source: i})
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(t.adapter.QuotedName(c))
		sb.WriteString(" = ?")
	}
	qualifiers, err := qualifierSlots(t.batch, t.registry)
	if err != nil {
		return compiled{}, err
	}
	slots = append(slots, qualifiers...)
	writeWhere(&sb, t.adapter, t.batch.QualifierColumns(), t.batch.IsNullQualifier)
	return compiled{sql: sb.String(), slots: slots, width: len(t.batch.Layout())}, nil
}
