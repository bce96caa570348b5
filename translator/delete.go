package translator

import (
	"strings"

	"github.com/letsencrypt/batchdml/adapter"
	"github.com/letsencrypt/batchdml/batch"
	"github.com/letsencrypt/batchdml/types"
)

// DeleteTranslator renders DELETE FROM t WHERE ..., or for a soft delete
// batch UPDATE t SET deleted = ? WHERE ... with the deleted flag bound first.
type DeleteTranslator struct {
	core
	batch    *batch.DeleteBatch
	adapter  adapter.Adapter
	registry *types.Registry
}

// NewDelete returns a DeleteTranslator. Nothing is compiled until first use.
func NewDelete(b *batch.DeleteBatch, a adapter.Adapter, r *types.Registry) *DeleteTranslator {
	t := &DeleteTranslator{batch: b, adapter: a, registry: r}
	t.core.compiler = t
	return t
}

func (t *DeleteTranslator) compile() (compiled, error) {
	table := t.adapter.QuotedFullyQualifiedName(t.batch.Table())
	var sb strings.Builder
	var slots []Binding
	if sd := t.batch.SoftDelete(); sd != nil {
		conv, err := converterFor(t.registry, sd.Column)
		if err != nil {
			return compiled{}, err
		}
		slots = append(slots, Binding{
			Column:    sd.Column,
			Converter: conv,
			Policy:    AlwaysIncluded,
			source:    constantSource,
			constant:  sd.Value,
		})
		sb.WriteString("UPDATE ")
		sb.WriteString(table)
		sb.WriteString(" SET ")
		sb.WriteString(t.adapter.QuotedName(sd.Column))
		sb.WriteString(" = ?")
	} else {
		sb.WriteString("DELETE FROM ")
		sb.WriteString(table)
	}
	qualifiers, err := qualifierSlots(t.batch, t.registry)
	if err != nil {
		return compiled{}, err
	}
	slots = append(slots, qualifiers...)
	writeWhere(&sb, t.adapter, t.batch.QualifierColumns(), t.batch.IsNullQualifier)
	return compiled{sql: sb.String(), slots: slots, width: len(t.batch.Layout())}, nil
}
