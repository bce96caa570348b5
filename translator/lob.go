package translator

import (
	"fmt"
	"strings"
	"sync"

	"github.com/letsencrypt/batchdml/adapter"
	"github.com/letsencrypt/batchdml/batch"
	berrors "github.com/letsencrypt/batchdml/errors"
	"github.com/letsencrypt/batchdml/types"
)

// LOBValue is a large object written by the current row. It is bound as an
// empty LOB literal in the row statement and streamed into the re-selected
// locator afterwards.
type LOBValue struct {
	Column    *batch.Column
	Value     any
	Converter types.LOBConverter
}

// LOBTranslator translates insert and update batches for backends that
// cannot bind large objects inline. Its statement text depends on which LOB
// values are non-NULL, so it is rendered per row; the binding slot arrays are
// still allocated once per batch.
type LOBTranslator struct {
	batch    batch.Batch
	adapter  adapter.Adapter
	registry *types.Registry

	once  sync.Once
	err   error
	width int

	bindings *Bindings
	// written is the number of leading slots that write a column; the rest
	// are qualifier slots.
	written int
	// lobConv is non-nil for written slots of LOB columns.
	lobConv []types.LOBConverter
	head    string
	tail    string

	keys       *Bindings
	keyColumns []*batch.Column
	keyIsNull  func(int) bool

	current []LOBValue
	sb      strings.Builder
}

// NewLOB returns a LOBTranslator. Nothing is compiled until first use.
func NewLOB(b batch.Batch, a adapter.Adapter, r *types.Registry) *LOBTranslator {
	return &LOBTranslator{batch: b, adapter: a, registry: r}
}

// Adapter returns the adapter statements are rendered for.
func (t *LOBTranslator) Adapter() adapter.Adapter {
	return t.adapter
}

func (t *LOBTranslator) ensureTranslated() error {
	t.once.Do(func() {
		t.err = t.compile()
	})
	return t.err
}

func (t *LOBTranslator) compile() error {
	table := t.batch.Table()
	switch b := t.batch.(type) {
	case *batch.InsertBatch:
		return t.compileInsert(b, table)
	case *batch.UpdateBatch:
		return t.compileUpdate(b, table)
	}
	return berrors.New(berrors.Unsupported, "%s batches do not write large objects", t.batch.Kind())
}

// writeSlot compiles the slot for a written column, recording LOB columns
// alongside it.
func (t *LOBTranslator) writeSlot(c *batch.Column, source int) (Binding, error) {
	conv, err := converterFor(t.registry, c)
	if err != nil {
		return Binding{}, err
	}
	var lobConv types.LOBConverter
	if c.IsLOB() {
		var ok bool
		lobConv, ok = conv.(types.LOBConverter)
		if !ok {
			return Binding{}, berrors.New(berrors.Mapping, "converter for LOB column %s cannot stream", c.Name)
		}
		k, _ := c.Type.Kind()
		if t.adapter.EmptyLOB(k) == "" {
			return Binding{}, berrors.New(berrors.Unsupported, "adapter %s has no empty %s constructor", t.adapter.Name(), k)
		}
	}
	t.lobConv = append(t.lobConv, lobConv)
	return Binding{Column: c, Converter: conv, Policy: AlwaysIncluded, source: source}, nil
}

func (t *LOBTranslator) compileInsert(b *batch.InsertBatch, table *batch.Table) error {
	pk := table.PrimaryKey()
	if len(pk) == 0 {
		return berrors.New(berrors.Unsupported, "%s has no primary key to re-select inserted LOBs by", table.FullName())
	}
	layout := b.Layout()
	var slots []Binding
	var cols []string
	for i, c := range layout {
		if !includeInInsert(c, t.adapter) {
			continue
		}
		slot, err := t.writeSlot(c, i)
		if err != nil {
			return err
		}
		slots = append(slots, slot)
		cols = append(cols, t.adapter.QuotedName(c))
	}
	keySlots := make([]Binding, 0, len(pk))
	for _, c := range pk {
		if c.Generated && t.adapter.SupportsGeneratedKeys() {
			return berrors.New(berrors.Unsupported, "primary key %s of %s is generated by the backend, inserted LOBs cannot be re-selected", c.Name, table.FullName())
		}
		source := -1
		for i, l := range layout {
			if l == c {
				source = i
			}
		}
		if source < 0 {
			return berrors.New(berrors.Unsupported, "primary key %s of %s is not inserted, inserted LOBs cannot be re-selected", c.Name, table.FullName())
		}
		conv, err := converterFor(t.registry, c)
		if err != nil {
			return err
		}
		keySlots = append(keySlots, Binding{Column: c, Converter: conv, Policy: AlwaysIncluded, source: source})
	}

	t.written = len(slots)
	t.bindings = newBindings(slots)
	t.head = "INSERT INTO " + t.adapter.QuotedFullyQualifiedName(table) + " (" + strings.Join(cols, ", ") + ") VALUES ("
	t.tail = ")"
	t.keys = newBindings(keySlots)
	t.keyColumns = pk
	t.keyIsNull = func(int) bool { return false }
	t.width = len(layout)
	return nil
}

func (t *LOBTranslator) compileUpdate(b *batch.UpdateBatch, table *batch.Table) error {
	var slots []Binding
	for i, c := range b.UpdatedColumns() {
		slot, err := t.writeSlot(c, i)
		if err != nil {
			return err
		}
		slots = append(slots, slot)
	}
	t.written = len(slots)
	qualifiers, err := qualifierSlots(b, t.registry)
	if err != nil {
		return err
	}
	slots = append(slots, qualifiers...)

	var where strings.Builder
	writeWhere(&where, t.adapter, b.QualifierColumns(), b.IsNullQualifier)
	t.bindings = newBindings(slots)
	t.head = "UPDATE " + t.adapter.QuotedFullyQualifiedName(table) + " SET "
	t.tail = where.String()

	keySlots, err := qualifierSlots(b, t.registry)
	if err != nil {
		return err
	}
	t.keys = newBindings(keySlots)
	t.keyColumns = b.QualifierColumns()
	t.keyIsNull = b.IsNullQualifier
	t.width = len(b.Layout())
	return nil
}

// Bindings returns the row statement's slot array. The same *Bindings is
// returned for the life of the translator.
func (t *LOBTranslator) Bindings() (*Bindings, error) {
	err := t.ensureTranslated()
	if err != nil {
		return nil, err
	}
	return t.bindings, nil
}

// Translate renders the row statement for row and refreshes its bindings.
// Non-NULL LOB values are written as the adapter's empty LOB literal and
// their slots excluded; NULL LOB values bind as NULL.
func (t *LOBTranslator) Translate(row batch.Row) (string, *Bindings, error) {
	err := t.ensureTranslated()
	if err != nil {
		return "", nil, err
	}
	if len(row) != t.width {
		return "", nil, &berrors.BatchError{
			Type:   berrors.InvalidBatch,
			Detail: fmt.Sprintf("row has %d values, statement expects %d", len(row), t.width),
			Row:    berrors.NoRow,
		}
	}
	err = t.bindings.refresh(row)
	if err != nil {
		return "", nil, err
	}

	t.current = t.current[:0]
	t.sb.Reset()
	t.sb.WriteString(t.head)
	_, isUpdate := t.batch.(*batch.UpdateBatch)
	for i := 0; i < t.written; i++ {
		s := t.bindings.At(i)
		if i > 0 {
			t.sb.WriteString(", ")
		}
		if isUpdate {
			t.sb.WriteString(t.adapter.QuotedName(s.Column))
			t.sb.WriteString(" = ")
		}
		if t.lobConv[i] != nil && !batch.IsNull(s.Value) {
			t.current = append(t.current, LOBValue{Column: s.Column, Value: s.Value, Converter: t.lobConv[i]})
			k, _ := s.Column.Type.Kind()
			t.sb.WriteString(t.adapter.EmptyLOB(k))
			s.Exclude()
			continue
		}
		t.sb.WriteString("?")
	}
	t.sb.WriteString(t.tail)
	t.bindings.renumber()
	return t.sb.String(), t.bindings, nil
}

// LOBValues returns the LOB values the last translated row wrote, in column
// order. The slice is reused by the next call to Translate.
func (t *LOBTranslator) LOBValues() []LOBValue {
	return t.current
}

// SelectForUpdate renders the locking re-select of the LOB columns written by
// the last translated row, identified by the primary key for inserts and the
// qualifier for updates. It returns "" when the row wrote no LOB values.
func (t *LOBTranslator) SelectForUpdate(row batch.Row) (string, *Bindings, error) {
	err := t.ensureTranslated()
	if err != nil {
		return "", nil, err
	}
	if len(t.current) == 0 {
		return "", nil, nil
	}
	err = t.keys.refresh(row)
	if err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, v := range t.current {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(t.adapter.QuotedName(v.Column))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(t.adapter.QuotedFullyQualifiedName(t.batch.Table()))
	writeWhere(&sb, t.adapter, t.keyColumns, t.keyIsNull)
	sb.WriteString(" FOR UPDATE")
	return sb.String(), t.keys, nil
}
