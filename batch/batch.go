package batch

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	berrors "github.com/letsencrypt/batchdml/errors"
	"github.com/letsencrypt/batchdml/types"
)

// Kind is the DML operation a batch performs.
type Kind int

const (
	Insert Kind = iota
	Update
	Delete
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Batch is an ordered set of rows sharing one table, one operation and one
// column layout. Implementations are immutable once constructed.
type Batch interface {
	Table() *Table
	Kind() Kind
	// Layout is the column list that defines the order of values in each
	// row.
	Layout() []*Column
	Rows() []Row
}

// Qualified is implemented by batches with a WHERE clause.
type Qualified interface {
	Batch
	QualifierColumns() []*Column
	// QualifierOffset is the index in each row of the first qualifier value.
	QualifierOffset() int
	// IsNullQualifier reports whether qualifier column i is NULL in every row
	// of the batch.
	IsNullQualifier(i int) bool
	UsingOptimisticLocking() bool
}

// Option configures optional batch behaviour.
type Option func(*options)

type options struct {
	optimisticLocking bool
	softDelete        *SoftDelete
}

// WithOptimisticLocking makes the executor fail the batch when an update or
// delete does not affect exactly one row.
func WithOptimisticLocking() Option {
	return func(o *options) {
		o.optimisticLocking = true
	}
}

// SoftDelete turns a delete batch into an update that sets Column to Value.
// A nil Value is replaced with the column's notion of "set": true for
// boolean columns, 1 for integer and decimal columns, "1" for text columns.
type SoftDelete struct {
	Column *Column
	Value  any
}

// WithSoftDelete makes a delete batch flag rows instead of removing them.
func WithSoftDelete(sd SoftDelete) Option {
	return func(o *options) {
		o.softDelete = &sd
	}
}

// deletedFlag returns the default soft delete value for c.
func deletedFlag(c *Column) any {
	k, _ := c.Type.Kind()
	switch k {
	case types.KindInteger:
		return int64(1)
	case types.KindDecimal:
		return decimal.NewFromInt(1)
	case types.KindText:
		return "1"
	}
	return true
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// InsertBatch inserts one row per Row. The layout is the inserted columns.
type InsertBatch struct {
	table   *Table
	columns []*Column
	rows    []Row
}

// NewInsertBatch validates and returns an insert batch.
func NewInsertBatch(table *Table, columns []*Column, rows []Row) (*InsertBatch, error) {
	err := validate(table, rows, len(columns), columns)
	if err != nil {
		return nil, err
	}
	return &InsertBatch{table: table, columns: columns, rows: rows}, nil
}

func (b *InsertBatch) Table() *Table     { return b.table }
func (b *InsertBatch) Kind() Kind        { return Insert }
func (b *InsertBatch) Layout() []*Column { return b.columns }
func (b *InsertBatch) Rows() []Row       { return b.rows }

// qualifiers is the WHERE clause state shared by update and delete batches.
type qualifiers struct {
	columns           []*Column
	offset            int
	nulls             []bool
	optimisticLocking bool
}

func (q *qualifiers) QualifierColumns() []*Column  { return q.columns }
func (q *qualifiers) QualifierOffset() int         { return q.offset }
func (q *qualifiers) UsingOptimisticLocking() bool { return q.optimisticLocking }

func (q *qualifiers) IsNullQualifier(i int) bool {
	return q.nulls[i]
}

// nullPattern computes the NULL pattern over qualifier columns and rejects
// batches whose rows disagree. The statement text is compiled once per batch,
// so IS NULL vs = ? cannot change from row to row.
func nullPattern(rows []Row, offset, n int) ([]bool, error) {
	nulls := make([]bool, n)
	if len(rows) == 0 {
		return nulls, nil
	}
	for i := range nulls {
		nulls[i] = IsNull(rows[0][offset+i])
	}
	for r, row := range rows[1:] {
		for i := range nulls {
			if IsNull(row[offset+i]) != nulls[i] {
				return nil, &berrors.BatchError{
					Type:   berrors.InvalidBatch,
					Detail: fmt.Sprintf("qualifier NULLs differ from the first row at column %d", i),
					Row:    r + 1,
				}
			}
		}
	}
	return nulls, nil
}

// UpdateBatch updates rows matched by a qualifier. Each row holds the updated
// values followed by the qualifier values; a column may appear in both lists.
type UpdateBatch struct {
	qualifiers
	table   *Table
	updated []*Column
	layout  []*Column
	rows    []Row
}

// NewUpdateBatch validates and returns an update batch.
func NewUpdateBatch(table *Table, updated, qualifier []*Column, rows []Row, opts ...Option) (*UpdateBatch, error) {
	if len(updated) == 0 {
		return nil, berrors.New(berrors.InvalidBatch, "update batch has no updated columns")
	}
	if len(qualifier) == 0 {
		return nil, berrors.New(berrors.InvalidBatch, "update batch has no qualifier columns")
	}
	o := buildOptions(opts)
	if o.softDelete != nil {
		return nil, berrors.New(berrors.InvalidBatch, "soft delete only applies to delete batches")
	}
	layout := make([]*Column, 0, len(updated)+len(qualifier))
	layout = append(layout, updated...)
	layout = append(layout, qualifier...)
	err := validate(table, rows, len(layout), layout)
	if err != nil {
		return nil, err
	}
	nulls, err := nullPattern(rows, len(updated), len(qualifier))
	if err != nil {
		return nil, err
	}
	return &UpdateBatch{
		qualifiers: qualifiers{
			columns:           qualifier,
			offset:            len(updated),
			nulls:             nulls,
			optimisticLocking: o.optimisticLocking,
		},
		table:   table,
		updated: updated,
		layout:  layout,
		rows:    rows,
	}, nil
}

func (b *UpdateBatch) Table() *Table     { return b.table }
func (b *UpdateBatch) Kind() Kind        { return Update }
func (b *UpdateBatch) Layout() []*Column { return b.layout }
func (b *UpdateBatch) Rows() []Row       { return b.rows }

// UpdatedColumns returns the SET list.
func (b *UpdateBatch) UpdatedColumns() []*Column { return b.updated }

// DeleteBatch deletes, or soft deletes, rows matched by a qualifier. The
// layout is the qualifier columns.
type DeleteBatch struct {
	qualifiers
	table      *Table
	rows       []Row
	softDelete *SoftDelete
}

// NewDeleteBatch validates and returns a delete batch.
func NewDeleteBatch(table *Table, qualifier []*Column, rows []Row, opts ...Option) (*DeleteBatch, error) {
	if len(qualifier) == 0 {
		return nil, berrors.New(berrors.InvalidBatch, "delete batch has no qualifier columns")
	}
	o := buildOptions(opts)
	err := validate(table, rows, len(qualifier), qualifier)
	if err != nil {
		return nil, err
	}
	if o.softDelete != nil {
		if o.softDelete.Column == nil || !table.owns(o.softDelete.Column) {
			return nil, berrors.New(berrors.InvalidBatch, "soft delete column does not belong to %s", table.FullName())
		}
		if o.softDelete.Value == nil {
			o.softDelete.Value = deletedFlag(o.softDelete.Column)
		}
	}
	nulls, err := nullPattern(rows, 0, len(qualifier))
	if err != nil {
		return nil, err
	}
	return &DeleteBatch{
		qualifiers: qualifiers{
			columns:           qualifier,
			nulls:             nulls,
			optimisticLocking: o.optimisticLocking,
		},
		table:      table,
		rows:       rows,
		softDelete: o.softDelete,
	}, nil
}

func (b *DeleteBatch) Table() *Table     { return b.table }
func (b *DeleteBatch) Kind() Kind        { return Delete }
func (b *DeleteBatch) Layout() []*Column { return b.columns }
func (b *DeleteBatch) Rows() []Row       { return b.rows }

// SoftDelete returns the soft delete settings, or nil for a hard delete.
func (b *DeleteBatch) SoftDelete() *SoftDelete { return b.softDelete }

func validate(table *Table, rows []Row, width int, columns []*Column) error {
	if table == nil {
		return berrors.New(berrors.InvalidBatch, "batch has no table")
	}
	if table.Name == "" {
		return berrors.New(berrors.InvalidBatch, "table has no name")
	}
	var foreign []string
	for _, c := range columns {
		if c == nil {
			return berrors.New(berrors.InvalidBatch, "nil column in %s batch", table.FullName())
		}
		if !table.owns(c) {
			foreign = append(foreign, c.Name)
		}
	}
	if len(foreign) > 0 {
		return berrors.New(berrors.InvalidBatch, "columns %s do not belong to %s", strings.Join(foreign, ", "), table.FullName())
	}
	for i, row := range rows {
		if len(row) != width {
			return &berrors.BatchError{
				Type:   berrors.InvalidBatch,
				Detail: fmt.Sprintf("row has %d values, layout has %d columns", len(row), width),
				Row:    i,
			}
		}
	}
	return nil
}

// UpdatesLOBColumns reports whether b writes any large-object column: an
// inserted column or an updated (SET) column of LOB type.
func UpdatesLOBColumns(b Batch) bool {
	var written []*Column
	switch b := b.(type) {
	case *InsertBatch:
		written = b.columns
	case *UpdateBatch:
		written = b.updated
	default:
		return false
	}
	for _, c := range written {
		if c.IsLOB() {
			return true
		}
	}
	return false
}

// SplitByNullQualifiers groups rows by their NULL pattern over the n
// qualifier values starting at offset, so that each group can become one
// batch. Groups are returned in order of first appearance and keep the
// relative order of their rows. Rows shorter than offset+n are an error.
func SplitByNullQualifiers(rows []Row, offset, n int) ([][]Row, error) {
	var groups [][]Row
	index := make(map[string]int)
	key := make([]byte, n)
	for i, row := range rows {
		if len(row) < offset+n {
			return nil, &berrors.BatchError{
				Type:   berrors.InvalidBatch,
				Detail: fmt.Sprintf("row has %d values, need at least %d", len(row), offset+n),
				Row:    i,
			}
		}
		for q := 0; q < n; q++ {
			key[q] = '0'
			if IsNull(row[offset+q]) {
				key[q] = '1'
			}
		}
		g, ok := index[string(key)]
		if !ok {
			g = len(groups)
			index[string(key)] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], row)
	}
	return groups, nil
}
