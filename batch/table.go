// Package batch holds the values the engine translates: table and column
// descriptors, rows, and the insert, update and delete batches built from
// them.
package batch

import (
	"database/sql/driver"
	"reflect"

	"github.com/letsencrypt/batchdml/types"
)

// Column describes one column of a table. Descriptors are shared by every
// batch against the table and are never modified by the engine.
type Column struct {
	Name       string
	Type       types.TypeCode
	Nullable   bool
	PrimaryKey bool
	// Generated columns are filled in by the backend (auto increment,
	// sequences, defaults computed on insert).
	Generated bool
}

// IsLOB reports whether the column holds a large object.
func (c *Column) IsLOB() bool {
	return c.Type.IsLOB()
}

func (c *Column) String() string {
	return c.Name
}

// Table is a named table and its column descriptors, in declaration order.
type Table struct {
	Schema  string
	Name    string
	Columns []*Column
}

// Column returns the descriptor with the given name, or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// PrimaryKey returns the primary key columns in declaration order.
func (t *Table) PrimaryKey() []*Column {
	var pk []*Column
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pk = append(pk, c)
		}
	}
	return pk
}

// FullName is the unquoted schema-qualified name, used in logs and metrics.
func (t *Table) FullName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

func (t *Table) owns(c *Column) bool {
	for _, own := range t.Columns {
		if own == c {
			return true
		}
	}
	return false
}

// Row is one record's values, positionally aligned to a batch's Layout.
type Row []any

// ValueAt returns the value at column index i.
func (r Row) ValueAt(i int) any {
	return r[i]
}

// IsNull reports whether v represents SQL NULL: nil, a nil pointer, or a
// driver.Valuer (such as sql.NullString) whose value is nil.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Chan, reflect.Func:
		if rv.IsNil() {
			return true
		}
	case reflect.Slice:
		// A nil []byte binds NULL in database/sql, an empty one does not.
		if rv.IsNil() {
			return true
		}
	}
	if valuer, ok := v.(driver.Valuer); ok {
		out, err := valuer.Value()
		return err == nil && out == nil
	}
	return false
}
