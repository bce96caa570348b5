package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/letsencrypt/batchdml/batch"
	"github.com/letsencrypt/batchdml/cmd"
	"github.com/letsencrypt/batchdml/types"
)

type columnConfig struct {
	Name       string         `yaml:"name" validate:"required"`
	Type       types.TypeCode `yaml:"type" validate:"required"`
	Nullable   bool           `yaml:"nullable"`
	PrimaryKey bool           `yaml:"primaryKey"`
	Generated  bool           `yaml:"generated"`
}

type tableConfig struct {
	Schema  string         `yaml:"schema"`
	Name    string         `yaml:"name" validate:"required"`
	Columns []columnConfig `yaml:"columns" validate:"min=1,dive"`
}

type softDeleteConfig struct {
	Column string `yaml:"column" validate:"required"`
	// Value is written to Column. Empty means true, or 1 for numeric columns.
	Value any `yaml:"value"`
}

// batchFile is one batch definition. Columns lists the inserted or updated
// columns and Qualifier the WHERE columns. Each row holds the Columns values
// followed by the Qualifier values.
type batchFile struct {
	Table             tableConfig       `yaml:"table"`
	Kind              string            `yaml:"kind" validate:"required,oneof=insert update delete"`
	Columns           []string          `yaml:"columns" validate:"omitempty,dive,required"`
	Qualifier         []string          `yaml:"qualifier" validate:"omitempty,dive,required"`
	OptimisticLocking bool              `yaml:"optimisticLocking"`
	SoftDelete        *softDeleteConfig `yaml:"softDelete"`
	Rows              [][]any           `yaml:"rows"`
}

// loadBatchFile reads and validates the YAML batch definition in filename.
func loadBatchFile(filename string) (*batchFile, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var bf batchFile
	err = cmd.ValidateYAMLConfig(&cmd.ConfigValidator{Config: &bf}, f)
	if err != nil {
		return nil, fmt.Errorf("loading batch file %q: %w", filename, err)
	}
	err = bf.validate()
	if err != nil {
		return nil, fmt.Errorf("batch file %q: %w", filename, err)
	}
	return &bf, nil
}

func (bf *batchFile) validate() error {
	switch bf.Kind {
	case "insert":
		if len(bf.Columns) == 0 {
			return errors.New("insert batches need at least one column")
		}
		if len(bf.Qualifier) != 0 {
			return errors.New("insert batches take no qualifier")
		}
	case "update":
		if len(bf.Columns) == 0 || len(bf.Qualifier) == 0 {
			return errors.New("update batches need columns and a qualifier")
		}
	case "delete":
		if len(bf.Qualifier) == 0 {
			return errors.New("delete batches need a qualifier")
		}
		if len(bf.Columns) != 0 {
			return errors.New("delete batches take no columns, only a qualifier")
		}
	}
	if bf.Kind != "delete" && bf.SoftDelete != nil {
		return errors.New("softDelete only applies to delete batches")
	}
	if bf.Kind == "insert" && bf.OptimisticLocking {
		return errors.New("optimisticLocking only applies to update and delete batches")
	}
	return nil
}

func (bf *batchFile) table() *batch.Table {
	t := &batch.Table{Schema: bf.Table.Schema, Name: bf.Table.Name}
	for _, c := range bf.Table.Columns {
		t.Columns = append(t.Columns, &batch.Column{
			Name:       c.Name,
			Type:       c.Type,
			Nullable:   c.Nullable,
			PrimaryKey: c.PrimaryKey,
			Generated:  c.Generated,
		})
	}
	return t
}

func lookupColumns(t *batch.Table, names []string) ([]*batch.Column, error) {
	cols := make([]*batch.Column, 0, len(names))
	for _, name := range names {
		c := t.Column(name)
		if c == nil {
			return nil, fmt.Errorf("table %s has no column %q", t.FullName(), name)
		}
		cols = append(cols, c)
	}
	return cols, nil
}

// build turns the definition into batches. Update and delete rows are grouped
// by the NULL pattern of their qualifier values, giving one batch per pattern.
func (bf *batchFile) build() ([]batch.Batch, error) {
	t := bf.table()
	cols, err := lookupColumns(t, bf.Columns)
	if err != nil {
		return nil, err
	}
	qualifier, err := lookupColumns(t, bf.Qualifier)
	if err != nil {
		return nil, err
	}
	layout := append(append([]*batch.Column{}, cols...), qualifier...)

	rows := make([]batch.Row, 0, len(bf.Rows))
	for i, values := range bf.Rows {
		if len(values) != len(layout) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(values), len(layout))
		}
		row := make(batch.Row, len(values))
		for j, v := range values {
			row[j], err = decodeValue(layout[j], v)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
		}
		rows = append(rows, row)
	}

	var opts []batch.Option
	if bf.OptimisticLocking {
		opts = append(opts, batch.WithOptimisticLocking())
	}
	if bf.SoftDelete != nil {
		sd, err := bf.softDelete(t)
		if err != nil {
			return nil, err
		}
		opts = append(opts, batch.WithSoftDelete(sd))
	}

	if bf.Kind == "insert" {
		b, err := batch.NewInsertBatch(t, cols, rows)
		if err != nil {
			return nil, err
		}
		return []batch.Batch{b}, nil
	}

	groups, err := batch.SplitByNullQualifiers(rows, len(cols), len(qualifier))
	if err != nil {
		return nil, err
	}
	var batches []batch.Batch
	for _, group := range groups {
		var b batch.Batch
		if bf.Kind == "update" {
			b, err = batch.NewUpdateBatch(t, cols, qualifier, group, opts...)
		} else {
			b, err = batch.NewDeleteBatch(t, qualifier, group, opts...)
		}
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func (bf *batchFile) softDelete(t *batch.Table) (batch.SoftDelete, error) {
	c := t.Column(bf.SoftDelete.Column)
	if c == nil {
		return batch.SoftDelete{}, fmt.Errorf("table %s has no soft delete column %q", t.FullName(), bf.SoftDelete.Column)
	}
	v, err := decodeValue(c, bf.SoftDelete.Value)
	if err != nil {
		return batch.SoftDelete{}, err
	}
	return batch.SoftDelete{Column: c, Value: v}, nil
}

// temporalLayouts are tried in order for string values of temporal columns.
var temporalLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	time.DateOnly,
	time.TimeOnly,
}

// decodeValue adapts a YAML scalar to what the column's converter accepts.
// YAML leaves timestamps undecoded when the target is untyped, so strings
// bound for temporal columns are parsed here.
func decodeValue(c *batch.Column, v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	k, _ := c.Type.Kind()
	if k != types.KindTemporal {
		return v, nil
	}
	for _, layout := range temporalLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("column %s: cannot parse %q as a date or time", c.Name, s)
}
