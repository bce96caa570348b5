package translator

import (
	"fmt"

	"github.com/letsencrypt/batchdml/batch"
	berrors "github.com/letsencrypt/batchdml/errors"
	"github.com/letsencrypt/batchdml/types"
)

// Excluded is the Position of a slot that is not bound for the current row.
// Bound positions start at 1.
const Excluded = 0

// Policy decides, once per batch, how a slot's inclusion is determined.
type Policy int

const (
	// AlwaysExcluded slots never bind: generated columns left to the backend
	// and LOB values written in a second phase.
	AlwaysExcluded Policy = iota
	// AlwaysIncluded slots bind on every row.
	AlwaysIncluded
	// IncludedUnlessNull slots bind unless the row's value is NULL, in which
	// case the statement carries a literal IS NULL instead of a placeholder.
	IncludedUnlessNull
)

func (p Policy) String() string {
	switch p {
	case AlwaysExcluded:
		return "AlwaysExcluded"
	case AlwaysIncluded:
		return "AlwaysIncluded"
	case IncludedUnlessNull:
		return "IncludedUnlessNull"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// constantSource marks a slot whose value does not come from the row.
const constantSource = -1

// Binding is a reusable positional parameter holder. Its Column, Converter
// and Policy are fixed when the statement is compiled; Value and Position are
// overwritten for every row.
type Binding struct {
	Column    *batch.Column
	Value     any
	Position  int
	Converter types.Converter
	Policy    Policy

	// source is the row index the value is read from, or constantSource.
	source   int
	constant any
	// nullInSQL records that the compiled statement renders this slot as
	// IS NULL.
	nullInSQL bool
}

// Exclude clears the slot so it is not bound for the current row.
func (b *Binding) Exclude() {
	b.Value = nil
	b.Position = Excluded
}

// Include makes the slot bind value at the given 1-based position.
func (b *Binding) Include(position int, value any) {
	b.Value = value
	b.Position = position
}

// IncludeWith is Include with a converter override.
func (b *Binding) IncludeWith(position int, value any, converter types.Converter) {
	b.Include(position, value)
	b.Converter = converter
}

// IsExcluded reports whether the slot is skipped for the current row.
func (b *Binding) IsExcluded() bool {
	return b.Position == Excluded
}

func (b *Binding) valueFrom(row batch.Row) any {
	if b.source == constantSource {
		return b.constant
	}
	return row[b.source]
}

// Bindings is the slot array of one compiled statement. It is created once
// per batch, holds one slot per column that could ever be bound, and is
// refreshed in place for each row; it is never resized or replaced. Only the
// translator that owns it writes to it, and it is not safe for concurrent
// use.
type Bindings struct {
	slots []Binding
	bound int
}

func newBindings(slots []Binding) *Bindings {
	return &Bindings{slots: slots}
}

// Len returns the number of slots, bound or not.
func (bs *Bindings) Len() int {
	return len(bs.slots)
}

// At returns slot i. The pointer stays valid for the life of the batch.
func (bs *Bindings) At(i int) *Binding {
	return &bs.slots[i]
}

// Included returns the number of slots bound for the current row.
func (bs *Bindings) Included() int {
	return bs.bound
}

// Args converts the bound values and appends them, in position order, to
// dst[:0]. Passing the previous result back in avoids allocating per row.
func (bs *Bindings) Args(dst []any) ([]any, error) {
	dst = dst[:0]
	for i := 0; i < bs.bound; i++ {
		dst = append(dst, nil)
	}
	for i := range bs.slots {
		s := &bs.slots[i]
		if s.IsExcluded() {
			continue
		}
		if s.Position > bs.bound {
			return nil, berrors.New(berrors.InternalServer, "slot %s has position %d of %d", s.Column, s.Position, bs.bound)
		}
		v := s.Value
		if s.Converter != nil {
			var err error
			v, err = s.Converter.ToDb(v)
			if err != nil {
				return nil, &berrors.BatchError{
					Type:   berrors.Mapping,
					Detail: fmt.Sprintf("binding column %s at position %d", s.Column, s.Position),
					Row:    berrors.NoRow,
					Err:    err,
				}
			}
		}
		dst[s.Position-1] = v
	}
	return dst, nil
}

// refresh applies each slot's policy to row, assigning dense positions in
// slot order.
func (bs *Bindings) refresh(row batch.Row) error {
	pos := 1
	for i := range bs.slots {
		s := &bs.slots[i]
		switch s.Policy {
		case AlwaysExcluded:
			s.Exclude()
		case AlwaysIncluded:
			s.Include(pos, s.valueFrom(row))
			pos++
		case IncludedUnlessNull:
			v := s.valueFrom(row)
			isNull := batch.IsNull(v)
			if isNull != s.nullInSQL {
				return berrors.New(berrors.InvalidBatch, "qualifier %s NULL mismatch: statement compiled with IS NULL=%t", s.Column, s.nullInSQL)
			}
			if isNull {
				s.Exclude()
				continue
			}
			s.Include(pos, v)
			pos++
		}
	}
	bs.bound = pos - 1
	return nil
}

// renumber reassigns dense positions over the slots that are still included,
// after some were excluded outside of their policy.
func (bs *Bindings) renumber() {
	pos := 1
	for i := range bs.slots {
		s := &bs.slots[i]
		if s.IsExcluded() {
			continue
		}
		s.Position = pos
		pos++
	}
	bs.bound = pos - 1
}
