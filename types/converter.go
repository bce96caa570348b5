package types

import (
	"database/sql/driver"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Converter writes a row value into a bind parameter. ToDb returns the value
// handed to database/sql for the parameter. A nil input always converts to a
// nil output, which binds SQL NULL.
type Converter interface {
	Kind() Kind
	ToDb(v any) (any, error)
}

// LOBConverter is implemented by the converters of large-object kinds. Besides
// binding inline, they can stream a value into a locator obtained from a
// locking re-select, returning the number of bytes written.
type LOBConverter interface {
	Converter
	WriteLOB(locator any, v any) (int64, error)
}

// BinaryLocator is a backend handle to a binary large object that can be
// written to.
type BinaryLocator interface {
	OpenBinaryWriter() (io.WriteCloser, error)
}

// CharacterLocator is a backend handle to a character large object that can
// be written to. Characters are written UTF-8 encoded.
type CharacterLocator interface {
	OpenCharacterWriter() (io.WriteCloser, error)
}

// resolveValuer unwraps driver.Valuer implementations (sql.NullString and
// friends) so converters only deal with plain Go values.
func resolveValuer(v any) (any, error) {
	for i := 0; i < 8; i++ {
		valuer, ok := v.(driver.Valuer)
		if !ok {
			return v, nil
		}
		// decimal.Decimal is a Valuer too, but the decimal converter wants
		// the typed value.
		if _, isDecimal := v.(decimal.Decimal); isDecimal {
			return v, nil
		}
		out, err := valuer.Value()
		if err != nil {
			return nil, err
		}
		v = out
	}
	return nil, fmt.Errorf("driver.Valuer chain too deep for %T", v)
}

func conversionError(k Kind, v any) error {
	return fmt.Errorf("cannot convert %T to %s", v, k)
}

type integerConverter struct{}

func (integerConverter) Kind() Kind { return KindInteger }

func (integerConverter) ToDb(v any) (any, error) {
	v, err := resolveValuer(v)
	if err != nil || v == nil {
		return nil, err
	}
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint:
		if uint64(t) > math.MaxInt64 {
			return nil, fmt.Errorf("integer value %d overflows int64", t)
		}
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return nil, fmt.Errorf("integer value %d overflows int64", t)
		}
		return int64(t), nil
	default:
		return nil, conversionError(KindInteger, v)
	}
}

type textConverter struct{}

func (textConverter) Kind() Kind { return KindText }

func (textConverter) ToDb(v any) (any, error) {
	return toText(KindText, v)
}

func toText(k Kind, v any) (any, error) {
	v, err := resolveValuer(v)
	if err != nil || v == nil {
		return nil, err
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case *string:
		if t == nil {
			return nil, nil
		}
		return *t, nil
	case []byte:
		return string(t), nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		return nil, conversionError(k, v)
	}
}

type binaryConverter struct{}

func (binaryConverter) Kind() Kind { return KindBinary }

func (binaryConverter) ToDb(v any) (any, error) {
	return toBinary(KindBinary, v)
}

func toBinary(k Kind, v any) (any, error) {
	v, err := resolveValuer(v)
	if err != nil || v == nil {
		return nil, err
	}
	switch t := v.(type) {
	case []byte:
		if t == nil {
			return nil, nil
		}
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return nil, conversionError(k, v)
	}
}

type decimalConverter struct{}

func (decimalConverter) Kind() Kind { return KindDecimal }

func (decimalConverter) ToDb(v any) (any, error) {
	v, err := resolveValuer(v)
	if err != nil || v == nil {
		return nil, err
	}
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case *decimal.Decimal:
		if t == nil {
			return nil, nil
		}
		return *t, nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return nil, fmt.Errorf("parsing decimal %q: %w", t, err)
		}
		return d, nil
	}
	i, err := integerConverter{}.ToDb(v)
	if err != nil {
		return nil, conversionError(KindDecimal, v)
	}
	return decimal.NewFromInt(i.(int64)), nil
}

type temporalConverter struct{}

func (temporalConverter) Kind() Kind { return KindTemporal }

func (temporalConverter) ToDb(v any) (any, error) {
	v, err := resolveValuer(v)
	if err != nil || v == nil {
		return nil, err
	}
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return *t, nil
	default:
		return nil, conversionError(KindTemporal, v)
	}
}

type booleanConverter struct{}

func (booleanConverter) Kind() Kind { return KindBoolean }

func (booleanConverter) ToDb(v any) (any, error) {
	v, err := resolveValuer(v)
	if err != nil || v == nil {
		return nil, err
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	i, err := integerConverter{}.ToDb(v)
	if err != nil {
		return nil, conversionError(KindBoolean, v)
	}
	switch i.(int64) {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return nil, fmt.Errorf("integer %d is not a boolean", i)
}

type binaryLOBConverter struct{}

func (binaryLOBConverter) Kind() Kind { return KindBinaryLOB }

func (binaryLOBConverter) ToDb(v any) (any, error) {
	return toBinary(KindBinaryLOB, v)
}

func (c binaryLOBConverter) WriteLOB(locator any, v any) (int64, error) {
	loc, ok := locator.(BinaryLocator)
	if !ok {
		return 0, fmt.Errorf("%T is not a binary LOB locator", locator)
	}
	data, err := c.ToDb(v)
	if err != nil {
		return 0, err
	}
	w, err := loc.OpenBinaryWriter()
	if err != nil {
		return 0, fmt.Errorf("opening BLOB writer: %w", err)
	}
	b, _ := data.([]byte)
	return writeAndClose(w, b)
}

type textLOBConverter struct{}

func (textLOBConverter) Kind() Kind { return KindTextLOB }

func (textLOBConverter) ToDb(v any) (any, error) {
	return toText(KindTextLOB, v)
}

func (c textLOBConverter) WriteLOB(locator any, v any) (int64, error) {
	loc, ok := locator.(CharacterLocator)
	if !ok {
		return 0, fmt.Errorf("%T is not a character LOB locator", locator)
	}
	data, err := c.ToDb(v)
	if err != nil {
		return 0, err
	}
	w, err := loc.OpenCharacterWriter()
	if err != nil {
		return 0, fmt.Errorf("opening CLOB writer: %w", err)
	}
	s, _ := data.(string)
	return writeAndClose(w, []byte(s))
}

// writeAndClose writes all of b and closes w. The close is part of the write:
// a LOB is not durable until its stream is flushed and closed.
func writeAndClose(w io.WriteCloser, b []byte) (int64, error) {
	n, err := w.Write(b)
	if err != nil {
		_ = w.Close()
		return int64(n), fmt.Errorf("writing LOB: %w", err)
	}
	if n != len(b) {
		_ = w.Close()
		return int64(n), fmt.Errorf("writing LOB: %w", io.ErrShortWrite)
	}
	err = w.Close()
	if err != nil {
		return int64(n), fmt.Errorf("closing LOB writer: %w", err)
	}
	return int64(n), nil
}
