package types

import (
	"fmt"

	"github.com/letsencrypt/borp"

	berrors "github.com/letsencrypt/batchdml/errors"
)

// Registry resolves the converter for a declared column type. Resolution is
// keyed by Kind only; there is no lookup by runtime Go type.
type Registry struct {
	converters map[Kind]Converter
	// typeConverter, when set, runs before the kind converter, in the same
	// way borp runs a DbMap's TypeConverter before binding a struct field.
	typeConverter borp.TypeConverter
}

// NewRegistry returns a Registry holding the default converter for every
// Kind.
func NewRegistry() *Registry {
	return &Registry{
		converters: map[Kind]Converter{
			KindInteger:   integerConverter{},
			KindText:      textConverter{},
			KindBinary:    binaryConverter{},
			KindDecimal:   decimalConverter{},
			KindTemporal:  temporalConverter{},
			KindBoolean:   booleanConverter{},
			KindBinaryLOB: binaryLOBConverter{},
			KindTextLOB:   textLOBConverter{},
		},
	}
}

// Register replaces the converter used for k. Converters for LOB kinds must
// implement LOBConverter.
func (r *Registry) Register(k Kind, c Converter) error {
	if c == nil {
		delete(r.converters, k)
		return nil
	}
	if c.Kind() != k {
		return fmt.Errorf("converter for %s registered under %s", c.Kind(), k)
	}
	if _, ok := c.(LOBConverter); k.IsLOB() && !ok {
		return fmt.Errorf("converter for %s must implement LOBConverter", k)
	}
	r.converters[k] = c
	return nil
}

// WithTypeConverter attaches an application-level borp.TypeConverter whose
// ToDb is applied to every value before kind conversion. Only ToDb is used;
// the engine never reads rows back.
func (r *Registry) WithTypeConverter(tc borp.TypeConverter) *Registry {
	r.typeConverter = tc
	return r
}

// ConverterFor returns the converter for a declared column type. Unknown type
// codes and kinds without a registered converter are mapping errors.
func (r *Registry) ConverterFor(code TypeCode) (Converter, error) {
	k, ok := code.Kind()
	if !ok {
		return nil, berrors.New(berrors.Mapping, "no value kind for column type %s", code)
	}
	return r.ConverterForKind(k)
}

// ConverterForKind returns the converter registered for k.
func (r *Registry) ConverterForKind(k Kind) (Converter, error) {
	c, ok := r.converters[k]
	if !ok {
		return nil, berrors.New(berrors.Mapping, "no converter registered for %s values", k)
	}
	if r.typeConverter == nil {
		return c, nil
	}
	if lc, ok := c.(LOBConverter); ok {
		return lobTypeConverting{inner: lc, tc: r.typeConverter}, nil
	}
	return typeConverting{inner: c, tc: r.typeConverter}, nil
}

type typeConverting struct {
	inner Converter
	tc    borp.TypeConverter
}

func (c typeConverting) Kind() Kind { return c.inner.Kind() }

func (c typeConverting) ToDb(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	v, err := c.tc.ToDb(v)
	if err != nil {
		return nil, err
	}
	return c.inner.ToDb(v)
}

type lobTypeConverting struct {
	inner LOBConverter
	tc    borp.TypeConverter
}

func (c lobTypeConverting) Kind() Kind { return c.inner.Kind() }

func (c lobTypeConverting) ToDb(v any) (any, error) {
	return typeConverting{inner: c.inner, tc: c.tc}.ToDb(v)
}

func (c lobTypeConverting) WriteLOB(locator any, v any) (int64, error) {
	if v != nil {
		var err error
		v, err = c.tc.ToDb(v)
		if err != nil {
			return 0, err
		}
	}
	return c.inner.WriteLOB(locator, v)
}
