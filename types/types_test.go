package types

import (
	"bytes"
	"database/sql"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/letsencrypt/borp"
	"github.com/shopspring/decimal"

	berrors "github.com/letsencrypt/batchdml/errors"
	"github.com/letsencrypt/batchdml/test"
)

func TestTypeCodeKinds(t *testing.T) {
	testCases := []struct {
		code TypeCode
		kind Kind
	}{
		{BigInt, KindInteger},
		{TinyInt, KindInteger},
		{VarChar, KindText},
		{NChar, KindText},
		{VarBinary, KindBinary},
		{Numeric, KindDecimal},
		{Double, KindDecimal},
		{Timestamp, KindTemporal},
		{Bit, KindBoolean},
		{Blob, KindBinaryLOB},
		{Clob, KindTextLOB},
		{NClob, KindTextLOB},
	}
	for _, tc := range testCases {
		t.Run(tc.code.String(), func(t *testing.T) {
			k, ok := tc.code.Kind()
			test.Assert(t, ok, "type code should have a kind")
			test.AssertEquals(t, k, tc.kind)
		})
	}

	_, ok := Unknown.Kind()
	test.Assert(t, !ok, "Unknown has no kind")
	test.Assert(t, Clob.IsLOB(), "CLOB is a LOB")
	test.Assert(t, !VarChar.IsLOB(), "VARCHAR is not a LOB")
}

func TestParseTypeCode(t *testing.T) {
	code, err := ParseTypeCode(" clob ")
	test.AssertNotError(t, err, "parsing clob")
	test.AssertEquals(t, code, Clob)

	code, err = ParseTypeCode("int")
	test.AssertNotError(t, err, "parsing int")
	test.AssertEquals(t, code, Integer)

	_, err = ParseTypeCode("GEOMETRY")
	test.AssertError(t, err, "GEOMETRY is not a known type")

	var c TypeCode
	err = c.UnmarshalText([]byte("timestamp"))
	test.AssertNotError(t, err, "unmarshaling timestamp")
	test.AssertEquals(t, c, Timestamp)
	out, err := c.MarshalText()
	test.AssertNotError(t, err, "marshaling timestamp")
	test.AssertEquals(t, string(out), "TIMESTAMP")
}

func TestConverters(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	testCases := []struct {
		name     string
		kind     Kind
		in       any
		expected any
		wantErr  bool
	}{
		{"int to int64", KindInteger, 7, int64(7), false},
		{"uint32 to int64", KindInteger, uint32(9), int64(9), false},
		{"uint64 overflow", KindInteger, uint64(math.MaxUint64), nil, true},
		{"null int", KindInteger, sql.NullInt64{}, nil, false},
		{"valid null int", KindInteger, sql.NullInt64{Int64: 4, Valid: true}, int64(4), false},
		{"string to int", KindInteger, "7", nil, true},
		{"text", KindText, "hello", "hello", false},
		{"bytes to text", KindText, []byte("hi"), "hi", false},
		{"int to text", KindText, 3, nil, true},
		{"binary", KindBinary, []byte{1, 2}, []byte{1, 2}, false},
		{"string to binary", KindBinary, "ab", []byte("ab"), false},
		{"float to decimal", KindDecimal, 1.5, decimal.NewFromFloat(1.5), false},
		{"string to decimal", KindDecimal, "12.34", decimal.RequireFromString("12.34"), false},
		{"int to decimal", KindDecimal, 12, decimal.NewFromInt(12), false},
		{"bad decimal", KindDecimal, "twelve", nil, true},
		{"time", KindTemporal, when, when, false},
		{"time pointer", KindTemporal, &when, when, false},
		{"nil time pointer", KindTemporal, (*time.Time)(nil), nil, false},
		{"bool", KindBoolean, true, true, false},
		{"int to bool", KindBoolean, 0, false, false},
		{"two is not a bool", KindBoolean, 2, nil, true},
		{"clob inline", KindTextLOB, "hello", "hello", false},
		{"blob inline", KindBinaryLOB, []byte("x"), []byte("x"), false},
		{"nil", KindText, nil, nil, false},
	}

	r := NewRegistry()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := r.ConverterForKind(tc.kind)
			test.AssertNotError(t, err, "looking up converter")
			test.AssertEquals(t, c.Kind(), tc.kind)
			out, err := c.ToDb(tc.in)
			if tc.wantErr {
				test.AssertError(t, err, "expected conversion error")
				return
			}
			test.AssertNotError(t, err, "converting")
			if d, ok := tc.expected.(decimal.Decimal); ok {
				test.Assert(t, d.Equal(out.(decimal.Decimal)), "decimal mismatch")
				return
			}
			test.AssertDeepEquals(t, out, tc.expected)
		})
	}
}

func TestConverterForUnknownType(t *testing.T) {
	_, err := NewRegistry().ConverterFor(Unknown)
	test.AssertError(t, err, "Unknown type code should not resolve")
	test.Assert(t, berrors.Is(err, berrors.Mapping), "expected a mapping error")

	r := NewRegistry()
	err = r.Register(KindDecimal, nil)
	test.AssertNotError(t, err, "unregistering decimal")
	_, err = r.ConverterFor(Numeric)
	test.Assert(t, berrors.Is(err, berrors.Mapping), "expected a mapping error for an unregistered kind")
}

func TestRegister(t *testing.T) {
	r := NewRegistry()
	err := r.Register(KindText, integerConverter{})
	test.AssertError(t, err, "kind mismatch should fail")

	err = r.Register(KindTextLOB, textConverter{})
	test.AssertError(t, err, "a LOB kind needs a LOBConverter")
}

type bufferLocator struct {
	bytes.Buffer
	closed   bool
	closeErr error
}

func (b *bufferLocator) Close() error {
	b.closed = true
	return b.closeErr
}

func (b *bufferLocator) OpenBinaryWriter() (io.WriteCloser, error)    { return b, nil }
func (b *bufferLocator) OpenCharacterWriter() (io.WriteCloser, error) { return b, nil }

func TestWriteLOB(t *testing.T) {
	r := NewRegistry()
	c, err := r.ConverterFor(Clob)
	test.AssertNotError(t, err, "looking up CLOB converter")
	lc, ok := c.(LOBConverter)
	test.Assert(t, ok, "CLOB converter should be a LOBConverter")

	loc := &bufferLocator{}
	n, err := lc.WriteLOB(loc, "hello")
	test.AssertNotError(t, err, "writing CLOB")
	test.AssertEquals(t, n, int64(5))
	test.AssertEquals(t, loc.String(), "hello")
	test.Assert(t, loc.closed, "writer should be closed")

	_, err = lc.WriteLOB("not a locator", "hello")
	test.AssertError(t, err, "a string is not a locator")

	failing := &bufferLocator{closeErr: errors.New("flush failed")}
	c, err = r.ConverterFor(Blob)
	test.AssertNotError(t, err, "looking up BLOB converter")
	_, err = c.(LOBConverter).WriteLOB(failing, []byte{0xde, 0xad})
	test.AssertError(t, err, "close errors are write errors")
	test.AssertContains(t, err.Error(), "flush failed")
}

// upperConverter is a borp.TypeConverter that upper-cases strings.
type upperConverter struct{}

func (upperConverter) ToDb(val any) (any, error) {
	if s, ok := val.(string); ok {
		return strings.ToUpper(s), nil
	}
	return val, nil
}

func (upperConverter) FromDb(target any) (borp.CustomScanner, bool) {
	return borp.CustomScanner{}, false
}

func TestWithTypeConverter(t *testing.T) {
	r := NewRegistry().WithTypeConverter(upperConverter{})

	c, err := r.ConverterFor(VarChar)
	test.AssertNotError(t, err, "looking up VARCHAR converter")
	out, err := c.ToDb("abc")
	test.AssertNotError(t, err, "converting")
	test.AssertEquals(t, out, "ABC")

	c, err = r.ConverterFor(Clob)
	test.AssertNotError(t, err, "looking up CLOB converter")
	lc, ok := c.(LOBConverter)
	test.Assert(t, ok, "type converting wrapper should keep LOB support")
	loc := &bufferLocator{}
	_, err = lc.WriteLOB(loc, "hello")
	test.AssertNotError(t, err, "writing CLOB")
	test.AssertEquals(t, loc.String(), "HELLO")
}
