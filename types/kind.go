// Package types maps declared column types onto a closed set of value kinds
// and resolves, once per column, the converter that writes a row value into a
// bind parameter.
package types

import (
	"fmt"
	"strings"
)

// Kind is the semantic kind of a column value. The set is closed: every
// TypeCode maps to exactly one Kind, and converters are registered per Kind.
type Kind int

const (
	KindInteger Kind = iota
	KindText
	KindBinary
	KindDecimal
	KindTemporal
	KindBoolean
	KindBinaryLOB
	KindTextLOB
)

var kindNames = [...]string{
	KindInteger:   "integer",
	KindText:      "text",
	KindBinary:    "binary",
	KindDecimal:   "decimal",
	KindTemporal:  "temporal",
	KindBoolean:   "boolean",
	KindBinaryLOB: "binary-lob",
	KindTextLOB:   "text-lob",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// IsLOB reports whether values of this kind are large objects, which some
// backends can only write through a locator.
func (k Kind) IsLOB() bool {
	return k == KindBinaryLOB || k == KindTextLOB
}

// TypeCode is the declared SQL type of a column.
type TypeCode int

const (
	Unknown TypeCode = iota
	BigInt
	Integer
	SmallInt
	TinyInt
	Char
	VarChar
	LongVarChar
	NChar
	NVarChar
	Binary
	VarBinary
	LongVarBinary
	Decimal
	Numeric
	Float
	Double
	Real
	Date
	Time
	Timestamp
	Boolean
	Bit
	Blob
	Clob
	NClob
)

var typeCodes = []struct {
	code TypeCode
	name string
	kind Kind
}{
	{BigInt, "BIGINT", KindInteger},
	{Integer, "INTEGER", KindInteger},
	{SmallInt, "SMALLINT", KindInteger},
	{TinyInt, "TINYINT", KindInteger},
	{Char, "CHAR", KindText},
	{VarChar, "VARCHAR", KindText},
	{LongVarChar, "LONGVARCHAR", KindText},
	{NChar, "NCHAR", KindText},
	{NVarChar, "NVARCHAR", KindText},
	{Binary, "BINARY", KindBinary},
	{VarBinary, "VARBINARY", KindBinary},
	{LongVarBinary, "LONGVARBINARY", KindBinary},
	{Decimal, "DECIMAL", KindDecimal},
	{Numeric, "NUMERIC", KindDecimal},
	{Float, "FLOAT", KindDecimal},
	{Double, "DOUBLE", KindDecimal},
	{Real, "REAL", KindDecimal},
	{Date, "DATE", KindTemporal},
	{Time, "TIME", KindTemporal},
	{Timestamp, "TIMESTAMP", KindTemporal},
	{Boolean, "BOOLEAN", KindBoolean},
	{Bit, "BIT", KindBoolean},
	{Blob, "BLOB", KindBinaryLOB},
	{Clob, "CLOB", KindTextLOB},
	{NClob, "NCLOB", KindTextLOB},
}

var (
	codeNames  = map[TypeCode]string{}
	codeKinds  = map[TypeCode]Kind{}
	codeByName = map[string]TypeCode{}
)

func init() {
	for _, tc := range typeCodes {
		codeNames[tc.code] = tc.name
		codeKinds[tc.code] = tc.kind
		codeByName[tc.name] = tc.code
	}
	// Common spellings accepted in batch definitions.
	codeByName["INT"] = Integer
	codeByName["TEXT"] = Clob
	codeByName["DATETIME"] = Timestamp
}

func (c TypeCode) String() string {
	name, ok := codeNames[c]
	if !ok {
		return fmt.Sprintf("TypeCode(%d)", int(c))
	}
	return name
}

// Kind returns the value kind for the type code. The second return value is
// false for Unknown and for codes outside the closed set.
func (c TypeCode) Kind() (Kind, bool) {
	k, ok := codeKinds[c]
	return k, ok
}

// IsLOB reports whether the type code is a large-object type.
func (c TypeCode) IsLOB() bool {
	k, ok := c.Kind()
	return ok && k.IsLOB()
}

// ParseTypeCode parses a type name such as "VARCHAR" or "clob".
func ParseTypeCode(name string) (TypeCode, error) {
	code, ok := codeByName[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return Unknown, fmt.Errorf("unknown column type %q", name)
	}
	return code, nil
}

// MarshalText implements encoding.TextMarshaler.
func (c TypeCode) MarshalText() ([]byte, error) {
	name, ok := codeNames[c]
	if !ok {
		return nil, fmt.Errorf("cannot marshal %s", c)
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, so type codes can be
// written by name in JSON and YAML batch definitions.
func (c *TypeCode) UnmarshalText(text []byte) error {
	code, err := ParseTypeCode(string(text))
	if err != nil {
		return err
	}
	*c = code
	return nil
}
