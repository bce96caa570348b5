// Package adapter describes the backend a batch is translated for: how names
// are quoted and which execution features the backend offers.
package adapter

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/letsencrypt/borp"

	"github.com/letsencrypt/batchdml/batch"
	"github.com/letsencrypt/batchdml/types"
)

// Adapter is the naming and capability service consulted by translators and
// executors. Implementations must be deterministic: the same input always
// yields the same output.
type Adapter interface {
	Name() string
	QuotedName(c *batch.Column) string
	QuotedFullyQualifiedName(t *batch.Table) string
	// SupportsGeneratedKeys reports whether generated primary keys can be
	// read back after an insert (sql.Result.LastInsertId).
	SupportsGeneratedKeys() bool
	// SupportsBatchUpdates reports whether one prepared statement can be
	// reused for every row of a batch.
	SupportsBatchUpdates() bool
	// BindsLOBsInline reports whether large objects can be bound as ordinary
	// parameters. When false, LOB columns take the two-phase path.
	BindsLOBsInline() bool
	// EmptyLOB returns the SQL literal that creates an empty large object of
	// kind k, or "" when the backend has none.
	EmptyLOB(k types.Kind) string
	// Rebind rewrites the ? placeholders that translators emit into the
	// backend's bind variable syntax.
	Rebind(query string) string
}

type dialect struct {
	name          string
	quoteField    func(string) string
	quoteTable    func(schema, table string) string
	generatedKeys bool
	batchUpdates  bool
	lobsInline    bool
	emptyLOBs     map[types.Kind]string
	// bindType is an sqlx bind type. The zero value leaves ? untouched.
	bindType int
}

func (d *dialect) Name() string { return d.name }

func (d *dialect) QuotedName(c *batch.Column) string {
	return d.quoteField(c.Name)
}

func (d *dialect) QuotedFullyQualifiedName(t *batch.Table) string {
	return d.quoteTable(t.Schema, t.Name)
}

func (d *dialect) SupportsGeneratedKeys() bool { return d.generatedKeys }
func (d *dialect) SupportsBatchUpdates() bool  { return d.batchUpdates }
func (d *dialect) BindsLOBsInline() bool       { return d.lobsInline }

func (d *dialect) EmptyLOB(k types.Kind) string {
	return d.emptyLOBs[k]
}

func (d *dialect) Rebind(query string) string {
	return sqlx.Rebind(d.bindType, query)
}

// MySQL quotes names the way borp's MySQL dialect does, with embedded
// backticks doubled. Generated keys come back through LastInsertId and LOBs
// bind inline.
func MySQL() Adapter {
	bd := borp.MySQLDialect{Engine: "InnoDB", Encoding: "utf8mb4"}
	return &dialect{
		name: "mysql",
		quoteField: func(field string) string {
			return bd.QuoteField(escapeBackticks(field))
		},
		quoteTable: func(schema, table string) string {
			return bd.QuotedTableForQuery(schema, escapeBackticks(table))
		},
		bindType:      sqlx.QUESTION,
		generatedKeys: true,
		batchUpdates:  true,
		lobsInline:    true,
	}
}

// escapeBackticks doubles embedded backticks. borp's QuoteField does not.
func escapeBackticks(name string) string {
	return strings.ReplaceAll(name, "`", "``")
}

// doubleQuote quotes an identifier with ANSI double quotes, doubling any
// embedded quote.
func doubleQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func qualified(quote func(string) string) func(schema, table string) string {
	return func(schema, table string) string {
		if strings.TrimSpace(schema) == "" {
			return quote(table)
		}
		return quote(schema) + "." + quote(table)
	}
}

// Postgres uses ANSI quoting and $n bind variables. Its drivers do not
// implement LastInsertId, so generated keys are not read back.
func Postgres() Adapter {
	return &dialect{
		name:         "postgres",
		quoteField:   doubleQuote,
		quoteTable:   qualified(doubleQuote),
		batchUpdates: true,
		lobsInline:   true,
		bindType:     sqlx.DOLLAR,
	}
}

// Oracle uses ANSI quoting and cannot bind large objects inline: they are
// written as EMPTY_CLOB()/EMPTY_BLOB() and streamed into a locator
// afterwards. Rebind leaves the ? placeholders in place; the statements it
// produces are dialect-neutral and need a driver that accepts ? (or a caller
// that rewrites them) before reaching an Oracle server.
func Oracle() Adapter {
	return &dialect{
		name:         "oracle",
		quoteField:   doubleQuote,
		quoteTable:   qualified(doubleQuote),
		batchUpdates: true,
		emptyLOBs: map[types.Kind]string{
			types.KindTextLOB:   "EMPTY_CLOB()",
			types.KindBinaryLOB: "EMPTY_BLOB()",
		},
	}
}

func bare(name string) string { return name }

// Plain leaves names unquoted and offers no optional features. It renders
// the most readable SQL, for dry runs and tests.
func Plain() Adapter {
	return &dialect{
		name:       "plain",
		quoteField: bare,
		quoteTable: qualified(bare),
		lobsInline: true,
	}
}

// ByName returns the adapter with the given name.
func ByName(name string) (Adapter, error) {
	switch strings.ToLower(name) {
	case "mysql":
		return MySQL(), nil
	case "postgres", "postgresql":
		return Postgres(), nil
	case "oracle":
		return Oracle(), nil
	case "plain", "":
		return Plain(), nil
	}
	return nil, fmt.Errorf("unknown adapter %q", name)
}
