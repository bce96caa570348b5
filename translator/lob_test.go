package translator

import (
	"testing"

	"github.com/letsencrypt/batchdml/adapter"
	"github.com/letsencrypt/batchdml/batch"
	berrors "github.com/letsencrypt/batchdml/errors"
	"github.com/letsencrypt/batchdml/test"
	"github.com/letsencrypt/batchdml/types"
)

func documentTable() *batch.Table {
	return &batch.Table{
		Name: "doc",
		Columns: []*batch.Column{
			{Name: "id", Type: types.BigInt, PrimaryKey: true},
			{Name: "title", Type: types.VarChar},
			{Name: "body", Type: types.Clob, Nullable: true},
			{Name: "scan", Type: types.Blob, Nullable: true},
		},
	}
}

// keyedOracle is Oracle with generated key read back, a combination under
// which inserted LOB rows cannot be found again.
type keyedOracle struct{ adapter.Adapter }

func (keyedOracle) SupportsGeneratedKeys() bool { return true }

func TestLOBInsert(t *testing.T) {
	tbl := documentTable()
	row := batch.Row{int64(1), "greeting", "hello", nil}
	b, err := batch.NewInsertBatch(tbl, tbl.Columns, []batch.Row{row})
	test.AssertNotError(t, err, "insert batch")

	tr := NewLOB(b, adapter.Oracle(), types.NewRegistry())
	before, err := tr.Bindings()
	test.AssertNotError(t, err, "compiling")

	sql, bs, err := tr.Translate(row)
	test.AssertNotError(t, err, "translating row")
	test.AssertSQLEquals(t, sql, `
		INSERT INTO "doc" ("id", "title", "body", "scan")
		VALUES (?, ?, EMPTY_CLOB(), ?)`)
	test.Assert(t, bs == before, "LOB translator reuses its bindings")
	test.Assert(t, bs.At(2).IsExcluded(), "non-NULL CLOB is not bound")
	test.AssertEquals(t, bs.At(3).Position, 3)

	args, err := bs.Args(nil)
	test.AssertNotError(t, err, "converting args")
	test.AssertDeepEquals(t, args, []any{int64(1), "greeting", nil})

	lobs := tr.LOBValues()
	test.AssertEquals(t, len(lobs), 1)
	test.AssertEquals(t, lobs[0].Column, tbl.Columns[2])
	test.AssertEquals(t, lobs[0].Value, any("hello"))
	test.AssertNotNil(t, lobs[0].Converter, "LOB converter")

	sel, keys, err := tr.SelectForUpdate(row)
	test.AssertNotError(t, err, "rendering re-select")
	test.AssertEquals(t, sel, `SELECT "body" FROM "doc" WHERE "id" = ? FOR UPDATE`)
	keyArgs, err := keys.Args(nil)
	test.AssertNotError(t, err, "converting key args")
	test.AssertDeepEquals(t, keyArgs, []any{int64(1)})
}

func TestLOBInsertWithoutLOBValues(t *testing.T) {
	tbl := documentTable()
	row := batch.Row{int64(2), "empty", nil, nil}
	b, err := batch.NewInsertBatch(tbl, tbl.Columns, []batch.Row{row})
	test.AssertNotError(t, err, "insert batch")

	tr := NewLOB(b, adapter.Oracle(), types.NewRegistry())
	sql, bs, err := tr.Translate(row)
	test.AssertNotError(t, err, "translating row")
	test.AssertSQLEquals(t, sql, `
		INSERT INTO "doc" ("id", "title", "body", "scan")
		VALUES (?, ?, ?, ?)`)
	test.AssertEquals(t, bs.Included(), 4)
	test.AssertEquals(t, len(tr.LOBValues()), 0)

	sel, keys, err := tr.SelectForUpdate(row)
	test.AssertNotError(t, err, "rendering re-select")
	test.AssertEquals(t, sel, "")
	test.Assert(t, keys == nil, "no re-select without LOB values")
}

func TestLOBPerRowStatements(t *testing.T) {
	tbl := documentTable()
	rows := []batch.Row{
		{int64(1), "a", "text", []byte{1}},
		{int64(2), "b", nil, []byte{2}},
	}
	b, err := batch.NewInsertBatch(tbl, tbl.Columns, rows)
	test.AssertNotError(t, err, "insert batch")
	tr := NewLOB(b, adapter.Oracle(), types.NewRegistry())

	sql, _, err := tr.Translate(rows[0])
	test.AssertNotError(t, err, "translating row 0")
	test.AssertContains(t, sql, "VALUES (?, ?, EMPTY_CLOB(), EMPTY_BLOB())")
	sel, _, err := tr.SelectForUpdate(rows[0])
	test.AssertNotError(t, err, "re-select row 0")
	test.AssertContains(t, sel, `SELECT "body", "scan" FROM`)

	sql, bs, err := tr.Translate(rows[1])
	test.AssertNotError(t, err, "translating row 1")
	test.AssertContains(t, sql, "VALUES (?, ?, ?, EMPTY_BLOB())")
	test.AssertEquals(t, bs.At(2).Position, 3)
	test.Assert(t, bs.At(3).IsExcluded(), "BLOB is streamed")
	sel, _, err = tr.SelectForUpdate(rows[1])
	test.AssertNotError(t, err, "re-select row 1")
	test.AssertContains(t, sel, `SELECT "scan" FROM`)
}

func TestLOBUpdate(t *testing.T) {
	tbl := documentTable()
	id, title, body := tbl.Columns[0], tbl.Columns[1], tbl.Columns[2]
	row := batch.Row{"revised", int64(5), nil}
	b, err := batch.NewUpdateBatch(tbl, []*batch.Column{body}, []*batch.Column{id, title}, []batch.Row{
		{"revised", int64(5), nil},
	})
	test.AssertNotError(t, err, "update batch")
	tr := NewLOB(b, adapter.Oracle(), types.NewRegistry())
	sql, bs, err := tr.Translate(row)
	test.AssertNotError(t, err, "translating row")
	test.AssertSQLEquals(t, sql, `
		UPDATE "doc" SET "body" = EMPTY_CLOB()
		WHERE "id" = ? AND "title" IS NULL`)
	args, err := bs.Args(nil)
	test.AssertNotError(t, err, "converting args")
	test.AssertDeepEquals(t, args, []any{int64(5)})

	sel, keys, err := tr.SelectForUpdate(row)
	test.AssertNotError(t, err, "rendering re-select")
	test.AssertSQLEquals(t, sel, `
		SELECT "body" FROM "doc"
		WHERE "id" = ? AND "title" IS NULL
		FOR UPDATE`)
	test.AssertEquals(t, keys.Included(), 1)
}

func TestLOBUnsupported(t *testing.T) {
	tbl := documentTable()
	registry := types.NewRegistry()

	del, err := batch.NewDeleteBatch(tbl, []*batch.Column{tbl.Columns[0]}, []batch.Row{{int64(1)}})
	test.AssertNotError(t, err, "delete batch")
	_, err = NewLOB(del, adapter.Oracle(), registry).Bindings()
	test.Assert(t, berrors.Is(err, berrors.Unsupported), "delete batches have no LOB path")

	generated := &batch.Table{
		Name: "doc",
		Columns: []*batch.Column{
			{Name: "id", Type: types.BigInt, PrimaryKey: true, Generated: true},
			{Name: "body", Type: types.Clob},
		},
	}
	ins, err := batch.NewInsertBatch(generated, generated.Columns, nil)
	test.AssertNotError(t, err, "insert batch")
	_, _, err = NewLOB(ins, keyedOracle{adapter.Oracle()}, registry).Translate(batch.Row{nil, "x"})
	test.Assert(t, berrors.Is(err, berrors.Unsupported), "backend generated keys cannot be re-selected")

	ins, err = batch.NewInsertBatch(tbl, tbl.Columns[1:], nil)
	test.AssertNotError(t, err, "insert batch")
	_, err = NewLOB(ins, adapter.Oracle(), registry).Bindings()
	test.Assert(t, berrors.Is(err, berrors.Unsupported), "primary key must be inserted")

	ins, err = batch.NewInsertBatch(tbl, tbl.Columns, nil)
	test.AssertNotError(t, err, "insert batch")
	_, err = NewLOB(ins, adapter.Plain(), registry).Bindings()
	test.Assert(t, berrors.Is(err, berrors.Unsupported), "adapter without empty LOB constructor")
}
