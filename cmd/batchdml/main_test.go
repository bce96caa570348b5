package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmhodges/clock"
	"github.com/letsencrypt/borp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/letsencrypt/batchdml/adapter"
	"github.com/letsencrypt/batchdml/cmd"
	"github.com/letsencrypt/batchdml/db"
	berrors "github.com/letsencrypt/batchdml/errors"
	"github.com/letsencrypt/batchdml/executor"
	"github.com/letsencrypt/batchdml/test"
	"github.com/letsencrypt/batchdml/types"
)

func loadSets(t *testing.T, bodies map[string]string, order ...string) []batchSet {
	t.Helper()
	var names []string
	for _, name := range order {
		names = append(names, writeBatchFile(t, name, bodies[name]))
	}
	sets, err := loadBatchSets(names)
	test.AssertNotError(t, err, "loading batch sets")
	return sets
}

func TestDryRun(t *testing.T) {
	sets := loadSets(t, map[string]string{
		"retire.yaml": artistTableYAML + "kind: delete\nqualifier: [id]\nsoftDelete: {column: deleted}\nrows:\n  - [7]\n  - [8]\n",
		"rename.yaml": artistTableYAML + "kind: update\ncolumns: [name]\nqualifier: [label]\nrows:\n  - [Nina, Verve]\n  - [Ella, null]\n",
	}, "retire.yaml", "rename.yaml")

	var out bytes.Buffer
	err := dryRun(&out, adapter.Plain(), types.NewRegistry(), sets)
	test.AssertNotError(t, err, "dry run")

	got := out.String()
	test.AssertContains(t, got, "delete artist, 2 rows\nUPDATE artist SET deleted = ? WHERE id = ?\n  row 0: [true 7]\n  row 1: [true 8]\n")
	test.AssertContains(t, got, "UPDATE artist SET name = ? WHERE label = ?\n  row 0: [Nina Verve]\n")
	test.AssertContains(t, got, "UPDATE artist SET name = ? WHERE label IS NULL\n  row 0: [Ella]\n")
}

func TestDryRunPostgresBindVariables(t *testing.T) {
	sets := loadSets(t, map[string]string{
		"rename.yaml": artistTableYAML + "kind: update\ncolumns: [name]\nqualifier: [id]\nrows:\n  - [Nina, 1]\n",
	}, "rename.yaml")

	var out bytes.Buffer
	err := dryRun(&out, adapter.Postgres(), types.NewRegistry(), sets)
	test.AssertNotError(t, err, "dry run")
	test.AssertContains(t, out.String(), `UPDATE "artist" SET "name" = $1 WHERE "id" = $2`+"\n  row 0: [Nina 1]\n")
}

func TestDryRunLOB(t *testing.T) {
	sets := loadSets(t, map[string]string{
		"docs.yaml": `table:
  name: doc
  columns:
    - {name: id, type: BIGINT, primaryKey: true}
    - {name: body, type: CLOB, nullable: true}
kind: insert
columns: [id, body]
rows:
  - [1, hello]
  - [2, null]
`,
	}, "docs.yaml")

	var out bytes.Buffer
	err := dryRun(&out, adapter.Oracle(), types.NewRegistry(), sets)
	test.AssertNotError(t, err, "dry run")

	got := out.String()
	test.AssertContains(t, got, `row 0: INSERT INTO "doc" ("id", "body") VALUES (?, EMPTY_CLOB()) [1]`)
	test.AssertContains(t, got, `then: SELECT "body" FROM "doc" WHERE "id" = ? FOR UPDATE [1]`)
	test.AssertContains(t, got, "stream: body")
	test.AssertContains(t, got, `row 1: INSERT INTO "doc" ("id", "body") VALUES (?, ?) [2 <nil>]`)
}

func TestDryRunMappingError(t *testing.T) {
	sets := loadSets(t, map[string]string{
		"bad.yaml": artistTableYAML + "kind: delete\nqualifier: [id]\nrows:\n  - [seven]\n",
	}, "bad.yaml")

	err := dryRun(&bytes.Buffer{}, adapter.Plain(), types.NewRegistry(), sets)
	test.Assert(t, berrors.Is(err, berrors.Mapping), "a string id is a mapping error")
	test.AssertContains(t, err.Error(), "bad.yaml")
}

func testDbMap(t *testing.T) (*db.WrappedMap, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock := test.MockDB(t)
	dbMap := &borp.DbMap{Db: sqlDB, Dialect: borp.MySQLDialect{Engine: "InnoDB", Encoding: "utf8mb4"}}
	return db.NewWrappedMap(dbMap), mock
}

func TestRunBatchSets(t *testing.T) {
	sets := loadSets(t, map[string]string{
		"add.yaml":    artistTableYAML + "kind: insert\ncolumns: [name]\nrows:\n  - [Nina]\n  - [Ella]\n",
		"retire.yaml": artistTableYAML + "kind: delete\nqualifier: [id]\nrows:\n  - [7]\n",
	}, "add.yaml", "retire.yaml")

	dbMap, mock := testDbMap(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `artist` (`name`) VALUES (?)").WithArgs("Nina").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `artist` (`name`) VALUES (?)").WithArgs("Ella").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `artist` WHERE `id` = ?").WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	stats := prometheus.NewRegistry()
	action := executor.New(adapter.MySQL(), types.NewRegistry(), stats, clock.NewFake())
	err := runBatchSets(context.Background(), dbMap, action, sets, 1, 0)
	test.AssertNotError(t, err, "running batch sets")
	test.AssertNotError(t, mock.ExpectationsWereMet(), "unmet sqlmock expectations")
}

func TestRunBatchSetsRollsBack(t *testing.T) {
	sets := loadSets(t, map[string]string{
		"retire.yaml": artistTableYAML + "kind: delete\nqualifier: [id]\noptimisticLocking: true\nrows:\n  - [7]\n  - [8]\n",
	}, "retire.yaml")

	dbMap, mock := testDbMap(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `artist` WHERE `id` = ?").WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM `artist` WHERE `id` = ?").WithArgs(int64(8)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	action := executor.New(adapter.MySQL(), types.NewRegistry(), prometheus.NewRegistry(), clock.NewFake())
	err := runBatchSets(context.Background(), dbMap, action, sets, 0, 0)
	test.Assert(t, berrors.Is(err, berrors.OptimisticLock), "stale row fails the file")
	test.AssertContains(t, err.Error(), "retire.yaml")
	var be *berrors.BatchError
	test.Assert(t, errors.As(err, &be), "error is a BatchError")
	test.AssertEquals(t, be.Row, 1)
	test.AssertNotError(t, mock.ExpectationsWereMet(), "unmet sqlmock expectations")
}

func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		expected string
	}{
		{
			name: "valid",
			body: "batchdml:\n  adapter: mysql\n  parallelism: 4\n  timeout: 30s\n  db:\n    dbConnect: batch@tcp(localhost:3306)/music\n",
		},
		{
			name: "postgres",
			body: "batchdml:\n  adapter: postgres\n  db:\n    dbConnect: host=localhost dbname=music sslmode=disable\n",
		},
		{
			name: "dry run only",
			body: "batchdml:\n  adapter: oracle\nlog:\n  level: debug\n",
		},
		{
			name:     "unknown adapter",
			body:     "batchdml:\n  adapter: sqlite\n",
			expected: "'oneof' tag",
		},
		{
			name:     "negative parallelism",
			body:     "batchdml:\n  parallelism: -1\n",
			expected: "'min' tag",
		},
		{
			name:     "db without connect string",
			body:     "batchdml:\n  db:\n    maxOpenConns: 5\n",
			expected: "required_without",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeBatchFile(t, "batchdml.yaml", tc.body)
			err := cmd.ReadAndValidateConfigFile("batchdml", path)
			if tc.expected == "" {
				test.AssertNotError(t, err, "validating config")
				return
			}
			test.AssertError(t, err, "validating config")
			test.AssertContains(t, err.Error(), tc.expected)
		})
	}
}
