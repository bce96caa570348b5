package blog

import (
	"bytes"
	"context"
	"errors"
	"log"
	"log/slog"
	"strings"
	"testing"

	"github.com/letsencrypt/batchdml/test"
)

func lines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimSpace(buf.String()), "\n")
}

func TestLineWriter(t *testing.T) {
	var buf bytes.Buffer
	n, err := lineWriter{out: &buf}.Write([]byte("hello\n"))
	test.AssertNotError(t, err, "writing")
	sum := lineChecksum([]byte("hello\n"))
	test.AssertEquals(t, len(sum), 6)
	test.AssertEquals(t, n, len(sum)+len(" hello\n"))
	test.AssertEquals(t, buf.String(), sum+" hello\n")

	buf.Reset()
	_, err = lineWriter{out: &buf, tag: auditTag}.Write([]byte("done\n"))
	test.AssertNotError(t, err, "writing audit line")
	test.AssertEquals(t, buf.String(), lineChecksum([]byte("[AUDIT] done\n"))+" [AUDIT] done\n")

	test.AssertNotEquals(t, lineChecksum([]byte("hello")), lineChecksum([]byte("hellp")))
}

func TestAuditLines(t *testing.T) {
	var buf bytes.Buffer
	slogger, err := New(&buf, Config{Level: "info"})
	test.AssertNotError(t, err, "building logger")
	ctx := NewContext(context.Background(), slogger)

	AuditInfo(ctx, "batch finished", Table("artist"), Rows(3))
	Info(ctx, "plain line")
	AuditError(ctx, "batch failed", errors.New("boom"), RowIndex(2))

	got := lines(&buf)
	test.AssertEquals(t, len(got), 3)
	test.AssertContains(t, got[0], "[AUDIT] ")
	test.AssertContains(t, got[0], `"table":"artist"`)
	test.AssertContains(t, got[0], `"rows":3`)
	test.AssertNotContains(t, got[0], `"audit"`)
	test.AssertNotContains(t, got[1], "[AUDIT]")
	test.AssertContains(t, got[2], "[AUDIT] ")
	test.AssertContains(t, got[2], `"error":"boom"`)
	test.AssertContains(t, got[2], `"row":2`)

	// An attr merely named "audit" is not the marker.
	buf.Reset()
	Info(ctx, "not audited", slog.String("audit", "yes"))
	test.AssertNotContains(t, buf.String(), "[AUDIT]")
	test.AssertContains(t, buf.String(), `"audit":"yes"`)
}

func TestAuditLinesWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	slogger, err := New(&buf, Config{TextFormat: true})
	test.AssertNotError(t, err, "building logger")
	ctx := NewContext(context.Background(), slogger.With(BatchID("b-7")))

	AuditInfo(ctx, "batch executed", Rows(2))
	line := buf.String()
	test.AssertContains(t, line, " [AUDIT] ")
	test.AssertContains(t, line, "batch=b-7")
	test.AssertContains(t, line, "rows=2")
	test.AssertNotContains(t, line, "audit=true")
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	slogger, err := New(&buf, Config{Level: "warn", TextFormat: true})
	test.AssertNotError(t, err, "building logger")
	ctx := NewContext(context.Background(), slogger)

	Debug(ctx, "debug line")
	Info(ctx, "info line")
	Warn(ctx, "warn line")
	Error(ctx, "error line", errors.New("boom"))

	got := lines(&buf)
	test.AssertEquals(t, len(got), 2)
	test.AssertContains(t, got[0], "msg=\"warn line\"")
	test.AssertContains(t, got[1], "error=boom")

	_, err = New(&buf, Config{Level: "loud"})
	test.AssertError(t, err, "unknown level")
}

func TestContextWith(t *testing.T) {
	var buf bytes.Buffer
	slogger, err := New(&buf, Config{Level: "debug"})
	test.AssertNotError(t, err, "building logger")
	ctx := NewContext(context.Background(), slogger)
	ctx = ContextWith(ctx, BatchID("b-1"), Operation("insert"))

	Debug(ctx, "compiled", SQL("INSERT INTO t () VALUES ()"))
	got := lines(&buf)
	test.AssertEquals(t, len(got), 1)
	test.AssertContains(t, got[0], `"batch":"b-1"`)
	test.AssertContains(t, got[0], `"op":"insert"`)
	test.AssertContains(t, got[0], `"sql":"INSERT INTO t () VALUES ()"`)
}

func TestNoLoggerOnContext(t *testing.T) {
	// Must not panic.
	ctx := ContextWith(context.Background(), Table("artist"))
	Info(ctx, "nobody is listening")
	AuditError(ctx, "nobody is listening", errors.New("boom"))
}

func TestLogWriterAdapter(t *testing.T) {
	var buf bytes.Buffer
	slogger, err := New(&buf, Config{})
	test.AssertNotError(t, err, "building logger")

	stdlog := log.New(logWriter{slogger}, "", 0)
	stdlog.Print("from the stdlib")
	test.AssertContains(t, buf.String(), `"msg":"from the stdlib"`)

	buf.Reset()
	mysqlLogger{slogger}.Print("bad connection")
	test.AssertContains(t, buf.String(), `"msg":"[mysql] bad connection"`)
	test.AssertContains(t, buf.String(), `"level":"ERROR"`)

	buf.Reset()
	err = logOutput{slogger}.Output(2, "otel says hi")
	test.AssertNotError(t, err, "logr output")
	test.AssertContains(t, buf.String(), "otel says hi")
}
