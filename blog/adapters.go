package blog

import (
	"fmt"
	"log"
	"log/slog"
	"strings"

	"github.com/go-logr/stdr"
	"github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
)

// InitAdapters sends the output of the MySQL driver, the OpenTelemetry SDK and
// the standard library log package to slogger.
func InitAdapters(slogger *slog.Logger) {
	_ = mysql.SetLogger(mysqlLogger{slogger})
	log.SetOutput(logWriter{slogger})
	otel.SetLogger(stdr.New(logOutput{slogger}))
}

// mysqlLogger is a mysql.Logger. The driver only logs connection trouble, so
// its lines are errors.
type mysqlLogger struct {
	slogger *slog.Logger
}

func (l mysqlLogger) Print(v ...any) {
	l.slogger.Error("[mysql] " + fmt.Sprint(v...))
}

// logWriter is the output of the standard library's default logger.
type logWriter struct {
	slogger *slog.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.slogger.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// logOutput is the stdr.StdLogger behind the otel logr.Logger.
type logOutput struct {
	slogger *slog.Logger
}

func (o logOutput) Output(_ int, line string) error {
	o.slogger.Info(line)
	return nil
}
