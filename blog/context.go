package blog

import (
	"context"
	"io"
	"log/slog"
)

type loggerKey struct{}

// nowhere is returned for contexts that never had a logger attached, so the
// engine can be used as a library without configuring logging.
var nowhere = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))

// NewContext returns a copy of ctx carrying slogger.
func NewContext(ctx context.Context, slogger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, slogger)
}

func fromContext(ctx context.Context) *slog.Logger {
	if slogger, _ := ctx.Value(loggerKey{}).(*slog.Logger); slogger != nil {
		return slogger
	}
	return nowhere
}

// ContextWith returns a copy of ctx whose logger adds attrs to every line,
// e.g. the table and batch id for the duration of one batch.
func ContextWith(ctx context.Context, attrs ...slog.Attr) context.Context {
	handler := fromContext(ctx).Handler().WithAttrs(attrs)
	return NewContext(ctx, slog.New(handler))
}
