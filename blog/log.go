package blog

import (
	"context"
	"log/slog"
)

func logAt(ctx context.Context, level slog.Level, msg string, err error, attrs []slog.Attr) {
	slogger := fromContext(ctx)
	if !slogger.Enabled(ctx, level) {
		return
	}
	if err != nil {
		attrs = append([]slog.Attr{slog.Any("error", err)}, attrs...)
	}
	slogger.LogAttrs(ctx, level, msg, attrs...)
}

// Error logs msg at error level with err under the "error" key.
func Error(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	logAt(ctx, slog.LevelError, msg, err, attrs)
}

func Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	logAt(ctx, slog.LevelWarn, msg, nil, attrs)
}

func Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	logAt(ctx, slog.LevelInfo, msg, nil, attrs)
}

func Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	logAt(ctx, slog.LevelDebug, msg, nil, attrs)
}

// AuditError writes a batch failure audit line at error level.
//
// The marker has to be on the Record itself, not added with Logger.With, or
// auditHandler.Handle would never see it.
func AuditError(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	logAt(ctx, slog.LevelError, msg, err, append([]slog.Attr{auditMarker}, attrs...))
}

// AuditInfo writes a batch outcome audit line at info level.
func AuditInfo(ctx context.Context, msg string, attrs ...slog.Attr) {
	logAt(ctx, slog.LevelInfo, msg, nil, append([]slog.Attr{auditMarker}, attrs...))
}
