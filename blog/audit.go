package blog

import (
	"context"
	"io"
	"log/slog"
)

// Audit lines record the outcome of each batch: executed with its affected
// row count, or failed with the error. AuditInfo and AuditError put the
// auditMarker attr on the record itself; auditHandler routes marked records to
// a handler whose writer tags them and strips the marker.
var auditMarker = slog.Bool("audit", true)

type newHandlerFunc func(io.Writer, *slog.HandlerOptions) slog.Handler

func jsonHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewJSONHandler(w, opts)
}

func textHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewTextHandler(w, opts)
}

type auditHandler struct {
	plain slog.Handler
	audit slog.Handler
}

func newAuditHandler(newHandler newHandlerFunc, w io.Writer, opts *slog.HandlerOptions) *auditHandler {
	return &auditHandler{
		plain: newHandler(lineWriter{out: w}, opts),
		audit: newHandler(lineWriter{out: w, tag: auditTag}, opts),
	}
}

// Both handlers share opts, so asking one is enough.
func (h *auditHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.plain.Enabled(ctx, l)
}

func (h *auditHandler) Handle(ctx context.Context, r slog.Record) error {
	marked := false
	r.Attrs(func(a slog.Attr) bool {
		marked = a.Equal(auditMarker)
		return !marked
	})
	if !marked {
		return h.plain.Handle(ctx, r)
	}
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		if !a.Equal(auditMarker) {
			out.AddAttrs(a)
		}
		return true
	})
	return h.audit.Handle(ctx, out)
}

func (h *auditHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &auditHandler{plain: h.plain.WithAttrs(attrs), audit: h.audit.WithAttrs(attrs)}
}

func (h *auditHandler) WithGroup(name string) slog.Handler {
	return &auditHandler{plain: h.plain.WithGroup(name), audit: h.audit.WithGroup(name)}
}
