// Package blog carries a *slog.Logger on the context for the engine and the
// batchdml tool. Every line starts with a CRC32 checksum of the rest of the
// line; the per-batch outcome lines written by AuditInfo and AuditError are
// additionally tagged "[AUDIT] ".
package blog

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Config selects the level and format of the process logger.
type Config struct {
	// Level is one of "debug", "info", "warn" or "error". Defaults to
	// "info".
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	// TextFormat selects slog's logfmt-style text output instead of JSON.
	TextFormat bool `yaml:"textFormat"`
}

// New builds a logger writing to w according to c.
func New(w io.Writer, c Config) (*slog.Logger, error) {
	level := slog.LevelInfo
	if c.Level != "" {
		err := level.UnmarshalText([]byte(strings.ToUpper(c.Level)))
		if err != nil {
			return nil, fmt.Errorf("parsing log level %q: %w", c.Level, err)
		}
	}
	newHandler := jsonHandler
	if c.TextFormat {
		newHandler = textHandler
	}
	return slog.New(newAuditHandler(newHandler, w, &slog.HandlerOptions{Level: level})), nil
}
