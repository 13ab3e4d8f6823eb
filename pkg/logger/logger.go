package logger

import (
	"log/slog"
	"os"
)

// NewHandler builds the process-wide slog handler. Nil options get the
// defaults: JSON output at info level.
func NewHandler(opts *slog.HandlerOptions) slog.Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}
	}

	return slog.NewJSONHandler(os.Stdout, opts)
}
