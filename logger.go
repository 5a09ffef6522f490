package hlsdl

import (
	"log/slog"
	"os"
)

// newLogger builds a logger whose level follows the verbosity flags in o,
// the same precedence the teacher's CLI uses: silent > debug > verbose > default.
func newLogger(o Option) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelInfo
	}
	if o.Debug {
		level = slog.LevelDebug
	}
	if o.Silent {
		level = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	})
	return slog.New(handler)
}
