// Package log wires the process-wide slog default used by every simrun
// binary. Run progress meant for the user goes through the emitter; slog is
// the operator-facing diagnostic channel on stderr, so the two never
// interleave on stdout.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default text handler at the given level. Unknown level
// strings fall back to info rather than failing startup.
func Setup(logLevel string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	})))
}

// ParseLevel maps a level flag value to a slog level, case-insensitively.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithModule returns the default logger tagged with the originating module.
func WithModule(module string) *slog.Logger {
	return slog.With("service", "simrun", "module", module)
}
