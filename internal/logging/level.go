package logging

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrInvalidLogLevel is returned for an unrecognized level name
var ErrInvalidLogLevel = errors.New("invalid log level")

// ParseLevel parses "debug", "info", "warn" or "error", case-insensitively.
// An empty string means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q (expected debug, info, warn or error)", ErrInvalidLogLevel, s)
	}
}
