package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup initializes the default slog logger at the given level.
// Valid levels: "debug", "info", "warn", "error". Defaults to "info".
func Setup(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	slog.SetDefault(slog.New(h))
}
