// Package logging configures the process-wide slog default: a text handler on
// stderr for the terminal fanned out with a JSON handler appending to a log
// file. The REPL owns stdout, so diagnostics stay on stderr.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

var level = new(slog.LevelVar)

// Setup installs the default logger. levelStr is one of debug/info/warn/error
// (case-insensitive; anything else means info). logPath may be empty for
// terminal-only logging. The returned func closes the log file.
func Setup(levelStr, logPath string) (func(), error) {
	level.Set(parseLevel(levelStr))

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}

	closer := func() {}
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return nil, fmt.Errorf("logging: create log dir: %w", err)
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		closer = func() { _ = f.Close() }
	}

	slog.SetDefault(slog.New(slogmulti.Fanout(handlers...)))
	return closer, nil
}

// SetLevel changes the level of the installed handlers at runtime.
func SetLevel(levelStr string) {
	level.Set(parseLevel(levelStr))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
