// Package logging builds the slog logger handed to every component.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Anything else is info.
func ParseLevel(s string) slog.Level {
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

// New returns a logger writing to w. format is "json" or "text".
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns a logger for sink: "stderr", "stdout", "discard" or
// "file:<path>". The closer releases the file, if any.
func Open(sink, level, format string) (*slog.Logger, io.Closer, error) {
	switch {
	case sink == "" || sink == "stderr":
		return New(os.Stderr, level, format), nopCloser{}, nil
	case sink == "stdout":
		return New(os.Stdout, level, format), nopCloser{}, nil
	case sink == "discard":
		return New(io.Discard, level, format), nopCloser{}, nil
	case strings.HasPrefix(sink, "file:"):
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		return New(f, level, format), f, nil
	default:
		return nil, nil, fmt.Errorf("unknown log sink %q", sink)
	}
}
