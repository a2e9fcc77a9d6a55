package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Common field names shared by all components.
const (
	FieldComponent = "component"
	FieldSender    = "sender_id"
	FieldKind      = "kind"
	FieldOutcome   = "outcome"
	FieldError     = "error"
)

// New builds a logger writing to w (stdout when nil). format is "json" or "text".
func New(level, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}

// Noop discards everything; used as the default in constructors and tests.
func Noop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func Component(name string) slog.Attr {
	return slog.String(FieldComponent, name)
}

func Sender(id string) slog.Attr {
	return slog.String(FieldSender, id)
}

func Kind(k string) slog.Attr {
	return slog.String(FieldKind, k)
}

func Outcome(o string) slog.Attr {
	return slog.String(FieldOutcome, o)
}

// Error returns an error attribute; nil errors render as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
