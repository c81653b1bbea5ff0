// Package logging wraps log/slog with credential redaction and
// terminal-aware handler selection.
package logging

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Logger wraps slog.Logger with redaction support.
type Logger struct {
	*slog.Logger
	redactor *Redactor
}

// Config configures the logger.
type Config struct {
	Level  string
	Format string // auto, text, json
	Output io.Writer
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "auto",
		Output: os.Stderr,
	}
}

// New creates a new logger. Format "auto" picks the console handler on a
// terminal and JSON otherwise.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	level := parseLevel(cfg.Level)
	redactor := NewRedactor()

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(cfg.Output, &slog.HandlerOptions{Level: level})
	case "text":
		handler = slog.NewTextHandler(cfg.Output, &slog.HandlerOptions{Level: level})
	default:
		if isTerminal(cfg.Output) {
			handler = NewConsoleHandler(cfg.Output, level)
		} else {
			handler = slog.NewJSONHandler(cfg.Output, &slog.HandlerOptions{Level: level})
		}
	}

	return &Logger{
		Logger:   slog.New(NewRedactingHandler(handler, redactor)),
		redactor: redactor,
	}
}

// NewNop creates a no-op logger for tests.
func NewNop() *Logger {
	return &Logger{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		redactor: NewRedactor(),
	}
}

func parseLevel(s string) slog.Level {
	switch s {
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

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// WithSession returns a logger scoped to a debate session.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{Logger: l.Logger.With("session_id", sessionID), redactor: l.redactor}
}

// WithRound returns a logger scoped to a round.
func (l *Logger) WithRound(phase string, round int) *Logger {
	return &Logger{Logger: l.Logger.With("phase", phase, "round", round), redactor: l.redactor}
}

// WithParticipant returns a logger scoped to an agent or judge.
func (l *Logger) WithParticipant(id string) *Logger {
	return &Logger{Logger: l.Logger.With("participant", id), redactor: l.redactor}
}

// With returns a logger with custom fields.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), redactor: l.redactor}
}

// Redact scrubs credentials from a string using the logger's redactor.
func (l *Logger) Redact(input string) string {
	return l.redactor.Redact(input)
}
