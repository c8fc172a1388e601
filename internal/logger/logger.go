// Package logger builds the slog loggers used by the locus command.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pithecene-io/locus/internal/config"
)

// Logger wraps slog.Logger with the output it writes to.
type Logger struct {
	*slog.Logger
	out io.Writer
}

// New creates a Logger from cfg. Output "stdout" and "stderr" select the
// standard streams; anything else is a file opened for append.
func New(cfg config.LoggingConfig) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var out io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logger: open %s: %w", cfg.Output, err)
		}
		out = f
	}

	handler, err := newHandler(out, cfg.Format, level)
	if err != nil {
		if c, ok := out.(*os.File); ok && c != os.Stdout && c != os.Stderr {
			_ = c.Close()
		}
		return nil, err
	}
	return &Logger{Logger: slog.New(handler), out: out}, nil
}

// NewWriter creates a Logger writing to w.
func NewWriter(w io.Writer, format string, level slog.Level) (*Logger, error) {
	handler, err := newHandler(w, format, level)
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: slog.New(handler), out: w}, nil
}

// Noop returns a Logger that discards all output.
func Noop() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler), out: io.Discard}
}

func newHandler(w io.Writer, format string, level slog.Level) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("logger: unknown format %q", format)
	}
}

// ParseLevel parses DEBUG, INFO, WARN or ERROR, case-insensitively.
// An empty level is INFO.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logger: %w", err)
	}
	return level, nil
}

// WithResource adds the resource name to every record.
func (l *Logger) WithResource(name string) *Logger {
	return &Logger{Logger: l.With("resource", name), out: l.out}
}

// Close closes the output when it is a file other than the standard
// streams.
func (l *Logger) Close() error {
	f, ok := l.out.(*os.File)
	if !ok || f == os.Stdout || f == os.Stderr {
		return nil
	}
	return f.Close()
}
