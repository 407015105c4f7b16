package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"alert-autoconf/internal/config"
)

const appName = "alert-autoconf"

const (
	ansiReset  = "\x1b[0m"
	ansiBlue   = "\x1b[34m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiRed    = "\x1b[31m"
	ansiGray   = "\x1b[90m"
)

// tokenPattern matches, in priority order, quoted values, backend ids, and numbers.
// Alternation is leftmost-first so a number inside a quoted value stays part of it.
var tokenPattern = regexp.MustCompile(
	`("[^"\n]*")` +
		`|(\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b)` +
		`|(\b\d+(?:\.\d+)?\b)`,
)

var tokenColors = []string{ansiGreen, ansiCyan, ansiYellow}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns logger or a discarding logger when it is nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}

// New builds a logger for configured sinks; the console sink writes to stderr
// so command output on stdout stays clean.
// Params: cfg contains console/file sink settings.
// Returns: slog logger, cleanup callback, and setup error.
func New(cfg config.LogConfig) (*slog.Logger, func(), error) {
	return NewWithConsole(cfg, os.Stderr)
}

// NewWithConsole is New with an explicit console writer.
// Params: sink settings and console destination.
// Returns: slog logger tagged with app name, cleanup callback, and setup error.
func NewWithConsole(cfg config.LogConfig, console io.Writer) (*slog.Logger, func(), error) {
	var (
		handlers []slog.Handler
		files    []*os.File
	)
	cleanup := func() {
		for _, file := range files {
			_ = file.Close()
		}
	}

	if cfg.Console.Enabled {
		handler, err := consoleHandler(cfg.Console, console)
		if err != nil {
			return nil, nil, fmt.Errorf("build console handler: %w", err)
		}
		handlers = append(handlers, handler)
	}
	if cfg.File.Enabled {
		handler, file, err := fileHandler(cfg.File)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("build file handler: %w", err)
		}
		handlers = append(handlers, handler)
		files = append(files, file)
	}

	switch len(handlers) {
	case 0:
		return nil, nil, errors.New("no log sinks enabled")
	case 1:
		return slog.New(handlers[0]).With("app", appName), cleanup, nil
	default:
		return slog.New(fanout(handlers)).With("app", appName), cleanup, nil
	}
}

func consoleHandler(sink config.LogSinkConfig, dst io.Writer) (slog.Handler, error) {
	level, err := ParseLevel(sink.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if len(groups) == 0 && attr.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return attr
		},
	}
	switch normalized(sink.Format) {
	case "line":
		return slog.NewTextHandler(&colorLineWriter{dst: dst}, opts), nil
	case "json":
		return slog.NewJSONHandler(dst, opts), nil
	default:
		return nil, fmt.Errorf("unsupported console format %q", sink.Format)
	}
}

func fileHandler(sink config.LogSinkConfig) (slog.Handler, *os.File, error) {
	level, err := ParseLevel(sink.Level)
	if err != nil {
		return nil, nil, err
	}
	format := normalized(sink.Format)
	if format != "line" && format != "json" {
		return nil, nil, fmt.Errorf("unsupported file format %q", sink.Format)
	}

	file, err := os.OpenFile(sink.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %q: %w", sink.Path, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(file, opts), file, nil
	}
	return slog.NewTextHandler(file, opts), file, nil
}

// ParseLevel converts a configured level name into slog.Level.
// Params: debug, info, warn, or error (case-insensitive).
// Returns: slog level or error.
func ParseLevel(value string) (slog.Level, error) {
	switch normalized(value) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported level %q", value)
	}
}

func normalized(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// fanout sends each record to every enabled handler.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range f {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range f {
		if handler.Enabled(ctx, record.Level) {
			errs = append(errs, handler.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) derive(fn func(slog.Handler) slog.Handler) fanout {
	next := make(fanout, len(f))
	for i, handler := range f {
		next[i] = fn(handler)
	}
	return next
}

// colorLineWriter paints one rendered text line: the whole line in its level
// color, quoted values, backend ids, and numbers in their own colors.
type colorLineWriter struct {
	dst io.Writer
}

func (w *colorLineWriter) Write(payload []byte) (int, error) {
	line := string(payload)
	base := levelColor(line)
	if base == "" {
		return w.dst.Write(payload)
	}

	var b strings.Builder
	b.Grow(len(line) + 64)
	b.WriteString(base)
	cursor := 0
	for _, match := range tokenPattern.FindAllStringSubmatchIndex(line, -1) {
		for group, color := range tokenColors {
			start, end := match[2+2*group], match[3+2*group]
			if start < 0 {
				continue
			}
			b.WriteString(line[cursor:start])
			b.WriteString(color)
			b.WriteString(line[start:end])
			b.WriteString(ansiReset)
			b.WriteString(base)
			cursor = end
			break
		}
	}
	b.WriteString(line[cursor:])
	b.WriteString(ansiReset)

	if _, err := io.WriteString(w.dst, b.String()); err != nil {
		return 0, err
	}
	return len(payload), nil
}

func levelColor(line string) string {
	switch {
	case strings.Contains(line, "level=DEBUG"):
		return ansiGray
	case strings.Contains(line, "level=INFO"):
		return ansiBlue
	case strings.Contains(line, "level=WARN"):
		return ansiYellow
	case strings.Contains(line, "level=ERROR"):
		return ansiRed
	default:
		return ""
	}
}
