package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Category selects which named logger a record goes to.
type Category string

const (
	Application   Category = "application"
	DiscordEvents Category = "discord"
	Database      Category = "database"
	Errors        Category = "error"
)

// Options configures SetupLogger.
type Options struct {
	// Dir is where the rotating log file is written. Empty disables file output.
	Dir string
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string
	// Console mirrors records to stderr in text form.
	Console bool
	// MaxSizeMB, MaxBackups and MaxAgeDays are passed to lumberjack.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger owns the handlers shared by every category logger.
type Logger struct {
	base    *slog.Logger
	file    *lumberjack.Logger
	loggers map[Category]*slog.Logger
}

var (
	mu sync.RWMutex

	// GlobalLogger is set by SetupLogger. Accessors fall back to stderr when nil.
	GlobalLogger *Logger

	fallback = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
)

// SetupLogger initializes GlobalLogger. Calling it again replaces the previous logger.
func SetupLogger(opts Options) error {
	level := ParseLevel(opts.Level)

	var handlers []slog.Handler
	var file *lumberjack.Logger

	if opts.Console {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		file = &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, "modcore.log"),
			MaxSize:    positiveOr(opts.MaxSizeMB, 25),
			MaxBackups: positiveOr(opts.MaxBackups, 5),
			MaxAge:     positiveOr(opts.MaxAgeDays, 14),
			Compress:   true,
		}
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level, AddSource: true}))
	}
	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(io.Discard, nil))
	}

	base := slog.New(fanout(handlers))
	l := &Logger{
		base: base,
		file: file,
		loggers: map[Category]*slog.Logger{
			Application:   base.With("category", string(Application)),
			DiscordEvents: base.With("category", string(DiscordEvents)),
			Database:      base.With("category", string(Database)),
			Errors:        base.With("category", string(Errors)),
		},
	}

	mu.Lock()
	prev := GlobalLogger
	GlobalLogger = l
	mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// Sync flushes buffered output. lumberjack writes synchronously, so this only
// exists so shutdown paths read the same as with buffered backends.
func (l *Logger) Sync() {
	if l == nil {
		return
	}
}

// Close releases the log file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// For returns the logger for a category.
func For(c Category) *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if GlobalLogger == nil {
		return fallback
	}
	if lg, ok := GlobalLogger.loggers[c]; ok {
		return lg
	}
	return GlobalLogger.base
}

func ApplicationLogger() *slog.Logger { return For(Application) }
func DiscordLogger() *slog.Logger     { return For(DiscordEvents) }
func DatabaseLogger() *slog.Logger    { return For(Database) }

// ErrorLoggerRaw returns the error category logger.
func ErrorLoggerRaw() *slog.Logger { return For(Errors) }

// ParseLevel converts LOG_LEVEL style strings; unknown values map to info.
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

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// multiHandler sends each record to every handler that accepts its level.
type multiHandler []slog.Handler

func fanout(hs []slog.Handler) slog.Handler {
	if len(hs) == 1 {
		return hs[0]
	}
	return multiHandler(hs)
}

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithGroup(name)
	}
	return out
}
