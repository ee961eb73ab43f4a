// Package logging provides structured logging with slog for keybridge.
//
// Input methods see every keystroke, so attributes that could carry typed
// text are redacted before they reach any handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"keybridge/internal/config"
)

// Level represents a logging level.
type Level = slog.Level

// Log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format represents the output format for logs.
type Format int

const (
	// FormatText outputs human-readable text logs.
	FormatText Format = iota
	// FormatJSON outputs JSON-structured logs.
	FormatJSON
)

// Config holds the logging configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level Level

	// Format is the output format (text or JSON).
	Format Format

	// Output specifies where logs are written.
	// Can be "stdout", "stderr", "file", or "both".
	Output string

	// Writer, when set, replaces Output entirely.
	Writer io.Writer

	// FilePath is the path to the log file when Output includes "file".
	FilePath string

	// MaxSize is the maximum size of a log file in megabytes before rotation.
	MaxSize int64

	// MaxAge is the maximum age of log files in days before deletion.
	MaxAge int

	// MaxBackups is the maximum number of rotated log files to keep.
	MaxBackups int

	// Compress determines if rotated logs should be gzip compressed.
	Compress bool

	// AddSource adds source file and line to log entries.
	AddSource bool

	// Component is the name of the component using this logger.
	Component string
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     "stderr",
		FilePath:   filepath.Join(config.PlatformStateDir(), "keybridge.log"),
		MaxSize:    10,
		MaxAge:     14,
		MaxBackups: 3,
		Compress:   true,
		Component:  "keybridge",
	}
}

// FromConfig converts the [logging] section of the keybridge configuration.
// Unknown level or format strings fall back to the defaults; the config
// package rejects them before they get here.
func FromConfig(c config.LoggingConfig) *Config {
	cfg := DefaultConfig()
	if lvl, err := ParseLevel(c.Level); err == nil {
		cfg.Level = lvl
	}
	if f, err := ParseFormat(c.Format); err == nil {
		cfg.Format = f
	}
	if c.Output != "" {
		cfg.Output = c.Output
	}
	if c.FilePath != "" {
		cfg.FilePath = c.FilePath
	}
	if c.MaxSizeMB > 0 {
		cfg.MaxSize = int64(c.MaxSizeMB)
	}
	cfg.MaxBackups = c.MaxBackups
	cfg.MaxAge = c.MaxAgeDays
	cfg.Compress = c.Compress
	return cfg
}

// Logger wraps slog.Logger with additional functionality.
type Logger struct {
	*slog.Logger
	config  *Config
	rotator *FileRotator
	mu      sync.Mutex
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger
)

// Default returns the default global logger. Until SetDefault is called it
// writes text to stderr.
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		l, err := New(DefaultConfig())
		if err != nil {
			l = &Logger{Logger: slog.Default(), config: DefaultConfig()}
		}
		defaultLogger = l
	}
	return defaultLogger
}

// SetDefault sets the default global logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
	slog.SetDefault(l.Logger)
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: LevelError + 1})),
		config: DefaultConfig(),
	}
}

// New creates a new Logger with the given configuration.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Logger{config: cfg}

	w, err := l.output()
	if err != nil {
		return nil, fmt.Errorf("setup writers: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if shouldRedact(a.Key) {
				a.Value = slog.StringValue("[REDACTED]")
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	if cfg.Component != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("component", cfg.Component),
		})
	}

	l.Logger = slog.New(handler)
	return l, nil
}

// output picks the writer the handler logs to.
func (l *Logger) output() (io.Writer, error) {
	if l.config.Writer != nil {
		return l.config.Writer, nil
	}

	switch strings.ToLower(l.config.Output) {
	case "stdout":
		return os.Stdout, nil
	case "file", "both":
		rotator, err := NewFileRotator(l.config)
		if err != nil {
			return nil, err
		}
		l.rotator = rotator
		if strings.EqualFold(l.config.Output, "both") {
			return io.MultiWriter(os.Stderr, rotator), nil
		}
		return rotator, nil
	default:
		return os.Stderr, nil
	}
}

// sensitiveKeys are key words that mark an attribute as typed text or a
// secret typed into a password field.
var sensitiveKeys = map[string]bool{
	"text": true, "char": true, "preedit": true, "surrounding": true,
	"password": true, "secret": true, "token": true, "credential": true,
}

// shouldRedact reports whether an attribute key may hold typed text or
// secrets. Keys are split into words on '_', '-' and '.', so commit_text
// is redacted while input_context is not.
func shouldRedact(key string) bool {
	words := strings.FieldsFunc(strings.ToLower(key), func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	for _, w := range words {
		if sensitiveKeys[w] {
			return true
		}
	}
	return false
}

func (l *Logger) derive(sl *slog.Logger) *Logger {
	return &Logger{
		Logger:  sl,
		config:  l.config,
		rotator: l.rotator,
	}
}

// WithComponent returns a new logger with a different component name.
func (l *Logger) WithComponent(name string) *Logger {
	return l.derive(l.Logger.With(slog.String("component", name)))
}

// WithInputContext returns a logger tagged with a host input context, such
// as an IBus engine object path.
func (l *Logger) WithInputContext(id string) *Logger {
	return l.derive(l.Logger.With(slog.String("input_context", id)))
}

// Close closes any open log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotator != nil {
		return l.rotator.Sync()
	}
	return nil
}

// Convenience functions for the default logger.

// Debug logs at debug level using the default logger.
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// Info logs at info level using the default logger.
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs at warn level using the default logger.
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs at error level using the default logger.
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// ParseLevel parses a string into a log level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// LevelString returns the string representation of a log level.
func LevelString(level Level) string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseFormat parses "text" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %s", s)
	}
}
