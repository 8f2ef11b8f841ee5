package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"imageclassifier/internal/config"
)

// Log file names, one per level.
const (
	InfoFile    = "info.log"
	WarningFile = "warning.log"
	ErrorFile   = "error.log"
)

// Logger provides leveled logging (info/warning/error) to files and stdout/stderr.
type Logger struct {
	infoLog    *slog.Logger
	warningLog *slog.Logger
	errorLog   *slog.Logger
	files      []*os.File
	logDir     string
	mu         sync.Mutex
}

type ctxKey struct{}

// WithRequestID stores a request correlation id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID returns the correlation id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(cfg *config.Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.LogDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{logDir: cfg.LogDirectory}
	level := ParseLevel(cfg.LogLevel)

	writers := make(map[string]io.Writer, 3)
	for name, console := range map[string]io.Writer{InfoFile: os.Stdout, WarningFile: os.Stdout, ErrorFile: os.Stderr} {
		f, err := os.OpenFile(filepath.Join(l.logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to open log file %s: %w", name, err)
		}
		l.files = append(l.files, f)
		writers[name] = io.MultiWriter(console, f)
	}

	l.infoLog = newSlog(writers[InfoFile], level)
	l.warningLog = newSlog(writers[WarningFile], level)
	l.errorLog = newSlog(writers[ErrorFile], level)
	return l, nil
}

// NewWriter builds a Logger that sends every level to w. Used by tools and tests.
func NewWriter(w io.Writer, level slog.Level) *Logger {
	s := newSlog(w, level)
	return &Logger{infoLog: s, warningLog: s, errorLog: s}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return NewWriter(io.Discard, slog.LevelError+1)
}

func newSlog(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel converts "debug", "info", "warn" or "error" to a slog.Level; unknown strings mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

func (l *Logger) write(ctx context.Context, s *slog.Logger, level slog.Level, format string, v []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id := RequestID(ctx); id != "" {
		s.Log(ctx, level, fmt.Sprintf(format, v...), "request_id", id)
		return
	}
	s.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.write(context.Background(), l.infoLog, slog.LevelInfo, format, v)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.write(context.Background(), l.warningLog, slog.LevelWarn, format, v)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.write(context.Background(), l.errorLog, slog.LevelError, format, v)
}

// InfoCtx is Info tagged with the request id from ctx.
func (l *Logger) InfoCtx(ctx context.Context, format string, v ...interface{}) {
	l.write(ctx, l.infoLog, slog.LevelInfo, format, v)
}

// WarningCtx is Warning tagged with the request id from ctx.
func (l *Logger) WarningCtx(ctx context.Context, format string, v ...interface{}) {
	l.write(ctx, l.warningLog, slog.LevelWarn, format, v)
}

// ErrorCtx is Error tagged with the request id from ctx.
func (l *Logger) ErrorCtx(ctx context.Context, format string, v ...interface{}) {
	l.write(ctx, l.errorLog, slog.LevelError, format, v)
}

// Dir returns the directory holding the log files.
func (l *Logger) Dir() string {
	return l.logDir
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	if l.logDir == "" {
		return fmt.Errorf("logger has no log directory")
	}
	if !IsLogFile(fileName) {
		return fmt.Errorf("unknown log file %q", fileName)
	}

	l.mu.Lock()
	err := os.Truncate(filepath.Join(l.logDir, fileName), 0)
	l.mu.Unlock()
	if err != nil {
		l.Error("Error truncating log file %s: %v", fileName, err)
		return err
	}

	l.Info("Log file %s has been cleared.", fileName)
	return nil
}

// IsLogFile reports whether name is one of the level log files.
func IsLogFile(name string) bool {
	return name == InfoFile || name == WarningFile || name == ErrorFile
}

// Close closes the underlying log files.
func (l *Logger) Close() error {
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}
