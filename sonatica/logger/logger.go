// Package logger provides the slog-backed implementation of sonatica.Logger.
package logger

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/liuran001/sonatica-go/sonatica"
)

// Options configures New.
type Options struct {
	Level     string
	Format    string
	AddSource bool
	// Dir receives one file per day. Empty logs to stdout only.
	Dir string
}

// Logger wraps slog.Logger to satisfy sonatica.Logger.
type Logger struct {
	logger  *slog.Logger
	logFile *os.File
}

// New creates a Logger writing text or JSON records.
func New(opts Options) (*Logger, error) {
	var output io.Writer = os.Stdout
	var logFile *os.File
	if strings.TrimSpace(opts.Dir) != "" {
		file, err := openLogFile(opts.Dir)
		if err != nil {
			return nil, err
		}
		logFile = file
		output = io.MultiWriter(os.Stdout, file)
	}

	return &Logger{logger: slog.New(newHandler(output, opts)), logFile: logFile}, nil
}

// Wrap adapts an existing slog.Logger.
func Wrap(base *slog.Logger) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{logger: base}
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func newHandler(output io.Writer, opts Options) slog.Handler {
	options := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: opts.AddSource,
	}
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		return slog.NewJSONHandler(output, options)
	}
	return slog.NewTextHandler(output, options)
}

// With returns a child logger with additional fields.
func (l *Logger) With(args ...any) sonatica.Logger {
	return &Logger{logger: l.logger.With(args...)}
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// Slog returns the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// ParseLevel maps a config string to a slog level, defaulting to info.
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

func openLogFile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	fileName := "sonatica-" + time.Now().Local().Format("2006-01-02") + ".log"
	file, err := os.OpenFile(filepath.Join(dir, fileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, errors.New("log file handle is nil")
	}
	return file, nil
}

// Close closes the log file handle.
func (l *Logger) Close() error {
	if l == nil || l.logFile == nil {
		return nil
	}
	return l.logFile.Close()
}
