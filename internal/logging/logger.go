// Package logging wraps charmbracelet/log for skywatch.
//
// The terminal dashboard owns stdout, so the CLI points the logger at a
// dated file under ~/.skywatch/logs. One-shot commands log to stderr.
// Every helper is nil-safe: packages may log before Init runs.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	mu      sync.RWMutex
	logger  *log.Logger
	logFile *os.File
)

// Init installs a global logger writing to w at the given level
// ("debug", "info", "warn", "error"). Unknown levels fall back to info.
func Init(w io.Writer, level string) {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           ParseLevel(level),
	})

	mu.Lock()
	logger = l
	mu.Unlock()
}

// InitFile opens (or creates) the dated log file in dir and installs a
// logger writing to it. Returns the file path.
func InitFile(dir, level string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}

	name := fmt.Sprintf("skywatch-%s.log", time.Now().Format("2006-01-02"))
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("open log file: %w", err)
	}

	mu.Lock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	mu.Unlock()

	Init(f, level)
	return path, nil
}

// ParseLevel maps a config string to a log level.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Close closes the log file, if one was opened.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func current() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Info logs an info message
func Info(msg string, keyvals ...interface{}) {
	if l := current(); l != nil {
		l.Info(msg, keyvals...)
	}
}

// Debug logs a debug message
func Debug(msg string, keyvals ...interface{}) {
	if l := current(); l != nil {
		l.Debug(msg, keyvals...)
	}
}

// Warn logs a warning message
func Warn(msg string, keyvals ...interface{}) {
	if l := current(); l != nil {
		l.Warn(msg, keyvals...)
	}
}

// Error logs an error message
func Error(msg string, keyvals ...interface{}) {
	if l := current(); l != nil {
		l.Error(msg, keyvals...)
	}
}

// Logger is a component-scoped logger. The zero value discards.
type Logger struct {
	prefix string
}

// WithPrefix returns a logger that tags every line with the component
// name. Lookups of the global logger happen per call, so a Logger
// created before Init still writes once Init has run.
func WithPrefix(prefix string) Logger {
	return Logger{prefix: prefix}
}

func (c Logger) get() *log.Logger {
	l := current()
	if l == nil {
		return nil
	}
	if c.prefix == "" {
		return l
	}
	return l.WithPrefix(c.prefix)
}

func (c Logger) Debug(msg string, keyvals ...interface{}) {
	if l := c.get(); l != nil {
		l.Debug(msg, keyvals...)
	}
}

func (c Logger) Info(msg string, keyvals ...interface{}) {
	if l := c.get(); l != nil {
		l.Info(msg, keyvals...)
	}
}

func (c Logger) Warn(msg string, keyvals ...interface{}) {
	if l := c.get(); l != nil {
		l.Warn(msg, keyvals...)
	}
}

func (c Logger) Error(msg string, keyvals ...interface{}) {
	if l := c.get(); l != nil {
		l.Error(msg, keyvals...)
	}
}
