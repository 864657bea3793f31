// Package logger provides the structured logger used across the service. It
// wraps logrus behind a small API so packages never depend on the backend
// directly.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Level      string
	Format     string // "json" or "text"
	Output     string // "stdout", "stderr", or "file"
	FilePrefix string
}

// Logger is a structured logger with chained field support.
type Logger struct {
	entry *logrus.Entry
}

// New constructs a logger from configuration. Invalid values fall back to
// sensible defaults rather than failing startup.
func New(cfg LoggingConfig) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	base.SetOutput(resolveOutput(cfg))

	return &Logger{entry: logrus.NewEntry(base)}
}

// NewDefault returns an info-level text logger tagged with a component name.
func NewDefault(component string) *Logger {
	log := New(LoggingConfig{Level: "info", Format: "text", Output: "stderr"})
	if component != "" {
		return log.WithField("component", component)
	}
	return log
}

func resolveOutput(cfg LoggingConfig) io.Writer {
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "stdout":
		return os.Stdout
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "service"
		}
		name := fmt.Sprintf("%s-%s.log", prefix, time.Now().UTC().Format("20060102"))
		f, err := os.OpenFile(filepath.Clean(name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return os.Stderr
		}
		return f
	default:
		return os.Stderr
	}
}

// WithField returns a logger with an additional structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a logger with several additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithError attaches an error to the logger.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

func (l *Logger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Info(args ...interface{})                  { l.entry.Info(args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *Logger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }
