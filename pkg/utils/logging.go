package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/docker/go-units"
)

// LogLevel represents the logging level
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SlogLevel maps the level onto log/slog.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogLevel parses a string log level
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s", level)
	}
}

// Log output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// NewLogger creates a structured logger writing to output in the given format
// ("text" or "json").
func NewLogger(level LogLevel, format string, output io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level.SlogLevel()}

	var handler slog.Handler
	if strings.EqualFold(format, FormatJSON) {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	return slog.New(handler)
}

// SetupLogging builds a logger from configuration strings. An empty file path
// logs to stderr. The returned close function releases the log file, if any.
func SetupLogging(levelStr, format string, file FileOptions) (*slog.Logger, func() error, error) {
	level, err := ParseLogLevel(levelStr)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	if file.Path == "" {
		return NewLogger(level, format, os.Stderr), func() error { return nil }, nil
	}
	rf, err := OpenRotatingFile(file)
	if err != nil {
		return nil, nil, err
	}
	return NewLogger(level, format, rf), rf.Close, nil
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// FormatBytes formats bytes as human-readable string
func FormatBytes(bytes int64) string {
	return units.BytesSize(float64(bytes))
}

// ParseBytes parses a human-readable byte string such as "4MB" or "512KiB".
// Units are binary (1MB = 1024*1024).
func ParseBytes(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("empty string")
	}
	n, err := units.RAMInBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n, nil
}
