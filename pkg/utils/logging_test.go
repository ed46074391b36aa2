package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected LogLevel
		wantErr  bool
	}{
		{
			name:     "debug level",
			input:    "DEBUG",
			expected: DEBUG,
			wantErr:  false,
		},
		{
			name:     "info level",
			input:    "INFO",
			expected: INFO,
			wantErr:  false,
		},
		{
			name:     "warn level",
			input:    "WARN",
			expected: WARN,
			wantErr:  false,
		},
		{
			name:     "warning level",
			input:    "WARNING",
			expected: WARN,
			wantErr:  false,
		},
		{
			name:     "error level",
			input:    "ERROR",
			expected: ERROR,
			wantErr:  false,
		},
		{
			name:     "case insensitive",
			input:    "debug",
			expected: DEBUG,
			wantErr:  false,
		},
		{
			name:     "invalid level",
			input:    "INVALID",
			expected: INFO,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if result != tt.expected {
				t.Errorf("ParseLogLevel() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := tt.level.String()
			if result != tt.expected {
				t.Errorf("LogLevel.String() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DEBUG, FormatText, &buf)

	logger.Debug("debug message", "component", "executor")
	logger.Info("info message")

	output := buf.String()
	if !strings.Contains(output, "debug message") || !strings.Contains(output, "component=executor") {
		t.Errorf("text output missing debug record: %q", output)
	}
	if !strings.Contains(output, "info message") {
		t.Errorf("text output missing info record: %q", output)
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(INFO, FormatJSON, &buf)

	logger.Info("attempt finished", "status", 503, "attempt", 1)

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("json output is not valid JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "attempt finished" || record["status"] != float64(503) {
		t.Errorf("unexpected record: %v", record)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WARN, FormatText, &buf)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("records below WARN should be filtered: %q", output)
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Errorf("records at or above WARN should be written: %q", output)
	}
}

func TestSetupLogging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storagelite.log")

	logger, closeFn, err := SetupLogging("info", FormatText, FileOptions{Path: path, MaxSize: 1 << 20})
	if err != nil {
		t.Fatalf("SetupLogging() error = %v", err)
	}
	logger.Info("written to file")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file content = %q", data)
	}

	if _, _, err := SetupLogging("loud", FormatText, FileOptions{}); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestDiscardLogger(t *testing.T) {
	logger := DiscardLogger()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("discard logger should not be enabled at any level")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0B"},
		{500, "500B"},
		{1024, "1KiB"},
		{1536, "1.5KiB"},
		{4 * 1024 * 1024, "4MiB"},
		{1024 * 1024 * 1024, "1GiB"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := FormatBytes(tt.input); result != tt.expected {
				t.Errorf("FormatBytes(%d) = %s, want %s", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		{"100", 100, false},
		{"4MB", 4 * 1024 * 1024, false},
		{"4mb", 4 * 1024 * 1024, false},
		{"512k", 512 * 1024, false},
		{"1GiB", 1024 * 1024 * 1024, false},
		{" 8MB ", 8 * 1024 * 1024, false},
		{"", 0, true},
		{"lots", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseBytes(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseBytes(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if result != tt.expected {
				t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, result, tt.expected)
			}
		})
	}
}
