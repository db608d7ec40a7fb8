package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitLogger_ValidLevels(t *testing.T) {
	tests := []struct {
		name  string
		level string
	}{
		{"debug", "debug"},
		{"info", "info"},
		{"warn", "warn"},
		{"error", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := InitLogger(tt.level)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			logger := GetLogger()
			if logger == nil {
				t.Fatal("GetLogger() returned nil")
			}
		})
	}
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger("invalid")
	if err == nil {
		t.Error("expected error for invalid log level, got nil")
	}
}

func TestGetLogger_BeforeInit(t *testing.T) {
	// globalLoggerをリセット
	globalLogger = nil

	logger := GetLogger()
	if logger == nil {
		t.Error("GetLogger() should return default logger when not initialized")
	}

	// デフォルトロガーが返されることを確認
	if logger != slog.Default() {
		t.Error("GetLogger() should return slog.Default() when not initialized")
	}
}

func TestGetLogger_AfterInit(t *testing.T) {
	err := InitLogger("info")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger := GetLogger()
	if logger == nil {
		t.Error("GetLogger() returned nil after initialization")
	}

	if logger != globalLogger {
		t.Error("GetLogger() should return the initialized logger")
	}
}

func TestInitLogger_Output(t *testing.T) {
	var buf bytes.Buffer
	if err := InitLogger("warn", WithOutput(&buf)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	GetLogger().Info("hidden")
	GetLogger().Warn("shown", "pc", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "pc=3") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestInitLogger_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unitask.log")
	var buf bytes.Buffer
	if err := InitLogger("debug", WithOutput(&buf), WithLogFile(path)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer Close()

	GetLogger().Debug("task saved", "commands", 2)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &record); err != nil {
		t.Fatalf("log file should hold JSON records: %v (%q)", err, data)
	}
	if record["msg"] != "task saved" || record["commands"] != float64(2) {
		t.Errorf("record = %v", record)
	}
	if !strings.Contains(buf.String(), "task saved") {
		t.Error("text output should receive the same record")
	}
}

func TestInitLogger_BadLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "unitask.log")
	if err := InitLogger("info", WithLogFile(path)); err == nil {
		t.Error("expected error for unwritable log file")
	}
}

func TestInitLogger_JournalUnavailableIsNotFatal(t *testing.T) {
	var buf bytes.Buffer
	if err := InitLogger("info", WithOutput(&buf), WithJournal(true)); err != nil {
		t.Fatalf("journal problems must not fail initialization: %v", err)
	}
	if GetLogger() == nil {
		t.Fatal("GetLogger() returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if err != nil || got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.input, got, err)
		}
	}
	if _, err := ParseLevel("DEBUG"); err == nil {
		t.Error("levels are lowercase only")
	}
}

func TestToJournalKey(t *testing.T) {
	if got := toJournalKey("in_subroutine.pc-1"); got != "IN_SUBROUTINE_PC_1" {
		t.Errorf("toJournalKey = %q", got)
	}
}
