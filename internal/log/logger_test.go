package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"firestige.xyz/scanguard/internal/config"
)

func TestParseLevelValid(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"trace", logrus.TraceLevel},
		{"debug", logrus.DebugLevel},
		{"DEBUG", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := parseLevel(tt.input)
			if err != nil {
				t.Errorf("parseLevel(%q) returned error: %v", tt.input, err)
			}
			if level != tt.expected {
				t.Errorf("parseLevel(%q) = %v, expected %v", tt.input, level, tt.expected)
			}
		})
	}
}

func TestParseLevelInvalid(t *testing.T) {
	for _, input := range []string{"invalid", "fatal", "panic", ""} {
		t.Run(input, func(t *testing.T) {
			if _, err := parseLevel(input); err == nil {
				t.Errorf("parseLevel(%q) should return error, got nil", input)
			}
		})
	}
}

func TestNewTextPattern(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{
		Level:   "info",
		Format:  "text",
		Pattern: "[%level] %msg {%field}\n",
	}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.WithField("rule", "NULL scan").WithField("dst_port", 80).Warn("scan packet dropped")
	l.Debug("hidden")

	got := buf.String()
	want := "[warning] scan packet dropped {dst_port=80,rule=NULL scan}\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{Level: "debug", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.WithError(errors.New("boom")).Debug("extract failed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "extract failed" || entry["level"] != "debug" || entry["error"] != "boom" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNewInvalid(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud", Format: "text"}, &bytes.Buffer{}); err == nil ||
		!strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("Expected invalid log level error, got %v", err)
	}
	if _, err := New(config.LogConfig{Level: "info", Format: "xml"}, &bytes.Buffer{}); err == nil ||
		!strings.Contains(err.Error(), "unsupported log format") {
		t.Errorf("Expected unsupported format error, got %v", err)
	}
}

func TestLevelEnabled(t *testing.T) {
	l, err := New(config.LogConfig{Level: "info", Format: "text"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !l.IsInfoEnabled() || l.IsDebugEnabled() || l.IsTraceEnabled() {
		t.Error("unexpected level flags for info logger")
	}
}

func TestInitWithFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	t.Cleanup(func() { Close() })

	err := Init(config.LogConfig{
		Level:  "debug",
		Format: "text",
		Outputs: config.LogOutputsConfig{
			File: config.FileOutputConfig{
				Enabled: true,
				Path:    logPath,
				Rotation: config.RotationConfig{
					MaxSizeMB:  10,
					MaxBackups: 3,
					MaxAgeDays: 7,
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	GetLogger().WithField("key", "value").Info("test message")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Log file was not created at %s: %v", logPath, err)
	}
	if !strings.Contains(string(data), "test message key=value") {
		t.Errorf("Unexpected log file content: %q", data)
	}
}

func TestInitWithMissingFilePath(t *testing.T) {
	err := Init(config.LogConfig{
		Level:  "info",
		Format: "json",
		Outputs: config.LogOutputsConfig{
			File: config.FileOutputConfig{Enabled: true},
		},
	})
	if err == nil || !strings.Contains(err.Error(), "path") {
		t.Errorf("Expected error about missing path, got: %v", err)
	}
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { SetLevel("info") })

	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel failed: %v", err)
	}
	if !GetLogger().IsDebugEnabled() {
		t.Error("Expected debug enabled after SetLevel")
	}
	if err := SetLevel("verbose"); err == nil {
		t.Error("Expected error for invalid level")
	}
}

func TestMultiWriterKeepsWriting(t *testing.T) {
	var a, b bytes.Buffer
	w := NewMultiWriter().Add(&a).Add(failingWriter{}).Add(&b)

	n, err := w.Write([]byte("x"))
	if n != 1 || err == nil {
		t.Errorf("Write = %d, %v; want 1 and an error", n, err)
	}
	if a.String() != "x" || b.String() != "x" {
		t.Errorf("outputs got %q and %q", a.String(), b.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }
