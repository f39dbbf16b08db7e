package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"firestige.xyz/scanguard/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
scanguard:
  node:
    hostname: "edge-1"
  control:
    pid_file: "/tmp/test.pid"
    socket: "/tmp/test.sock"
  intercept:
    mode: "enforce"
    queue_num: 7
    table: "filter"
    chain: "OUTPUT"
    bypass: false
  classifier:
    window_gate: [4096, 1024]
  resources:
    workers: 2
  log:
    level: "debug"
    format: "json"
  metrics:
    enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Node.Hostname != "edge-1" {
		t.Errorf("Expected hostname edge-1, got %s", cfg.Node.Hostname)
	}
	if cfg.Control.PIDFile != "/tmp/test.pid" {
		t.Errorf("Expected PIDFile /tmp/test.pid, got %s", cfg.Control.PIDFile)
	}
	if cfg.Intercept.QueueNum != 7 || cfg.Intercept.Table != "filter" || cfg.Intercept.Chain != "OUTPUT" {
		t.Errorf("Unexpected intercept config: %+v", cfg.Intercept)
	}
	if cfg.Intercept.Bypass {
		t.Error("Expected bypass false")
	}
	if len(cfg.Classifier.WindowGate) != 2 || cfg.Classifier.WindowGate[0] != 4096 {
		t.Errorf("Unexpected window gate: %v", cfg.Classifier.WindowGate)
	}
	if cfg.Resources.Workers != 2 {
		t.Errorf("Expected 2 workers, got %d", cfg.Resources.Workers)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Unexpected log config: %+v", cfg.Log)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "scanguard:\n  node:\n    hostname: h\n"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Intercept.Mode != ModeEnforce {
		t.Errorf("Expected default mode enforce, got %s", cfg.Intercept.Mode)
	}
	if cfg.Intercept.Table != "mangle" || cfg.Intercept.Chain != "POSTROUTING" || !cfg.Intercept.Bypass {
		t.Errorf("Unexpected default intercept config: %+v", cfg.Intercept)
	}
	want := []int{1024, 2048, 3072, 4096}
	if len(cfg.Classifier.WindowGate) != len(want) {
		t.Fatalf("Expected window gate %v, got %v", want, cfg.Classifier.WindowGate)
	}
	for i := range want {
		if cfg.Classifier.WindowGate[i] != want[i] {
			t.Errorf("Expected window gate %v, got %v", want, cfg.Classifier.WindowGate)
		}
	}
	if cfg.Resources.Workers <= 0 {
		t.Errorf("Expected workers auto-detected, got %d", cfg.Resources.Workers)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Unexpected default log config: %+v", cfg.Log)
	}
	if cfg.Metrics.Listen != ":9092" || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Unexpected default metrics config: %+v", cfg.Metrics)
	}
	if !cfg.Events.LogDrops {
		t.Error("Expected drop events logged by default")
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load without file failed: %v", err)
	}
	if cfg.Control.Socket != "/var/run/scanguard.sock" {
		t.Errorf("Unexpected socket %s", cfg.Control.Socket)
	}
	if cfg.Node.Hostname == "" {
		t.Error("Expected hostname auto-detected")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("Expected error for missing file")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SCANGUARD_LOG_LEVEL", "warn")
	t.Setenv("SCANGUARD_INTERCEPT_MODE", "monitor")

	cfg, err := Load(writeConfig(t, "scanguard:\n  log:\n    level: debug\n"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected env override warn, got %s", cfg.Log.Level)
	}
	if cfg.Intercept.Mode != ModeMonitor {
		t.Errorf("Expected env override monitor, got %s", cfg.Intercept.Mode)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"log level", "scanguard:\n  log:\n    level: loud\n"},
		{"log format", "scanguard:\n  log:\n    format: xml\n"},
		{"mode", "scanguard:\n  intercept:\n    mode: inline\n"},
		{"snap len", "scanguard:\n  intercept:\n    mode: monitor\n    snap_len: 10\n"},
		{"workers", "scanguard:\n  resources:\n    workers: -1\n"},
		{"channel", "scanguard:\n  resources:\n    channel_capacity: 0\n"},
		{"window too large", "scanguard:\n  classifier:\n    window_gate: [70000, 1024]\n"},
		{"window negative", "scanguard:\n  classifier:\n    window_gate: [-1]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("Expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestValidateEmptyWindowGate(t *testing.T) {
	cfg := Default()
	cfg.Classifier.WindowGate = nil

	if err := cfg.ValidateAndApplyDefaults(); !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("Expected ErrConfigInvalid, got %v", err)
	}
}

func TestClassifierWindows(t *testing.T) {
	cfg, err := Load(writeConfig(t, "scanguard:\n  classifier:\n    window_gate: [65535, 0, 1024]\n"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	want := []uint16{65535, 0, 1024}
	got := cfg.Classifier.Windows()
	if len(got) != len(want) {
		t.Fatalf("Expected windows %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected windows %v, got %v", want, got)
		}
	}
}

func TestValidateLogFileWithoutPath(t *testing.T) {
	lc := Default().Log
	lc.Outputs.File.Enabled = true
	lc.Outputs.File.Path = ""

	if err := ValidateLog(lc); !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("Expected ErrConfigInvalid, got %v", err)
	}
}
