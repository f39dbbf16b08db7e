// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"firestige.xyz/scanguard/internal/core"
)

// Interception modes.
const (
	ModeEnforce = "enforce" // netfilter queue, drops are applied
	ModeMonitor = "monitor" // passive capture, verdicts are only recorded
)

// GlobalConfig represents the top-level configuration.
// Maps to the `scanguard:` root key in YAML.
type GlobalConfig struct {
	Node       NodeConfig       `mapstructure:"node"`
	Control    ControlConfig    `mapstructure:"control"`
	Intercept  InterceptConfig  `mapstructure:"intercept"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Resources  ResourcesConfig  `mapstructure:"resources"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
	Events     EventsConfig     `mapstructure:"events"`
}

// ─── Node Identity ───

// NodeConfig contains node identification settings.
type NodeConfig struct {
	Hostname string `mapstructure:"hostname"` // Empty = os.Hostname()
}

// ─── Control Plane ───

// ControlConfig contains local control plane settings.
type ControlConfig struct {
	Socket  string `mapstructure:"socket"`
	PIDFile string `mapstructure:"pid_file"`
}

// ─── Interception ───

// InterceptConfig selects and configures the packet interception hook.
type InterceptConfig struct {
	Mode string `mapstructure:"mode"` // enforce | monitor

	// enforce mode
	QueueNum    uint16 `mapstructure:"queue_num"`
	MaxQueueLen uint32 `mapstructure:"max_queue_len"`
	Table       string `mapstructure:"table"`
	Chain       string `mapstructure:"chain"`
	Bypass      bool   `mapstructure:"bypass"` // accept in kernel when no listener is bound

	// monitor mode
	Interface     string `mapstructure:"interface"` // Empty = all interfaces
	SnapLen       int    `mapstructure:"snap_len"`
	BufferSizeMB  int    `mapstructure:"buffer_size_mb"`
	PollTimeoutMs int    `mapstructure:"poll_timeout_ms"`
}

// ─── Classifier ───

// ClassifierConfig configures the signature table.
type ClassifierConfig struct {
	// Decoded as int so out-of-range values are rejected, not truncated.
	WindowGate []int `mapstructure:"window_gate"`
}

// Windows returns the window gate as TCP window values. Only meaningful
// after ValidateAndApplyDefaults succeeded.
func (c ClassifierConfig) Windows() []uint16 {
	w := make([]uint16, len(c.WindowGate))
	for i, v := range c.WindowGate {
		w[i] = uint16(v)
	}
	return w
}

// ─── Resources ───

// ResourcesConfig contains worker and queue limits for monitor and replay.
type ResourcesConfig struct {
	Workers         int `mapstructure:"workers"` // 0 = auto (GOMAXPROCS)
	ChannelCapacity int `mapstructure:"channel_capacity"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // trace / debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Pattern string           `mapstructure:"pattern"`
	Time    string           `mapstructure:"time"`
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log output destinations besides stdout.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Classification Events ───

// EventsConfig controls how classification events are logged.
type EventsConfig struct {
	LogDrops      bool    `mapstructure:"log_drops"`
	LogBurst      int     `mapstructure:"log_burst"`
	LogRatePerSec float64 `mapstructure:"log_rate_per_sec"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `scanguard: ...`.
type configRoot struct {
	Scanguard GlobalConfig `mapstructure:"scanguard"`
}

// Load loads configuration from file. An empty path yields the defaults.
// Env vars use the SCANGUARD_ prefix (e.g. SCANGUARD_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// key "scanguard.log.level" maps to env "SCANGUARD_LOG_LEVEL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Scanguard

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the validated default configuration.
func Default() *GlobalConfig {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

// setDefaults sets default values for configuration.
// All keys use the "scanguard." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Control defaults
	v.SetDefault("scanguard.control.pid_file", "/var/run/scanguard.pid")
	v.SetDefault("scanguard.control.socket", "/var/run/scanguard.sock")

	// Intercept defaults
	v.SetDefault("scanguard.intercept.mode", ModeEnforce)
	v.SetDefault("scanguard.intercept.queue_num", 0)
	v.SetDefault("scanguard.intercept.max_queue_len", 1024)
	v.SetDefault("scanguard.intercept.table", "mangle")
	v.SetDefault("scanguard.intercept.chain", "POSTROUTING")
	v.SetDefault("scanguard.intercept.bypass", true)
	v.SetDefault("scanguard.intercept.interface", "")
	v.SetDefault("scanguard.intercept.snap_len", 128)
	v.SetDefault("scanguard.intercept.buffer_size_mb", 8)
	v.SetDefault("scanguard.intercept.poll_timeout_ms", 100)

	// Classifier defaults
	v.SetDefault("scanguard.classifier.window_gate", []int{1024, 2048, 3072, 4096})

	// Resource defaults
	v.SetDefault("scanguard.resources.workers", 0)
	v.SetDefault("scanguard.resources.channel_capacity", 4096)

	// Log defaults
	v.SetDefault("scanguard.log.level", "info")
	v.SetDefault("scanguard.log.format", "text")
	v.SetDefault("scanguard.log.pattern", "%time [%level] %msg %field\n")
	v.SetDefault("scanguard.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("scanguard.log.outputs.file.enabled", false)
	v.SetDefault("scanguard.log.outputs.file.path", "/var/log/scanguard/scanguard.log")
	v.SetDefault("scanguard.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("scanguard.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("scanguard.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("scanguard.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("scanguard.metrics.enabled", true)
	v.SetDefault("scanguard.metrics.listen", ":9092")
	v.SetDefault("scanguard.metrics.path", "/metrics")

	// Event defaults
	v.SetDefault("scanguard.events.log_drops", true)
	v.SetDefault("scanguard.events.log_burst", 20)
	v.SetDefault("scanguard.events.log_rate_per_sec", 10)
}

var validLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
// Every validation error wraps core.ErrConfigInvalid.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log ──
	if err := ValidateLog(cfg.Log); err != nil {
		return err
	}

	// ── Intercept ──
	ic := &cfg.Intercept
	switch ic.Mode {
	case ModeEnforce:
		if ic.Table == "" || ic.Chain == "" {
			return invalid("intercept.table and intercept.chain are required in %s mode", ModeEnforce)
		}
		if ic.MaxQueueLen == 0 {
			return invalid("intercept.max_queue_len must be positive")
		}
	case ModeMonitor:
		if ic.SnapLen < 64 {
			return invalid("intercept.snap_len must be at least 64, got %d", ic.SnapLen)
		}
		if ic.BufferSizeMB <= 0 {
			return invalid("intercept.buffer_size_mb must be positive")
		}
		if ic.PollTimeoutMs <= 0 {
			return invalid("intercept.poll_timeout_ms must be positive")
		}
	default:
		return invalid("invalid intercept.mode: %q (must be %s/%s)", ic.Mode, ModeEnforce, ModeMonitor)
	}

	// ── Classifier ──
	if len(cfg.Classifier.WindowGate) == 0 {
		return invalid("classifier.window_gate must not be empty")
	}
	for _, w := range cfg.Classifier.WindowGate {
		if w < 0 || w > math.MaxUint16 {
			return invalid("classifier.window_gate value %d out of range 0..%d", w, math.MaxUint16)
		}
	}

	// ── Resources ──
	if cfg.Resources.Workers < 0 {
		return invalid("resources.workers must not be negative")
	}
	if cfg.Resources.Workers == 0 {
		cfg.Resources.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Resources.ChannelCapacity <= 0 {
		return invalid("resources.channel_capacity must be positive")
	}

	// ── Events ──
	if cfg.Events.LogDrops && (cfg.Events.LogRatePerSec <= 0 || cfg.Events.LogBurst <= 0) {
		return invalid("events.log_rate_per_sec and events.log_burst must be positive when events.log_drops=true")
	}

	// ── Node hostname auto-detect ──
	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}

	return nil
}

// ValidateLog checks the log section; it is also used on reload.
func ValidateLog(lc LogConfig) error {
	if !validLevels[lc.Level] {
		return invalid("invalid log level: %s (must be trace/debug/info/warn/error)", lc.Level)
	}
	if lc.Format != "json" && lc.Format != "text" {
		return invalid("invalid log format: %s (must be json/text)", lc.Format)
	}
	if lc.Outputs.File.Enabled && lc.Outputs.File.Path == "" {
		return invalid("log.outputs.file.path is required when file output is enabled")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrConfigInvalid, fmt.Sprintf(format, args...))
}
