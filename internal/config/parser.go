package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns baseline settings used before file and CLI overrides.
func DefaultConfig() Config {
	return Config{
		Monitor: MonitorOptions{
			Interval:          5 * time.Second,
			ProbeDeadline:     3 * time.Second,
			ProbeTimeout:      2 * time.Second,
			RecoveryThreshold: 100,
			AlertCooldown:     1800 * time.Second,
			MaxConcurrency:    0,
			Pinger:            PingerAuto,
		},
		Paths: Paths{
			ListsDir:   "device_lists",
			EventLog:   "unreachable_log.txt",
			LatencyLog: "latency_log.csv",
		},
		Notify: NotifyOptions{
			Desktop:  DesktopOptions{Enabled: true},
			Telegram: TelegramOptions{APIURL: "https://api.telegram.org"},
			Email:    EmailOptions{SMTPPort: 587},
		},
		Log: LogOptions{Level: "info"},
	}
}

// Load reads the YAML config at path and applies CLI overrides.
// An empty path or a missing file yields the defaults.
func Load(path string, overrides CLIOverrides) (*Config, error) {
	cfg := DefaultConfig()
	baseDir := "."

	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
			baseDir = filepath.Dir(path)
		}
	}

	applyCLIOverrides(&cfg, overrides)
	cfg.Metrics.Listen = normalizeListen(cfg.Metrics.Listen)
	cfg.Paths = resolvePaths(baseDir, cfg.Paths)
	cfg.Log.File = resolvePath(baseDir, cfg.Log.File)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option ranges.
func Validate(cfg *Config) error {
	m := cfg.Monitor
	if m.Interval <= 0 {
		return fmt.Errorf("invalid monitor.interval: %s", m.Interval)
	}
	if m.ProbeTimeout <= 0 {
		return fmt.Errorf("invalid monitor.probe_timeout: %s", m.ProbeTimeout)
	}
	if m.ProbeDeadline < m.ProbeTimeout {
		return fmt.Errorf("monitor.probe_deadline (%s) must not be shorter than monitor.probe_timeout (%s)", m.ProbeDeadline, m.ProbeTimeout)
	}
	if m.RecoveryThreshold < 1 {
		return fmt.Errorf("invalid monitor.recovery_threshold: %d", m.RecoveryThreshold)
	}
	if m.AlertCooldown < 0 {
		return fmt.Errorf("invalid monitor.alert_cooldown: %s", m.AlertCooldown)
	}
	if m.MaxConcurrency < 0 {
		return fmt.Errorf("invalid monitor.max_concurrency: %d", m.MaxConcurrency)
	}
	if !m.Pinger.Valid() {
		return fmt.Errorf("invalid monitor.pinger: %q", m.Pinger)
	}
	return nil
}

func applyCLIOverrides(cfg *Config, overrides CLIOverrides) {
	if overrides.Interval != nil {
		cfg.Monitor.Interval = *overrides.Interval
	}
	if overrides.Timeout != nil {
		cfg.Monitor.ProbeTimeout = *overrides.Timeout
		if cfg.Monitor.ProbeDeadline < cfg.Monitor.ProbeTimeout {
			cfg.Monitor.ProbeDeadline = cfg.Monitor.ProbeTimeout + time.Second
		}
	}
	if overrides.MaxConcurrency != nil {
		cfg.Monitor.MaxConcurrency = *overrides.MaxConcurrency
	}
	if overrides.Pinger != nil {
		cfg.Monitor.Pinger = *overrides.Pinger
	}
	if overrides.MetricsListen != nil {
		cfg.Metrics.Listen = *overrides.MetricsListen
	}
	if overrides.UIDisable != nil {
		cfg.UI.Disable = *overrides.UIDisable
	}
	if overrides.LogLevel != nil {
		cfg.Log.Level = *overrides.LogLevel
	}
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

func resolvePaths(baseDir string, paths Paths) Paths {
	resolve := func(p string) string { return resolvePath(baseDir, p) }
	return Paths{
		ListsDir:   resolve(paths.ListsDir),
		EventLog:   resolve(paths.EventLog),
		LatencyLog: resolve(paths.LatencyLog),
		HistoryDB:  resolve(paths.HistoryDB),
	}
}

func normalizeListen(value string) string {
	if isDigits(value) {
		return ":" + value
	}
	return value
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
