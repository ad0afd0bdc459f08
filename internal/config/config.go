// Package config provides configuration loading for sitewatch.
// Sources, in priority order: defaults < config file < environment
// variables. Configuration loading itself is treated as an external
// collaborator by spec.md §1 — this package performs only structural
// decoding plus the numeric clamps the spec already requires, not general
// request validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in spec.md §6.
type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Probe     ProbeConfig     `yaml:"probe"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Debug     DebugConfig     `yaml:"debug"`
	SLA       SLAConfig       `yaml:"sla"`
	Browser   BrowserConfig   `yaml:"browser"`

	// DataDir holds the SQLite database file and is not part of spec.md's
	// named options, but every process needs somewhere to put the store.
	DataDir    string `yaml:"data_dir"`
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	// OTLPEndpoint, when set, enables trace export (internal/telemetry).
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
}

type SchedulerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Timezone     string `yaml:"timezone"`
	GraceSeconds int    `yaml:"grace_seconds"`
}

type ProbeConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	Retries        int `yaml:"retries"`
}

type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	CooldownSeconds  int `yaml:"cooldown_seconds"`
}

type DebugConfig struct {
	FlushIntervalMs       int `yaml:"flush_interval_ms"`
	MaxDurationSeconds    int `yaml:"max_duration_seconds"`
	BodyByteLimit         int `yaml:"body_byte_limit"`
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions"`
}

type SLAConfig struct {
	CacheTTLSeconds int  `yaml:"cache_ttl_seconds"`
	CacheEnabled    bool `yaml:"cache_enabled"`
}

type BrowserConfig struct {
	Kind           string `yaml:"kind"`
	Headless       bool   `yaml:"headless"`
	ExecutablePath string `yaml:"executable_path,omitempty"`
}

// Default returns configuration with the defaults named in spec.md §6.
func Default() Config {
	return Config{
		Scheduler: SchedulerConfig{
			Enabled:      true,
			Timezone:     "UTC",
			GraceSeconds: 30,
		},
		Probe: ProbeConfig{
			TimeoutSeconds: 30,
			Retries:        2,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			CooldownSeconds:  300,
		},
		Debug: DebugConfig{
			FlushIntervalMs:       1000,
			MaxDurationSeconds:    3600,
			BodyByteLimit:         10240,
			MaxConcurrentSessions: 10,
		},
		SLA: SLAConfig{
			CacheTTLSeconds: 300,
			CacheEnabled:    true,
		},
		Browser: BrowserConfig{
			Kind:     "chromium",
			Headless: true,
		},
		DataDir:    "./data",
		ListenAddr: ":8090",
		LogLevel:   "info",
	}
}

// Load reads configuration from an optional YAML file, then overlays
// environment variables, matching the defaults-file-env precedence of the
// teacher's internal/controlplane/config.Load (there JSON; here YAML).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	applyEnv(&cfg)
	clamp(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SITEWATCH_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SITEWATCH_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SITEWATCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SITEWATCH_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := os.Getenv("SITEWATCH_SCHEDULER_ENABLED"); v != "" {
		cfg.Scheduler.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SITEWATCH_BREAKER_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Breaker.FailureThreshold = n
		}
	}
	if v := os.Getenv("SITEWATCH_BREAKER_COOLDOWN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Breaker.CooldownSeconds = n
		}
	}
}

// clamp restores a usable value for the debug duration cap and the probe
// timeout when they are unset or non-positive, and floors the scheduler
// grace period at zero, independent of whichever source set the value.
// Target interval bounds are not checked here; internal/service validates
// them.
func clamp(cfg *Config) {
	if cfg.Debug.MaxDurationSeconds <= 0 {
		cfg.Debug.MaxDurationSeconds = 3600
	}
	if cfg.Probe.TimeoutSeconds <= 0 {
		cfg.Probe.TimeoutSeconds = 30
	}
	if cfg.Scheduler.GraceSeconds < 0 {
		cfg.Scheduler.GraceSeconds = 0
	}
}

// ProbeTimeout returns the probe timeout as a time.Duration.
func (c ProbeConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// FlushInterval returns the debug flush interval as a time.Duration.
func (c DebugConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

// CooldownDuration returns the breaker cooldown as a time.Duration.
func (c BreakerConfig) CooldownDuration() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// CacheTTL returns the SLA cache TTL as a time.Duration.
func (c SLAConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}
