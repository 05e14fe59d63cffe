package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultRemoteBaseURL             = "http://localhost:8080"
	defaultLogLevel                  = "info"
	defaultDataDir                   = ".fieldsync"
	defaultMaxRetries                = 5
	defaultBaseDelayMs               = 1000
	defaultMaxDelayMs                = 5 * 60 * 1000
	defaultSyncIntervalMs            = 30 * 1000
	defaultBatchSize                 = 25
	defaultStrongThresholdMbps       = 5.0
	defaultWeakThresholdMbps         = 0.5
	defaultConnectionCheckIntervalMs = 10 * 1000
	defaultProbeTimeoutMs            = 3 * 1000
	defaultRequestTimeoutMs          = 30 * 1000
)

// Config holds every tunable of the sync engine. All values have defaults and
// can be overridden through the environment (FIELDSYNC_* variables) or a .env
// file in the working directory.
type Config struct {
	RemoteBaseURL string `mapstructure:"remote_base_url"`
	LogLevel      string `mapstructure:"log_level"`
	DataPath      string `mapstructure:"data_path"`

	MaxRetries     int `mapstructure:"max_retries"`
	BaseDelayMs    int `mapstructure:"base_delay_ms"`
	MaxDelayMs     int `mapstructure:"max_delay_ms"`
	SyncIntervalMs int `mapstructure:"sync_interval_ms"`
	BatchSize      int `mapstructure:"batch_size"`

	StrongThresholdMbps       float64 `mapstructure:"strong_threshold_mbps"`
	WeakThresholdMbps         float64 `mapstructure:"weak_threshold_mbps"`
	ConnectionCheckIntervalMs int     `mapstructure:"connection_check_interval_ms"`
	ProbeEnabled              bool    `mapstructure:"probe_enabled"`
	ProbeTimeoutMs            int     `mapstructure:"probe_timeout_ms"`

	RequestTimeoutMs int `mapstructure:"request_timeout_ms"`
}

// Load reads configuration from the environment, merging with defaults.
func Load() (*Config, error) {
	// A .env file next to the binary is optional.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("fieldsync")
	v.AutomaticEnv()

	v.SetDefault("remote_base_url", defaultRemoteBaseURL)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("data_path", defaultDataPath())
	v.SetDefault("max_retries", defaultMaxRetries)
	v.SetDefault("base_delay_ms", defaultBaseDelayMs)
	v.SetDefault("max_delay_ms", defaultMaxDelayMs)
	v.SetDefault("sync_interval_ms", defaultSyncIntervalMs)
	v.SetDefault("batch_size", defaultBatchSize)
	v.SetDefault("strong_threshold_mbps", defaultStrongThresholdMbps)
	v.SetDefault("weak_threshold_mbps", defaultWeakThresholdMbps)
	v.SetDefault("connection_check_interval_ms", defaultConnectionCheckIntervalMs)
	v.SetDefault("probe_enabled", true)
	v.SetDefault("probe_timeout_ms", defaultProbeTimeoutMs)
	v.SetDefault("request_timeout_ms", defaultRequestTimeoutMs)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad is Load that terminates the process on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// Validate checks cross-field invariants.
func (c *Config) Validate() error {
	if c.WeakThresholdMbps >= c.StrongThresholdMbps {
		return fmt.Errorf("weak threshold (%.2f) must be below strong threshold (%.2f)",
			c.WeakThresholdMbps, c.StrongThresholdMbps)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.BaseDelayMs <= 0 || c.MaxDelayMs < c.BaseDelayMs {
		return fmt.Errorf("invalid backoff delays: base=%dms max=%dms", c.BaseDelayMs, c.MaxDelayMs)
	}
	return nil
}

// BaseDelay returns the backoff base delay as a duration.
func (c *Config) BaseDelay() time.Duration { return time.Duration(c.BaseDelayMs) * time.Millisecond }

// MaxDelay returns the backoff delay cap as a duration.
func (c *Config) MaxDelay() time.Duration { return time.Duration(c.MaxDelayMs) * time.Millisecond }

// SyncInterval returns the periodic sync trigger interval.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMs) * time.Millisecond
}

// ConnectionCheckInterval returns the connectivity poll interval.
func (c *Config) ConnectionCheckInterval() time.Duration {
	return time.Duration(c.ConnectionCheckIntervalMs) * time.Millisecond
}

// ProbeTimeout returns the active probe timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}

// RequestTimeout returns the per-dispatch remote call timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func defaultDataPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(defaultDataDir, "fieldsync.db")
	}
	return filepath.Join(home, defaultDataDir, "fieldsync.db")
}
