package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/clarabennett2626/logrecorder/internal/capture"
)

// Config represents the complete logrecorder configuration
type Config struct {
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Source  SourceConfig  `mapstructure:"source" yaml:"source"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	TUI     TUIConfig     `mapstructure:"tui" yaml:"tui"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// CaptureConfig bounds and formats a capture session
type CaptureConfig struct {
	// Policy is "bytes" (encode at push time, bound by rendered size) or
	// "count" (keep structured records, bound by number of records)
	Policy string `mapstructure:"policy" yaml:"policy"`
	// Limit is the bound in bytes or records; negative disables eviction
	Limit int64 `mapstructure:"limit" yaml:"limit"`
	// EvictOversized drops a single record larger than Limit instead of keeping it
	EvictOversized bool `mapstructure:"evict_oversized" yaml:"evict_oversized"`
	// Pattern is the layout pattern used to render records
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
	// Charset is the IANA charset of the encoded capture (default: UTF-8)
	Charset string `mapstructure:"charset" yaml:"charset"`
}

// SourceConfig controls the file tailer
type SourceConfig struct {
	// TailLines is how many existing lines to read from each file; 0 reads everything
	TailLines int `mapstructure:"tail_lines" yaml:"tail_lines"`
	// PollIntervalMs is the fallback poll interval for files fsnotify misses
	PollIntervalMs int `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
}

// LogConfig controls logrecorder's own diagnostic log
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error, disabled
	Level string `mapstructure:"level" yaml:"level"`
}

// TUIConfig controls the live capture viewer
type TUIConfig struct {
	// Theme is "dark" or "light"
	Theme string `mapstructure:"theme" yaml:"theme"`
	// TimestampFormat is "relative", "iso" or "local"
	TimestampFormat string `mapstructure:"timestamp_format" yaml:"timestamp_format"`
	// RefreshMs is how often the viewer re-reads the capture
	RefreshMs int `mapstructure:"refresh_ms" yaml:"refresh_ms"`
	// ShowFields shows structured fields next to each message
	ShowFields bool `mapstructure:"show_fields" yaml:"show_fields"`
}

// MetricsConfig controls the prometheus metrics dump
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Default returns the built-in configuration
func Default() *Config {
	rc := capture.DefaultRecorderConfig()
	return &Config{
		Capture: CaptureConfig{
			Policy:  rc.Policy.String(),
			Limit:   rc.Limit,
			Pattern: rc.Pattern,
			Charset: rc.Charset,
		},
		Source: SourceConfig{
			TailLines:      0,
			PollIntervalMs: 1000,
		},
		Log: LogConfig{
			Level: "warn",
		},
		TUI: TUIConfig{
			Theme:           "dark",
			TimestampFormat: "local",
			RefreshMs:       250,
		},
	}
}

// SetDefaults registers every default with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("capture.policy", defaults.Capture.Policy)
	viper.SetDefault("capture.limit", defaults.Capture.Limit)
	viper.SetDefault("capture.evict_oversized", defaults.Capture.EvictOversized)
	viper.SetDefault("capture.pattern", defaults.Capture.Pattern)
	viper.SetDefault("capture.charset", defaults.Capture.Charset)

	viper.SetDefault("source.tail_lines", defaults.Source.TailLines)
	viper.SetDefault("source.poll_interval_ms", defaults.Source.PollIntervalMs)

	viper.SetDefault("log.level", defaults.Log.Level)

	viper.SetDefault("tui.theme", defaults.TUI.Theme)
	viper.SetDefault("tui.timestamp_format", defaults.TUI.TimestampFormat)
	viper.SetDefault("tui.refresh_ms", defaults.TUI.RefreshMs)
	viper.SetDefault("tui.show_fields", defaults.TUI.ShowFields)

	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// YAML renders the configuration as a config file
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// BufferConfig converts the capture settings. Call Validate first.
func (c *CaptureConfig) BufferConfig() capture.BufferConfig {
	policy, _ := capture.ParsePolicy(c.Policy)
	return capture.BufferConfig{Policy: policy, Limit: c.Limit, EvictOversized: c.EvictOversized}
}

// RecorderConfig converts the capture settings for a byte recorder. Call
// Validate first.
func (c *CaptureConfig) RecorderConfig() capture.RecorderConfig {
	bc := c.BufferConfig()
	return capture.RecorderConfig{
		Pattern:        c.Pattern,
		Charset:        c.Charset,
		Limit:          bc.Limit,
		Policy:         bc.Policy,
		EvictOversized: bc.EvictOversized,
	}
}

// PollInterval returns the poll interval as a duration
func (c *SourceConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// RefreshInterval returns the viewer refresh interval as a duration
func (c *TUIConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshMs) * time.Millisecond
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "logrecorder")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".logrecorder"
	}
	return filepath.Join(home, ".config", "logrecorder")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
