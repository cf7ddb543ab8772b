// Package config provides configuration management for go-http-ramp.
package config

import "time"

// Ramp modes.
const (
	// RampModeAdditive keeps every earlier batch running when a new one starts,
	// so live workers after k steps is the cumulative sum of batch sizes.
	RampModeAdditive = "additive"

	// RampModeReplace retires the previous batch once the next one is spawned,
	// so live workers equals the current batch size.
	RampModeReplace = "replace"
)

// Config holds all configuration options for a load test run.
type Config struct {
	// Target
	TargetURL      string        `json:"target_url" yaml:"target_url"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
	UserAgent      string        `json:"user_agent" yaml:"user_agent"`
	MaxRPS         float64       `json:"max_rps" yaml:"max_rps"` // 0 = unlimited

	// Ramp schedule
	BaseConcurrency      int           `json:"base_concurrency" yaml:"base_concurrency"`
	ConcurrencyIncrement int           `json:"concurrency_increment" yaml:"concurrency_increment"`
	StepInterval         time.Duration `json:"step_interval" yaml:"step_interval"`
	TotalRunDuration     time.Duration `json:"total_run_duration" yaml:"total_run_duration"`
	RampMode             string        `json:"ramp_mode" yaml:"ramp_mode"`
	RampJitter           time.Duration `json:"ramp_jitter" yaml:"ramp_jitter"`
	Linger               time.Duration `json:"linger" yaml:"linger"` // keep workers running after the deadline

	// Exporter
	ExporterAddr string `json:"exporter_addr" yaml:"exporter_addr"`
	ExporterPath string `json:"exporter_path" yaml:"exporter_path"`
	GoCollectors bool   `json:"go_collectors" yaml:"go_collectors"`

	// Observability
	Verbose    bool   `json:"verbose" yaml:"verbose"`
	LogFormat  string `json:"log_format" yaml:"log_format"` // json, text
	LogLevel   string `json:"log_level" yaml:"log_level"`
	TUIEnabled bool   `json:"tui" yaml:"tui"`

	// Diagnostics
	SkipPreflight bool   `json:"skip_preflight" yaml:"skip_preflight"`
	ConfigFile    string `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RequestTimeout: 2 * time.Second,
		UserAgent:      "go-http-ramp/1.0",

		BaseConcurrency:      10,
		ConcurrencyIncrement: 10,
		StepInterval:         60 * time.Second,
		TotalRunDuration:     300 * time.Second,
		RampMode:             RampModeAdditive,

		ExporterAddr: "0.0.0.0:9898",
		ExporterPath: "/metrics",
		GoCollectors: true,

		LogFormat: "json",
		LogLevel:  "info",
	}
}

// ExporterURL returns a human-readable scrape URL for banners and summaries.
func (c *Config) ExporterURL() string {
	return "http://" + c.ExporterAddr + c.ExporterPath
}
