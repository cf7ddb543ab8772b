package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config with pointer fields so that only keys present in
// the file override the current values. Durations are strings ("90s", "5m").
type fileConfig struct {
	TargetURL      *string  `yaml:"target_url"`
	RequestTimeout *string  `yaml:"request_timeout"`
	UserAgent      *string  `yaml:"user_agent"`
	MaxRPS         *float64 `yaml:"max_rps"`

	BaseConcurrency      *int    `yaml:"base_concurrency"`
	ConcurrencyIncrement *int    `yaml:"concurrency_increment"`
	StepInterval         *string `yaml:"step_interval"`
	TotalRunDuration     *string `yaml:"total_run_duration"`
	RampMode             *string `yaml:"ramp_mode"`
	RampJitter           *string `yaml:"ramp_jitter"`
	Linger               *string `yaml:"linger"`

	ExporterAddr *string `yaml:"exporter_addr"`
	ExporterPath *string `yaml:"exporter_path"`
	GoCollectors *bool   `yaml:"go_collectors"`

	Verbose       *bool   `yaml:"verbose"`
	LogFormat     *string `yaml:"log_format"`
	LogLevel      *string `yaml:"log_level"`
	TUIEnabled    *bool   `yaml:"tui"`
	SkipPreflight *bool   `yaml:"skip_preflight"`
}

// LoadFile reads a YAML config file and applies it on top of cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return ApplyYAML(data, cfg)
}

// ApplyYAML decodes YAML and overlays the keys it contains onto cfg.
// Unknown keys are rejected.
func ApplyYAML(data []byte, cfg *Config) error {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		// An empty document decodes to io.EOF; treat it as "no overrides".
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&cfg.TargetURL, fc.TargetURL)
	setString(&cfg.UserAgent, fc.UserAgent)
	setString(&cfg.RampMode, fc.RampMode)
	setString(&cfg.ExporterAddr, fc.ExporterAddr)
	setString(&cfg.ExporterPath, fc.ExporterPath)
	setString(&cfg.LogFormat, fc.LogFormat)
	setString(&cfg.LogLevel, fc.LogLevel)

	if fc.MaxRPS != nil {
		cfg.MaxRPS = *fc.MaxRPS
	}
	if fc.BaseConcurrency != nil {
		cfg.BaseConcurrency = *fc.BaseConcurrency
	}
	if fc.ConcurrencyIncrement != nil {
		cfg.ConcurrencyIncrement = *fc.ConcurrencyIncrement
	}

	setBool(&cfg.GoCollectors, fc.GoCollectors)
	setBool(&cfg.Verbose, fc.Verbose)
	setBool(&cfg.TUIEnabled, fc.TUIEnabled)
	setBool(&cfg.SkipPreflight, fc.SkipPreflight)

	durations := []struct {
		field string
		dst   *time.Duration
		src   *string
	}{
		{"request_timeout", &cfg.RequestTimeout, fc.RequestTimeout},
		{"step_interval", &cfg.StepInterval, fc.StepInterval},
		{"total_run_duration", &cfg.TotalRunDuration, fc.TotalRunDuration},
		{"ramp_jitter", &cfg.RampJitter, fc.RampJitter},
		{"linger", &cfg.Linger, fc.Linger},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return ValidationError{Field: d.field, Message: fmt.Sprintf("invalid duration %q", *d.src)}
		}
		*d.dst = v
	}

	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
