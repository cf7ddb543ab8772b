package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or the joined set of every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.TargetURL == "" {
		errs = append(errs, ValidationError{
			Field:   "target_url",
			Message: "target URL is required",
		})
	} else if err := validateURL(cfg.TargetURL); err != nil {
		errs = append(errs, ValidationError{
			Field:   "target_url",
			Message: err.Error(),
		})
	}

	if cfg.RequestTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "request_timeout",
			Message: "must be positive",
		})
	}

	if cfg.MaxRPS < 0 {
		errs = append(errs, ValidationError{
			Field:   "max_rps",
			Message: "must be >= 0 (0 = unlimited)",
		})
	}

	if cfg.BaseConcurrency < 1 {
		errs = append(errs, ValidationError{
			Field:   "base_concurrency",
			Message: "must be at least 1",
		})
	}

	if cfg.ConcurrencyIncrement < 0 {
		errs = append(errs, ValidationError{
			Field:   "concurrency_increment",
			Message: "must be >= 0",
		})
	}

	if cfg.StepInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "step_interval",
			Message: "must be positive",
		})
	}

	if cfg.TotalRunDuration <= 0 {
		errs = append(errs, ValidationError{
			Field:   "total_run_duration",
			Message: "must be positive",
		})
	}

	if cfg.RampMode != RampModeAdditive && cfg.RampMode != RampModeReplace {
		errs = append(errs, ValidationError{
			Field:   "ramp_mode",
			Message: fmt.Sprintf("must be %q or %q (got %q)", RampModeAdditive, RampModeReplace, cfg.RampMode),
		})
	}

	if cfg.RampJitter < 0 {
		errs = append(errs, ValidationError{
			Field:   "ramp_jitter",
			Message: "must be >= 0",
		})
	} else if cfg.StepInterval > 0 && cfg.RampJitter >= cfg.StepInterval {
		errs = append(errs, ValidationError{
			Field:   "ramp_jitter",
			Message: fmt.Sprintf("must be shorter than step_interval (%v)", cfg.StepInterval),
		})
	}

	if cfg.Linger < 0 {
		errs = append(errs, ValidationError{
			Field:   "linger",
			Message: "must be >= 0",
		})
	}

	if _, _, err := net.SplitHostPort(cfg.ExporterAddr); err != nil {
		errs = append(errs, ValidationError{
			Field:   "exporter_addr",
			Message: fmt.Sprintf("must be host:port (got %q)", cfg.ExporterAddr),
		})
	}

	if !strings.HasPrefix(cfg.ExporterPath, "/") || cfg.ExporterPath == "/health" || cfg.ExporterPath == "/healthz" {
		errs = append(errs, ValidationError{
			Field:   "exporter_path",
			Message: fmt.Sprintf("must start with / and not shadow the health routes (got %q)", cfg.ExporterPath),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(cfg.LogLevel)] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be debug, info, warn or error (got %q)", cfg.LogLevel),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateURL checks if the URL is valid and uses http or https.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https (got %q)", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must have a host")
	}

	return nil
}
