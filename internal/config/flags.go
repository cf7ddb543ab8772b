package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// ErrHelpRequested is returned when -h or -help is passed.
var ErrHelpRequested = errors.New("help requested")

// ParseFlags parses command-line arguments (without the program name) and
// returns a Config. Precedence is defaults < -config YAML file < flags.
// The target URL may be given with -target or as the first positional argument.
func ParseFlags(args []string) (*Config, error) {
	return parseFlags(args, os.Stderr)
}

func parseFlags(args []string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	fs := newFlagSet(cfg, output)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	if fs.NArg() >= 1 {
		cfg.TargetURL = fs.Arg(0)
	}

	if cfg.ConfigFile == "" {
		return cfg, nil
	}

	// Rebuild from defaults + file, then replay only the flags that were
	// explicitly set so they win over file values.
	fileCfg := DefaultConfig()
	if err := LoadFile(cfg.ConfigFile, fileCfg); err != nil {
		return nil, err
	}
	fileCfg.ConfigFile = cfg.ConfigFile

	replay := newFlagSet(fileCfg, io.Discard)
	var replayErr error
	fs.Visit(func(f *flag.Flag) {
		if replayErr != nil || f.Name == "config" {
			return
		}
		if err := replay.Set(f.Name, f.Value.String()); err != nil {
			replayErr = fmt.Errorf("flag -%s: %w", f.Name, err)
		}
	})
	if replayErr != nil {
		return nil, replayErr
	}
	if fs.NArg() >= 1 {
		fileCfg.TargetURL = fs.Arg(0)
	}

	return fileCfg, nil
}

// newFlagSet binds every option to cfg.
func newFlagSet(cfg *Config, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("go-http-ramp", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.Usage = func() {
		fmt.Fprintf(output, `go-http-ramp - continuous HTTP load generator with a stepped concurrency ramp

Usage:
  go-http-ramp [flags] [TARGET_URL]

Target Flags:
`)
		printFlagCategory(fs, output, []string{"target", "timeout", "user-agent", "max-rps"})

		fmt.Fprintf(output, "\nRamp Flags:\n")
		printFlagCategory(fs, output, []string{"base", "increment", "interval", "duration", "ramp-mode", "ramp-jitter", "linger"})

		fmt.Fprintf(output, "\nExporter:\n")
		printFlagCategory(fs, output, []string{"metrics", "metrics-path", "go-metrics"})

		fmt.Fprintf(output, "\nObservability:\n")
		printFlagCategory(fs, output, []string{"v", "log-format", "log-level", "tui"})

		fmt.Fprintf(output, "\nDiagnostics:\n")
		printFlagCategory(fs, output, []string{"config", "skip-preflight"})

		fmt.Fprintf(output, `
Examples:
  # Default schedule: 10 workers, +20 at 1m, +30 at 2m ... for 5 minutes
  go-http-ramp https://api.example.com/v1/search?text=hello

  # Faster ramp, replace each batch instead of stacking them
  go-http-ramp -interval 10s -duration 1m -ramp-mode replace http://localhost:8080/

`)
	}

	// Target
	fs.StringVar(&cfg.TargetURL, "target", cfg.TargetURL, "Target URL for every GET request")
	fs.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "Per-request timeout")
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "HTTP User-Agent header")
	fs.Float64Var(&cfg.MaxRPS, "max-rps", cfg.MaxRPS, "Aggregate request rate cap across all workers (0 = unlimited)")

	// Ramp
	fs.IntVar(&cfg.BaseConcurrency, "base", cfg.BaseConcurrency, "Workers spawned by the first ramp step")
	fs.IntVar(&cfg.ConcurrencyIncrement, "increment", cfg.ConcurrencyIncrement, "Batch size growth per ramp step")
	fs.DurationVar(&cfg.StepInterval, "interval", cfg.StepInterval, "Time between ramp steps")
	fs.DurationVar(&cfg.TotalRunDuration, "duration", cfg.TotalRunDuration, "Overall test window; no batches start after it")
	fs.StringVar(&cfg.RampMode, "ramp-mode", cfg.RampMode, `Step semantics: "additive" or "replace"`)
	fs.DurationVar(&cfg.RampJitter, "ramp-jitter", cfg.RampJitter, "Random start delay per worker within a batch")
	fs.DurationVar(&cfg.Linger, "linger", cfg.Linger, "Keep spawned workers running this long after the deadline")

	// Exporter
	fs.StringVar(&cfg.ExporterAddr, "metrics", cfg.ExporterAddr, "Prometheus exporter listen address")
	fs.StringVar(&cfg.ExporterPath, "metrics-path", cfg.ExporterPath, "Prometheus scrape path")
	fs.BoolVar(&cfg.GoCollectors, "go-metrics", cfg.GoCollectors, "Export Go runtime and process metrics")

	// Observability
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn", "error"`)
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")

	// Diagnostics
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file (flags override file values)")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	return fs
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
			fmt.Fprintf(w, " (default %s)", f.DefValue)
		}
		fmt.Fprintln(w)
	}
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if _, err := strconv.ParseFloat(f.DefValue, 64); err == nil {
		return "number"
	}

	if _, err := time.ParseDuration(f.DefValue); err == nil {
		return "duration"
	}

	return "string"
}
