// Package main provides the go-http-ramp CLI entry point.
//
// go-http-ramp is a load generator that drives an HTTP target with
// concurrency that grows on a schedule, and exposes what it observes as
// Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-http-ramp/internal/config"
	"github.com/randomizedcoder/go-http-ramp/internal/logging"
	"github.com/randomizedcoder/go-http-ramp/internal/orchestrator"
	"github.com/randomizedcoder/go-http-ramp/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-http-ramp
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-http-ramp %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.Discard()
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	logger.Info("starting",
		"version", version,
		"target", cfg.TargetURL,
		"base", cfg.BaseConcurrency,
		"increment", cfg.ConcurrencyIncrement,
		"interval", cfg.StepInterval.String(),
		"duration", cfg.TotalRunDuration.String(),
		"exporter", cfg.ExporterURL(),
	)

	if !cfg.TUIEnabled {
		printBanner(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := orchestrator.Options{}
	var orch *orchestrator.Orchestrator

	if cfg.TUIEnabled {
		tuiDone := make(chan struct{})
		var program *tea.Program

		opts.Callbacks.BeforeSummary = func() {
			program.Quit()
			<-tuiDone
		}
		orch = orchestrator.New(cfg, logger, opts)

		program = tea.NewProgram(tui.New(tui.Config{
			Source: orch,
			OnQuit: cancel,
		}), tea.WithAltScreen())

		go func() {
			defer close(tuiDone)
			if _, err := program.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
				cancel()
			}
		}()
	} else {
		orch = orchestrator.New(cfg, logger, opts)
	}

	if err := orch.Run(ctx); err != nil {
		if cfg.TUIEnabled && opts.Callbacks.BeforeSummary != nil {
			opts.Callbacks.BeforeSummary()
		}
		logger.Error("orchestrator_failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                          go-http-ramp                             ║")
	fmt.Println("║        HTTP Load Generation with Ramped Concurrency               ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Target:      %s\n", cfg.TargetURL)
	fmt.Printf("  Ramp:        %d workers, +%d every %s (%s)\n",
		cfg.BaseConcurrency, cfg.ConcurrencyIncrement, cfg.StepInterval, cfg.RampMode)
	fmt.Printf("  Duration:    %s\n", cfg.TotalRunDuration)
	if cfg.Linger > 0 {
		fmt.Printf("  Linger:      %s\n", cfg.Linger)
	}
	if cfg.MaxRPS > 0 {
		fmt.Printf("  Max RPS:     %.0f\n", cfg.MaxRPS)
	}
	fmt.Printf("  Metrics:     %s\n", cfg.ExporterURL())
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}
