package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/randomizedcoder/go-http-ramp/internal/config"
	"github.com/randomizedcoder/go-http-ramp/internal/metrics"
	"github.com/randomizedcoder/go-http-ramp/internal/preflight"
	"github.com/randomizedcoder/go-http-ramp/internal/timeseries"
	"github.com/randomizedcoder/go-http-ramp/internal/worker"
)

// shutdownTimeout bounds the worker drain and exporter shutdown.
const shutdownTimeout = 10 * time.Second

// Callbacks contains optional callbacks for orchestrator events.
type Callbacks struct {
	// OnStateChange is called on every state transition.
	OnStateChange func(oldState, newState State)

	// BeforeSummary is called after shutdown, right before the exit summary
	// is printed. The dashboard uses it to release the terminal.
	BeforeSummary func()
}

// Options holds optional collaborators for New.
type Options struct {
	// Out receives preflight results and the exit summary. Defaults to stdout.
	Out io.Writer

	// Factory overrides how workers are built.
	Factory WorkerFactory

	Callbacks Callbacks

	// SampleInterval is the rate sampling period. Defaults to 1s.
	SampleInterval time.Duration
}

// Orchestrator coordinates all components of a ramped load run.
type Orchestrator struct {
	config    *config.Config
	logger    *slog.Logger
	out       io.Writer
	callbacks Callbacks

	registry *metrics.Registry
	server   *metrics.Server
	schedule *RampSchedule
	pool     *WorkerPool
	rates    *timeseries.RateTracker

	client  *http.Client
	limiter *rate.Limiter

	sampleInterval time.Duration

	state     atomic.Int32
	step      atomic.Int64
	batchSize atomic.Int64

	startMu   sync.RWMutex
	startTime time.Time
	endTime   time.Time
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts Options) *Orchestrator {
	registry := metrics.NewRegistry(metrics.Options{GoCollectors: cfg.GoCollectors})
	schedule := NewRampScheduleFromConfig(cfg)

	o := &Orchestrator{
		config:         cfg,
		logger:         logger,
		out:            opts.Out,
		callbacks:      opts.Callbacks,
		registry:       registry,
		server:         metrics.NewServer(cfg.ExporterAddr, cfg.ExporterPath, registry, logger),
		schedule:       schedule,
		rates:          timeseries.NewRateTracker(),
		client:         worker.NewClient(cfg.RequestTimeout, schedule.PeakWorkers()),
		limiter:        worker.NewLimiter(cfg.MaxRPS),
		sampleInterval: opts.SampleInterval,
	}
	if o.out == nil {
		o.out = os.Stdout
	}
	if o.sampleInterval <= 0 {
		o.sampleInterval = time.Second
	}
	o.step.Store(-1)

	factory := opts.Factory
	if factory == nil {
		factory = o.newWorker
	}

	o.pool = NewWorkerPool(PoolConfig{
		Factory: factory,
		Logger:  logger,
		Metrics: registry,
		Jitter:  schedule.WorkerJitter,
	})

	return o
}

// newWorker is the default WorkerFactory.
func (o *Orchestrator) newWorker(id int) (Runner, error) {
	return worker.New(id, worker.Options{
		TargetURL: o.config.TargetURL,
		UserAgent: o.config.UserAgent,
		Client:    o.client,
		Limiter:   o.limiter,
	}, o.registry, o.logger)
}

// Run executes the load test. It blocks until the deadline (plus linger),
// a signal, or ctx cancellation, then drains workers and prints a summary.
// Only preflight and exporter bind failures are returned as errors.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startMu.Lock()
	o.startTime = time.Now()
	o.startMu.Unlock()

	// Run preflight checks
	if !o.config.SkipPreflight {
		result := preflight.RunAll(o.schedule.PeakWorkers(), o.config.TargetURL)
		preflight.PrintResults(o.out, result)
		if !result.Passed {
			return fmt.Errorf("preflight checks failed (use -skip-preflight to override)")
		}
	}

	// Start metrics server
	if err := o.server.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// Setup signal handling
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	o.logger.Info("ramp_starting",
		"target", o.config.TargetURL,
		"base", o.config.BaseConcurrency,
		"increment", o.config.ConcurrencyIncrement,
		"interval", o.config.StepInterval.String(),
		"duration", o.config.TotalRunDuration.String(),
		"mode", o.config.RampMode,
		"steps", o.schedule.Steps(),
		"peak_workers", o.schedule.PeakWorkers(),
	)

	// The ramp context ends at the deadline; workers outlive it until linger ends.
	rampCtx, stopRamp := context.WithCancel(ctx)
	defer stopRamp()

	rampDone := make(chan struct{})
	go func() {
		defer close(rampDone)
		o.rampUp(rampCtx, ctx)
	}()

	samplerDone := make(chan struct{})
	go func() {
		defer close(samplerDone)
		o.sample(ctx)
	}()

	deadline := time.NewTimer(o.config.TotalRunDuration)
	defer deadline.Stop()

	interrupted := false
	select {
	case sig := <-sigCh:
		o.logger.Info("received_signal", "signal", sig.String())
		interrupted = true
	case <-deadline.C:
		o.logger.Info("duration_elapsed", "duration", o.config.TotalRunDuration.String())
	case <-ctx.Done():
		o.logger.Info("context_cancelled")
		interrupted = true
	}

	// No batch may start past this point.
	stopRamp()
	<-rampDone
	o.setState(StateStopped)

	if !interrupted && o.config.Linger > 0 {
		o.logger.Info("lingering", "linger", o.config.Linger.String(), "active_workers", o.pool.ActiveCount())
		linger := time.NewTimer(o.config.Linger)
		select {
		case sig := <-sigCh:
			o.logger.Info("received_signal", "signal", sig.String())
		case <-linger.C:
		case <-ctx.Done():
			o.logger.Info("context_cancelled")
		}
		linger.Stop()
	}

	// Cancel context to stop all workers
	cancel()
	<-samplerDone

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := o.pool.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("shutdown_incomplete", "error", err)
	}

	if err := o.server.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("metrics_server_shutdown_error", "error", err)
	}

	o.startMu.Lock()
	o.endTime = time.Now()
	o.startMu.Unlock()

	o.recordSample()

	if o.callbacks.BeforeSummary != nil {
		o.callbacks.BeforeSummary()
	}
	o.printExitSummary()

	return nil
}

// rampUp spawns one batch per step until the schedule or rampCtx ends.
// Batches run under workerCtx so they survive the end of the ramp.
func (o *Orchestrator) rampUp(rampCtx, workerCtx context.Context) {
	o.setState(StateRamping)

	steps := o.schedule.Steps()
	for step := 0; step < steps; step++ {
		if err := o.schedule.Wait(rampCtx, o.StartTime(), step); err != nil {
			o.logger.Info("ramp_cancelled", "step", step, "started", o.pool.StartedCount())
			return
		}
		if time.Since(o.StartTime()) >= o.config.TotalRunDuration {
			break
		}

		n := o.schedule.BatchSize(step)
		if err := o.pool.SpawnBatch(workerCtx, step, n); err != nil {
			// Fatal to this batch only.
			o.logger.Error("batch_spawn_failed", "step", step, "batch_size", n, "error", err)
			continue
		}

		o.step.Store(int64(step))
		o.batchSize.Store(int64(n))
		o.registry.RecordStep(step, n)

		if o.config.RampMode == config.RampModeReplace && step > 0 {
			o.pool.RetireBatch(step - 1)
		}

		o.logger.Info("ramp_step",
			"step", step,
			"batch_size", n,
			"active_workers", o.pool.ActiveCount(),
			"spawned_total", o.pool.StartedCount(),
		)
	}

	o.logger.Info("ramp_complete",
		"steps", steps,
		"spawned_total", o.pool.StartedCount(),
		"active_workers", o.pool.ActiveCount(),
	)
}

// sample feeds the rate tracker and elapsed gauge until ctx is done.
func (o *Orchestrator) sample(ctx context.Context) {
	ticker := time.NewTicker(o.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.recordSample()
		}
	}
}

func (o *Orchestrator) recordSample() {
	snap, err := o.registry.Snapshot()
	if err != nil {
		o.logger.Warn("snapshot_failed", "error", err)
		return
	}
	o.rates.Record(int64(snap.RequestsTotal))

	rates := o.rates.Rates()
	for _, w := range timeseries.Windows {
		o.registry.SetRequestRate(timeseries.WindowLabel(w), rates.Window(w))
	}
	o.registry.SetElapsed(o.Elapsed())
}

// setState moves to newState and mirrors it into the registry.
func (o *Orchestrator) setState(newState State) {
	old := State(o.state.Swap(int32(newState)))
	if old == newState {
		return
	}
	o.registry.SetRampState(newState.String())
	o.logger.Debug("ramp_state_changed", "from", old.String(), "to", newState.String())

	if o.callbacks.OnStateChange != nil {
		o.callbacks.OnStateChange(old, newState)
	}
}

// State returns the current ramp state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// StartTime returns when Run began, or the zero time before that.
func (o *Orchestrator) StartTime() time.Time {
	o.startMu.RLock()
	defer o.startMu.RUnlock()
	return o.startTime
}

// Elapsed returns the run time so far, frozen once Run has finished.
func (o *Orchestrator) Elapsed() time.Duration {
	o.startMu.RLock()
	defer o.startMu.RUnlock()
	if o.startTime.IsZero() {
		return 0
	}
	if !o.endTime.IsZero() {
		return o.endTime.Sub(o.startTime)
	}
	return time.Since(o.startTime)
}

// Status is a point-in-time view of the run for the dashboard.
type Status struct {
	State          State
	Step           int
	Steps          int
	BatchSize      int
	ActiveWorkers  int
	StartedWorkers int
	RetiredWorkers int
	Elapsed        time.Duration
	Total          time.Duration
	Target         string
	MetricsURL     string

	Snapshot    *metrics.Snapshot
	Percentiles metrics.Percentiles
	Rates       timeseries.Rates
}

// Status returns the current run status.
func (o *Orchestrator) Status() Status {
	st := Status{
		State:          o.State(),
		Step:           int(o.step.Load()),
		Steps:          o.schedule.Steps(),
		BatchSize:      int(o.batchSize.Load()),
		ActiveWorkers:  o.pool.ActiveCount(),
		StartedWorkers: o.pool.StartedCount(),
		RetiredWorkers: o.pool.RetiredCount(),
		Elapsed:        o.Elapsed(),
		Total:          o.config.TotalRunDuration,
		Target:         o.config.TargetURL,
		MetricsURL:     o.server.URL(),
		Percentiles:    o.registry.LatencyPercentiles(),
		Rates:          o.rates.Rates(),
	}
	if snap, err := o.registry.Snapshot(); err == nil {
		st.Snapshot = snap
	}
	return st
}

// Registry returns the metrics registry for external access.
func (o *Orchestrator) Registry() *metrics.Registry {
	return o.registry
}

// Pool returns the worker pool for external access.
func (o *Orchestrator) Pool() *WorkerPool {
	return o.pool
}

// Schedule returns the ramp schedule.
func (o *Orchestrator) Schedule() *RampSchedule {
	return o.schedule
}

// MetricsURL returns the scrape URL.
func (o *Orchestrator) MetricsURL() string {
	return o.server.URL()
}
