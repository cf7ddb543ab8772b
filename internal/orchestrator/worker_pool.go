package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Runner is one load worker. *worker.Worker implements it.
type Runner interface {
	Run(ctx context.Context) error
}

// WorkerFactory builds the worker with the given ID.
type WorkerFactory func(id int) (Runner, error)

// PoolMetrics receives pool accounting. *metrics.Registry implements it.
type PoolMetrics interface {
	WorkersSpawned(n int)
	WorkersRetired(n int)
	AddActiveWorkers(delta int)
}

// PoolCallbacks contains optional callbacks for pool events.
type PoolCallbacks struct {
	// OnWorkerExit is called when a worker's Run returns.
	OnWorkerExit func(workerID, step int, err error)
}

// PoolConfig holds configuration for the WorkerPool.
type PoolConfig struct {
	Factory   WorkerFactory
	Logger    *slog.Logger
	Metrics   PoolMetrics
	Callbacks PoolCallbacks

	// Jitter returns a start delay for a worker. Nil means start immediately.
	Jitter func(workerID int) time.Duration
}

// batch is the set of workers spawned by one ramp step.
type batch struct {
	step    int
	size    int
	cancel  context.CancelFunc
	retired bool
}

// WorkerPool runs worker batches, each under its own cancellable context.
type WorkerPool struct {
	factory   WorkerFactory
	logger    *slog.Logger
	metrics   PoolMetrics
	callbacks PoolCallbacks
	jitter    func(workerID int) time.Duration

	// Batches indexed by step
	batches map[int]*batch
	nextID  int
	mu      sync.Mutex

	// WaitGroup for all worker goroutines
	wg sync.WaitGroup

	// Counters
	activeCount  atomic.Int64
	startedCount atomic.Int64
	retiredCount atomic.Int64
}

// NewWorkerPool creates a new WorkerPool.
func NewWorkerPool(cfg PoolConfig) *WorkerPool {
	return &WorkerPool{
		factory:   cfg.Factory,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		callbacks: cfg.Callbacks,
		jitter:    cfg.Jitter,
		batches:   make(map[int]*batch),
	}
}

// SpawnBatch builds and starts n workers for step under a context derived
// from ctx. If any worker cannot be built, none of the batch is started and
// the error is returned; earlier batches are unaffected.
func (p *WorkerPool) SpawnBatch(ctx context.Context, step, n int) error {
	if n <= 0 {
		return nil
	}

	p.mu.Lock()
	if _, exists := p.batches[step]; exists {
		p.mu.Unlock()
		return fmt.Errorf("step %d already spawned", step)
	}
	firstID := p.nextID
	p.nextID += n
	p.mu.Unlock()

	runners := make([]Runner, 0, n)
	for i := 0; i < n; i++ {
		r, err := p.factory(firstID + i)
		if err != nil {
			return fmt.Errorf("step %d worker %d: %w", step, firstID+i, err)
		}
		runners = append(runners, r)
	}

	bctx, cancel := context.WithCancel(ctx)
	b := &batch{step: step, size: n, cancel: cancel}

	p.mu.Lock()
	p.batches[step] = b
	p.mu.Unlock()

	p.startedCount.Add(int64(n))
	p.activeCount.Add(int64(n))
	if p.metrics != nil {
		p.metrics.WorkersSpawned(n)
		p.metrics.AddActiveWorkers(n)
	}

	for i, r := range runners {
		p.wg.Add(1)
		go p.run(bctx, firstID+i, step, r)
	}

	return nil
}

// run executes one worker and accounts for its exit.
func (p *WorkerPool) run(ctx context.Context, id, step int, r Runner) {
	defer p.wg.Done()
	defer func() {
		p.activeCount.Add(-1)
		if p.metrics != nil {
			p.metrics.AddActiveWorkers(-1)
		}
	}()

	var err error
	if delay := p.startDelay(id); delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-timer.C:
		}
		timer.Stop()
	}

	if err == nil {
		err = r.Run(ctx)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Warn("worker_exited", "worker_id", id, "step", step, "error", err)
	} else {
		p.logger.Debug("worker_exited", "worker_id", id, "step", step)
	}

	if p.callbacks.OnWorkerExit != nil {
		p.callbacks.OnWorkerExit(id, step, err)
	}
}

func (p *WorkerPool) startDelay(id int) time.Duration {
	if p.jitter == nil {
		return 0
	}
	return p.jitter(id)
}

// RetireBatch cancels the workers of step and returns how many were stopped.
// It does not wait for them to exit.
func (p *WorkerPool) RetireBatch(step int) int {
	p.mu.Lock()
	b, ok := p.batches[step]
	if !ok || b.retired {
		p.mu.Unlock()
		return 0
	}
	b.retired = true
	p.mu.Unlock()

	b.cancel()
	p.retiredCount.Add(int64(b.size))
	if p.metrics != nil {
		p.metrics.WorkersRetired(b.size)
	}

	p.logger.Debug("batch_retired", "step", step, "workers", b.size)
	return b.size
}

// StopAll cancels every live batch and returns the number of workers stopped.
func (p *WorkerPool) StopAll() int {
	stopped := 0
	for _, step := range p.Steps() {
		stopped += p.RetireBatch(step)
	}
	return stopped
}

// Shutdown stops all batches and waits for their workers to exit or ctx to
// expire.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutdown_initiated", "active_workers", p.ActiveCount())

	p.StopAll()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("all_workers_stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn("shutdown_timeout", "active_workers", p.ActiveCount())
		return ctx.Err()
	}
}

// Steps returns the steps with a live (not retired) batch, in order.
func (p *WorkerPool) Steps() []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	steps := make([]int, 0, len(p.batches))
	for step, b := range p.batches {
		if !b.retired {
			steps = append(steps, step)
		}
	}
	sort.Ints(steps)
	return steps
}

// ActiveCount returns the number of workers whose Run has not returned.
func (p *WorkerPool) ActiveCount() int {
	return int(p.activeCount.Load())
}

// StartedCount returns the total number of workers ever spawned.
func (p *WorkerPool) StartedCount() int {
	return int(p.startedCount.Load())
}

// RetiredCount returns the number of workers stopped by RetireBatch.
func (p *WorkerPool) RetiredCount() int {
	return int(p.retiredCount.Load())
}
