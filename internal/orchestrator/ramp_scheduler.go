// Package orchestrator drives a load run: it ramps worker batches on a fixed
// schedule, owns the worker pool and stops everything at the deadline.
package orchestrator

import (
	"context"
	"time"

	"github.com/randomizedcoder/go-http-ramp/internal/config"
)

// RampSchedule is a pure function of elapsed time. Step k starts at
// k*interval and spawns base + k*increment workers.
type RampSchedule struct {
	base      int
	increment int
	interval  time.Duration
	total     time.Duration
	mode      string

	maxJitter time.Duration
	jitter    *JitterSource
}

// NewRampSchedule creates a schedule. mode is config.RampModeAdditive or
// config.RampModeReplace and only affects PeakWorkers.
func NewRampSchedule(base, increment int, interval, total time.Duration, mode string) *RampSchedule {
	return &RampSchedule{
		base:      base,
		increment: increment,
		interval:  interval,
		total:     total,
		mode:      mode,
		jitter:    NewJitterSourceFromTime(),
	}
}

// NewRampScheduleFromConfig builds the schedule for cfg.
func NewRampScheduleFromConfig(cfg *config.Config) *RampSchedule {
	s := NewRampSchedule(cfg.BaseConcurrency, cfg.ConcurrencyIncrement, cfg.StepInterval, cfg.TotalRunDuration, cfg.RampMode)
	s.maxJitter = cfg.RampJitter
	return s
}

// WithJitter sets per-worker start jitter with a fixed seed for reproducibility.
func (s *RampSchedule) WithJitter(maxJitter time.Duration, seed int64) *RampSchedule {
	s.maxJitter = maxJitter
	s.jitter = NewJitterSource(seed)
	return s
}

// BatchSize returns the number of workers spawned at step.
func (s *RampSchedule) BatchSize(step int) int {
	if step < 0 {
		return 0
	}
	return s.base + step*s.increment
}

// StepAt returns the index of the step in effect at elapsed.
func (s *RampSchedule) StepAt(elapsed time.Duration) int {
	if elapsed < 0 || s.interval <= 0 {
		return 0
	}
	return int(elapsed / s.interval)
}

// StartOf returns the offset from the schedule origin at which step begins.
func (s *RampSchedule) StartOf(step int) time.Duration {
	return time.Duration(step) * s.interval
}

// CumulativeSpawned returns the total workers spawned by steps 0..step.
func (s *RampSchedule) CumulativeSpawned(step int) int {
	if step < 0 {
		return 0
	}
	n := step + 1
	return n*s.base + s.increment*step*n/2
}

// StepsWithin returns how many steps start strictly before total.
func (s *RampSchedule) StepsWithin(total time.Duration) int {
	if total <= 0 || s.interval <= 0 {
		return 0
	}
	steps := int(total / s.interval)
	if total%s.interval != 0 {
		steps++
	}
	return steps
}

// Steps returns the number of batches in the configured run.
func (s *RampSchedule) Steps() int {
	return s.StepsWithin(s.total)
}

// LastStep returns the index of the final batch, or -1 if there is none.
func (s *RampSchedule) LastStep() int {
	return s.Steps() - 1
}

// PeakWorkers returns the largest number of simultaneously live workers the
// schedule can produce.
func (s *RampSchedule) PeakWorkers() int {
	last := s.LastStep()
	if last < 0 {
		return 0
	}
	if s.mode == config.RampModeReplace {
		// Old and new batch overlap briefly while the old one drains.
		return s.BatchSize(last) + s.BatchSize(last-1)
	}
	return s.CumulativeSpawned(last)
}

// Wait blocks until step's start time relative to origin.
// Returns nil on schedule, or the context error if cancelled.
func (s *RampSchedule) Wait(ctx context.Context, origin time.Time, step int) error {
	delay := time.Until(origin.Add(s.StartOf(step)))
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WorkerJitter returns the start delay for workerID within its batch.
func (s *RampSchedule) WorkerJitter(workerID int) time.Duration {
	return s.jitter.WorkerJitter(workerID, s.maxJitter)
}

// Interval returns the step interval.
func (s *RampSchedule) Interval() time.Duration {
	return s.interval
}

// Total returns the run duration.
func (s *RampSchedule) Total() time.Duration {
	return s.total
}

// MaxJitter returns the configured maximum jitter.
func (s *RampSchedule) MaxJitter() time.Duration {
	return s.maxJitter
}
