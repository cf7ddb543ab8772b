// Package timeseries turns a cumulative counter into rolling per-second rates.
//
// The orchestrator samples requests_total once per second; the tracker keeps
// the last 300 samples and derives averages over 1s, 30s, 60s and 300s.
package timeseries

import (
	"strconv"
	"sync"
	"time"
)

const (
	// ringBufferSize is the number of samples to retain (5 minutes at 1 sample/sec)
	ringBufferSize = 300
)

// Windows are the rolling windows reported by Rates, shortest first.
var Windows = []time.Duration{
	1 * time.Second,
	30 * time.Second,
	60 * time.Second,
	300 * time.Second,
}

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

// realClock uses time.Now() for production.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// sample is a cumulative count at a point in time.
type sample struct {
	timestamp time.Time
	total     int64
}

// RateTracker computes rolling rates from samples of a monotonic counter.
//
// Usage:
//
//	tracker := NewRateTracker()
//	// every second:
//	tracker.Record(requestsTotal)
//	rates := tracker.Rates()
type RateTracker struct {
	samples  []sample
	writeIdx int // Next write position once the buffer is full
	latest   sample
	mu       sync.RWMutex

	startTime time.Time
	clock     Clock
}

// Rates holds rolling averages at a point in time.
type Rates struct {
	// Total is the most recently recorded cumulative count.
	Total int64

	// PerSecond maps each window in Windows to its average rate.
	PerSecond map[time.Duration]float64

	// Overall is the average rate since tracking started.
	Overall float64
}

// Window returns the rate for window, or 0 if it is not tracked.
func (r Rates) Window(window time.Duration) float64 {
	return r.PerSecond[window]
}

// NewRateTracker creates a tracker with the real clock.
func NewRateTracker() *RateTracker {
	return NewRateTrackerWithClock(realClock{})
}

// NewRateTrackerWithClock creates a tracker with a custom clock for testing.
func NewRateTrackerWithClock(clock Clock) *RateTracker {
	now := clock.Now()
	start := sample{timestamp: now, total: 0}
	t := &RateTracker{
		samples:   make([]sample, 0, ringBufferSize),
		latest:    start,
		startTime: now,
		clock:     clock,
	}
	t.samples = append(t.samples, start)
	return t
}

// Record stores the counter's current cumulative value. A value lower than
// the previous one is clamped; the source counter never resets mid-run.
func (t *RateTracker) Record(total int64) {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if total < t.latest.total {
		total = t.latest.total
	}
	s := sample{timestamp: now, total: total}
	t.latest = s

	if len(t.samples) < ringBufferSize {
		t.samples = append(t.samples, s)
		return
	}
	t.samples[t.writeIdx] = s
	t.writeIdx = (t.writeIdx + 1) % ringBufferSize
}

// Rates returns rolling averages as of the latest sample.
func (t *RateTracker) Rates() Rates {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r := Rates{
		Total:     t.latest.total,
		PerSecond: make(map[time.Duration]float64, len(Windows)),
	}

	if elapsed := t.latest.timestamp.Sub(t.startTime).Seconds(); elapsed > 0 {
		r.Overall = float64(t.latest.total) / elapsed
	}

	for _, w := range Windows {
		r.PerSecond[w] = t.avgOverWindow(w)
	}
	return r
}

// avgOverWindow returns the average rate between the latest sample and the
// newest sample at least window older. Falls back to the oldest sample.
// Must be called with mu held.
func (t *RateTracker) avgOverWindow(window time.Duration) float64 {
	target := t.latest.timestamp.Add(-window)

	var best *sample
	for i := range t.samples {
		s := &t.samples[i]
		if s.timestamp.After(target) {
			continue
		}
		if best == nil || s.timestamp.After(best.timestamp) {
			best = s
		}
	}
	if best == nil {
		best = t.oldestSample()
	}

	elapsed := t.latest.timestamp.Sub(best.timestamp).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.latest.total-best.total) / elapsed
}

// oldestSample returns the oldest sample in the ring buffer.
// Must be called with mu held.
func (t *RateTracker) oldestSample() *sample {
	if len(t.samples) < ringBufferSize {
		return &t.samples[0]
	}
	return &t.samples[t.writeIdx]
}

// SampleCount returns the number of samples in the ring buffer.
func (t *RateTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}

// WindowLabel renders a window as a metric label in whole seconds, e.g. "300s".
func WindowLabel(w time.Duration) string {
	return strconv.FormatInt(int64(w/time.Second), 10) + "s"
}
