package timeseries

import (
	"math"
	"sync"
	"testing"
	"time"
)

// mockClock provides deterministic time for testing.
type mockClock struct {
	mu   sync.Mutex
	time time.Time
}

func newMockClock(t time.Time) *mockClock {
	return &mockClock{time: t}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = c.time.Add(d)
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRateTracker_Empty(t *testing.T) {
	clock := newMockClock(time.Unix(1000, 0))
	tr := NewRateTrackerWithClock(clock)

	r := tr.Rates()
	if r.Total != 0 || r.Overall != 0 {
		t.Errorf("empty tracker Total=%d Overall=%v, want 0", r.Total, r.Overall)
	}
	for _, w := range Windows {
		if r.Window(w) != 0 {
			t.Errorf("empty tracker %v rate = %v, want 0", w, r.Window(w))
		}
	}
	if tr.SampleCount() != 1 {
		t.Errorf("SampleCount() = %d, want 1 (initial sample)", tr.SampleCount())
	}
}

// TestRateTracker_SteadyRate feeds a constant 100 req/s for two minutes.
func TestRateTracker_SteadyRate(t *testing.T) {
	clock := newMockClock(time.Unix(1000, 0))
	tr := NewRateTrackerWithClock(clock)

	var total int64
	for i := 0; i < 120; i++ {
		clock.Advance(time.Second)
		total += 100
		tr.Record(total)
	}

	r := tr.Rates()
	if r.Total != 12000 {
		t.Errorf("Total = %d, want 12000", r.Total)
	}
	tests := []struct {
		window time.Duration
		want   float64
	}{
		{time.Second, 100},
		{30 * time.Second, 100},
		{60 * time.Second, 100},
		{300 * time.Second, 100}, // falls back to the oldest sample
	}
	for _, tt := range tests {
		if got := r.Window(tt.window); !approx(got, tt.want) {
			t.Errorf("rate over %v = %v, want %v", tt.window, got, tt.want)
		}
	}
	if !approx(r.Overall, 100) {
		t.Errorf("Overall = %v, want 100", r.Overall)
	}
}

// TestRateTracker_RampingRate checks the short window follows the latest step.
func TestRateTracker_RampingRate(t *testing.T) {
	clock := newMockClock(time.Unix(1000, 0))
	tr := NewRateTrackerWithClock(clock)

	var total int64
	// 60s at 10/s, then 60s at 40/s
	for i := 0; i < 60; i++ {
		clock.Advance(time.Second)
		total += 10
		tr.Record(total)
	}
	for i := 0; i < 60; i++ {
		clock.Advance(time.Second)
		total += 40
		tr.Record(total)
	}

	r := tr.Rates()
	if got := r.Window(time.Second); !approx(got, 40) {
		t.Errorf("1s rate = %v, want 40", got)
	}
	if got := r.Window(30 * time.Second); !approx(got, 40) {
		t.Errorf("30s rate = %v, want 40", got)
	}
	if got := r.Window(60 * time.Second); !approx(got, 40) {
		t.Errorf("60s rate = %v, want 40", got)
	}
	if got := r.Window(300 * time.Second); !approx(got, 25) {
		t.Errorf("300s rate = %v, want 25", got)
	}
}

func TestRateTracker_RingBufferWraps(t *testing.T) {
	clock := newMockClock(time.Unix(1000, 0))
	tr := NewRateTrackerWithClock(clock)

	var total int64
	for i := 0; i < ringBufferSize+50; i++ {
		clock.Advance(time.Second)
		total += 5
		tr.Record(total)
	}

	if tr.SampleCount() != ringBufferSize {
		t.Errorf("SampleCount() = %d, want %d", tr.SampleCount(), ringBufferSize)
	}
	r := tr.Rates()
	// Oldest retained sample is 299s before the latest.
	if got := r.Window(300 * time.Second); !approx(got, 5) {
		t.Errorf("300s rate after wrap = %v, want 5", got)
	}
}

func TestRateTracker_DecreaseClamped(t *testing.T) {
	clock := newMockClock(time.Unix(1000, 0))
	tr := NewRateTrackerWithClock(clock)

	clock.Advance(time.Second)
	tr.Record(50)
	clock.Advance(time.Second)
	tr.Record(20)

	r := tr.Rates()
	if r.Total != 50 {
		t.Errorf("Total = %d, want 50", r.Total)
	}
	if got := r.Window(time.Second); got != 0 {
		t.Errorf("1s rate = %v, want 0", got)
	}
}

func TestRateTracker_ConcurrentAccess(t *testing.T) {
	tr := NewRateTracker()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(base int64) {
			defer wg.Done()
			for j := int64(0); j < 500; j++ {
				tr.Record(base + j)
				_ = tr.Rates()
			}
		}(int64(i * 1000))
	}
	wg.Wait()

	if tr.SampleCount() > ringBufferSize {
		t.Errorf("SampleCount() = %d exceeds ring size", tr.SampleCount())
	}
}

func TestWindowLabel(t *testing.T) {
	tests := map[time.Duration]string{
		time.Second:       "1s",
		30 * time.Second:  "30s",
		300 * time.Second: "300s",
	}
	for w, want := range tests {
		if got := WindowLabel(w); got != want {
			t.Errorf("WindowLabel(%v) = %q, want %q", w, got, want)
		}
	}
}
