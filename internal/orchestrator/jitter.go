package orchestrator

import (
	"math/rand"
	"time"
)

// JitterSource provides deterministic, per-worker start jitter.
// The same worker ID with the same seed always yields the same offset.
type JitterSource struct {
	seed int64
}

// NewJitterSource creates a jitter source with the given run seed.
func NewJitterSource(seed int64) *JitterSource {
	return &JitterSource{seed: seed}
}

// NewJitterSourceFromTime creates a jitter source seeded from the current time.
func NewJitterSourceFromTime() *JitterSource {
	return NewJitterSource(time.Now().UnixNano())
}

// ForWorker returns a random number generator seeded for one worker.
func (j *JitterSource) ForWorker(workerID int) *rand.Rand {
	return rand.New(rand.NewSource(int64(workerID) ^ j.seed))
}

// WorkerJitter returns a delay within [0, maxJitter) for one worker.
func (j *JitterSource) WorkerJitter(workerID int, maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 {
		return 0
	}
	return time.Duration(j.ForWorker(workerID).Int63n(int64(maxJitter)))
}
