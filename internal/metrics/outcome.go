package metrics

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"
)

// ErrorLabel is the status_code_counter label used for attempts that never
// received an HTTP response.
const ErrorLabel = "error"

// FailureKind distinguishes why an attempt got no response. Both kinds are
// folded into the same counters; the kind is kept for logs and the dashboard.
type FailureKind int

const (
	// FailureTransport covers connection refused, DNS, TLS and other
	// transport-level errors.
	FailureTransport FailureKind = iota

	// FailureTimeout means no response arrived within the request timeout.
	FailureTimeout
)

// String returns a human-readable name for the kind.
func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Outcome is the result of one request attempt: either Success or Failure.
type Outcome interface {
	isOutcome()
}

// Success is any attempt that received an HTTP response, whatever the status.
type Success struct {
	StatusCode int
	Latency    time.Duration
}

// Failure is an attempt that produced no HTTP response.
type Failure struct {
	Kind    FailureKind
	Latency time.Duration
	Err     error
}

func (Success) isOutcome() {}
func (Failure) isOutcome() {}

// StatusLabel returns the status code rendered as text, e.g. "200".
func (s Success) StatusLabel() string {
	return strconv.Itoa(s.StatusCode)
}

// LatencyMillis returns the latency in (fractional) milliseconds.
func (s Success) LatencyMillis() float64 {
	return durationMillis(s.Latency)
}

// ClassifyError maps an HTTP client error to a FailureKind.
func ClassifyError(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	return FailureTransport
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
