// Package worker implements the request loop run by every load worker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/randomizedcoder/go-http-ramp/internal/metrics"
)

// maxDrainBytes bounds how much of a response body is read before closing.
const maxDrainBytes = 1 << 20

// Recorder receives request accounting. *metrics.Registry implements it.
type Recorder interface {
	IncrementRequests()
	IncrementAborted()
	Record(metrics.Outcome)
}

// Options configures a Worker.
type Options struct {
	TargetURL string
	UserAgent string

	// Client is shared by all workers of a run. Its Timeout bounds each request.
	Client *http.Client

	// Limiter, when non-nil, caps the aggregate request rate of all workers
	// sharing it.
	Limiter *rate.Limiter

	// MaxIterations stops the loop after that many attempts. 0 means run
	// until the context is cancelled.
	MaxIterations int64
}

// Worker repeatedly issues one GET to a fixed URL and records each outcome.
type Worker struct {
	id        int
	target    *url.URL
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	maxIter   int64
	recorder  Recorder
	logger    *slog.Logger

	iterations atomic.Int64
}

// New creates a worker. It fails if the target URL cannot be parsed.
func New(id int, opts Options, rec Recorder, logger *slog.Logger) (*Worker, error) {
	if rec == nil {
		return nil, errors.New("worker: recorder is required")
	}
	target, err := url.Parse(opts.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("worker %d: parse target: %w", id, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("worker %d: target %q must be an absolute URL", id, opts.TargetURL)
	}

	client := opts.Client
	if client == nil {
		client = NewClient(2*time.Second, 1)
	}

	return &Worker{
		id:        id,
		target:    target,
		userAgent: opts.UserAgent,
		client:    client,
		limiter:   opts.Limiter,
		maxIter:   opts.MaxIterations,
		recorder:  rec,
		logger:    logger.With("worker_id", id),
	}, nil
}

// ID returns the worker's identifier.
func (w *Worker) ID() int {
	return w.id
}

// Iterations returns the number of attempts made so far.
func (w *Worker) Iterations() int64 {
	return w.iterations.Load()
}

// Run loops until ctx is done or MaxIterations is reached. A request error
// never ends the loop. Returns ctx.Err() on cancellation and nil when the
// iteration limit is reached.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug("worker_started", "target", w.target.Redacted())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.maxIter > 0 && w.iterations.Load() >= w.maxIter {
			w.logger.Debug("worker_iterations_reached", "iterations", w.maxIter)
			return nil
		}

		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// Burst smaller than one token; the limiter can never admit us.
				return fmt.Errorf("worker %d: rate limiter: %w", w.id, err)
			}
		}

		w.iterations.Add(1)
		w.recorder.IncrementRequests()

		outcome := w.do(ctx)
		if outcome == nil {
			// Aborted by our own context, not by the target.
			w.recorder.IncrementAborted()
			return ctx.Err()
		}
		w.recorder.Record(outcome)

		if f, ok := outcome.(metrics.Failure); ok {
			w.logger.Debug("request_failed", "kind", f.Kind.String(), "error", f.Err)
		}
	}
}

// do performs one attempt. A nil Outcome means ctx was cancelled mid-request.
func (w *Worker) do(ctx context.Context) metrics.Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.target.String(), nil)
	if err != nil {
		return metrics.Failure{Kind: metrics.FailureTransport, Err: err}
	}
	if w.userAgent != "" {
		req.Header.Set("User-Agent", w.userAgent)
	}

	start := time.Now()
	resp, err := w.client.Do(req)
	latency := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return metrics.Failure{
			Kind:    metrics.ClassifyError(err),
			Latency: latency,
			Err:     err,
		}
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()

	return metrics.Success{StatusCode: resp.StatusCode, Latency: latency}
}

// NewClient returns an HTTP client for a run. timeout bounds each request and
// idlePerHost sizes the keep-alive pool, normally the peak worker count.
func NewClient(timeout time.Duration, idlePerHost int) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	if idlePerHost < 1 {
		idlePerHost = 1
	}

	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          idlePerHost,
		MaxIdleConnsPerHost:   idlePerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// NewLimiter returns a limiter capping throughput at rps requests/second,
// or nil when rps <= 0.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
