// Package metrics provides the load generator's metrics registry and its
// Prometheus exporter.
//
// Request metrics keep the names scrapers already know:
//   - requests_total
//   - failed_requests_total
//   - status_code_counter{status}
//   - response_time_milliseconds
//
// Ramp metrics (ramp_*) describe the scheduler and worker pool.
package metrics

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
)

// Metric family names.
const (
	RequestsTotalName       = "requests_total"
	RequestsAbortedName     = "requests_aborted_total"
	FailedRequestsTotalName = "failed_requests_total"
	StatusCodeCounterName   = "status_code_counter"
	ResponseTimeName        = "response_time_milliseconds"
)

// RampStates lists the values of the ramp_state{state} label.
var RampStates = []string{"idle", "ramping", "stopped"}

// LatencyBucketsMillis are the histogram buckets for response_time_milliseconds.
var LatencyBucketsMillis = []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2000, 5000}

// Options configures a Registry.
type Options struct {
	// GoCollectors adds Go runtime and process collectors.
	GoCollectors bool
}

// Registry owns every metric of a run. It is created once and shared by
// reference with all workers, the orchestrator and the exporter. All
// mutating methods are safe for concurrent use without caller-side locking.
type Registry struct {
	reg *prometheus.Registry

	// Request metrics
	requestsTotal       prometheus.Counter
	failedRequestsTotal prometheus.Counter
	abortedRequests     prometheus.Counter
	statusCodes         *prometheus.CounterVec
	responseTime        prometheus.Histogram

	// Ramp metrics
	rampState         *prometheus.GaugeVec
	rampStep          prometheus.Gauge
	rampBatchSize     prometheus.Gauge
	activeWorkers     prometheus.Gauge
	workersSpawned    prometheus.Counter
	workersRetired    prometheus.Counter
	testElapsed       prometheus.Gauge
	requestsPerSecond *prometheus.GaugeVec
	scrapes           *prometheus.CounterVec

	// Failure kinds are not exported as labels; tracked for the summary.
	timeouts        atomic.Int64
	transportErrors atomic.Int64

	// Percentile digest for the summary and dashboard.
	digestMu    sync.Mutex
	digest      *tdigest.TDigest
	digestCount int64
	latencyMax  time.Duration
}

// NewRegistry creates a Registry backed by its own prometheus.Registry.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: RequestsTotalName,
			Help: "Total number of requests made",
		}),
		failedRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: FailedRequestsTotalName,
			Help: "Total number of failed requests",
		}),
		abortedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: RequestsAbortedName,
			Help: "Requests abandoned because their worker was stopped mid-flight",
		}),
		statusCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: StatusCodeCounterName,
			Help: "Count of HTTP status codes",
		}, []string{"status"}),
		responseTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    ResponseTimeName,
			Help:    "Distribution of successful response times in milliseconds",
			Buckets: LatencyBucketsMillis,
		}),

		rampState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ramp_state",
			Help: "Current ramp state (1 for the active state)",
		}, []string{"state"}),
		rampStep: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ramp_step",
			Help: "Index of the most recently started ramp step",
		}),
		rampBatchSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ramp_batch_size",
			Help: "Workers spawned by the most recent ramp step",
		}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ramp_active_workers",
			Help: "Currently running request workers",
		}),
		workersSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ramp_workers_spawned_total",
			Help: "Total request workers spawned",
		}),
		workersRetired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ramp_workers_retired_total",
			Help: "Total request workers stopped by the ramp (replace mode or shutdown)",
		}),
		testElapsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ramp_test_elapsed_seconds",
			Help: "Seconds since the orchestrator started",
		}),
		requestsPerSecond: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "requests_per_second",
			Help: "Rolling request rate over the labelled window",
		}, []string{"window"}),
		scrapes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exporter_scrapes_total",
			Help: "Scrape requests served by the exporter",
		}, []string{"code"}),

		digest: tdigest.NewWithCompression(100),
	}

	r.reg.MustRegister(
		r.requestsTotal,
		r.failedRequestsTotal,
		r.abortedRequests,
		r.statusCodes,
		r.responseTime,
		r.rampState,
		r.rampStep,
		r.rampBatchSize,
		r.activeWorkers,
		r.workersSpawned,
		r.workersRetired,
		r.testElapsed,
		r.requestsPerSecond,
		r.scrapes,
	)

	if opts.GoCollectors {
		r.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	r.SetRampState(RampStates[0])

	return r
}

// Gatherer exposes the underlying registry for the exporter.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// =============================================================================
// Request metrics
// =============================================================================

// IncrementRequests counts one attempt. Called before the outcome is known.
func (r *Registry) IncrementRequests() {
	r.requestsTotal.Inc()
}

// IncrementFailures counts one attempt that produced no response.
func (r *Registry) IncrementFailures() {
	r.failedRequestsTotal.Inc()
}

// IncrementAborted counts one attempt cut short by worker cancellation. Such
// attempts get no status label, so requests_total equals the status sum plus
// this counter.
func (r *Registry) IncrementAborted() {
	r.abortedRequests.Inc()
}

// IncrementStatus counts one attempt under label; children are created lazily.
func (r *Registry) IncrementStatus(label string) {
	r.statusCodes.WithLabelValues(label).Inc()
}

// ObserveLatency records one successful response time in milliseconds.
func (r *Registry) ObserveLatency(ms float64) {
	r.responseTime.Observe(ms)

	d := time.Duration(ms * float64(time.Millisecond))
	r.digestMu.Lock()
	r.digest.Add(ms, 1)
	r.digestCount++
	if d > r.latencyMax {
		r.latencyMax = d
	}
	r.digestMu.Unlock()
}

// Record applies one outcome. Success feeds the status label and histogram;
// Failure feeds failed_requests_total and the "error" label only.
func (r *Registry) Record(o Outcome) {
	switch v := o.(type) {
	case Success:
		r.IncrementStatus(v.StatusLabel())
		r.ObserveLatency(v.LatencyMillis())
	case Failure:
		r.IncrementFailures()
		r.IncrementStatus(ErrorLabel)
		if v.Kind == FailureTimeout {
			r.timeouts.Add(1)
		} else {
			r.transportErrors.Add(1)
		}
	}
}

// =============================================================================
// Ramp metrics
// =============================================================================

// SetRampState marks current as the active ramp state.
func (r *Registry) SetRampState(current string) {
	for _, s := range RampStates {
		v := 0.0
		if s == current {
			v = 1
		}
		r.rampState.WithLabelValues(s).Set(v)
	}
}

// RecordStep records the start of a ramp step.
func (r *Registry) RecordStep(step, batchSize int) {
	r.rampStep.Set(float64(step))
	r.rampBatchSize.Set(float64(batchSize))
}

// WorkersSpawned counts n new workers.
func (r *Registry) WorkersSpawned(n int) {
	r.workersSpawned.Add(float64(n))
}

// WorkersRetired counts n stopped workers.
func (r *Registry) WorkersRetired(n int) {
	r.workersRetired.Add(float64(n))
}

// SetActiveWorkers sets the live worker gauge.
func (r *Registry) SetActiveWorkers(n int) {
	r.activeWorkers.Set(float64(n))
}

// AddActiveWorkers moves the live worker gauge by delta.
func (r *Registry) AddActiveWorkers(delta int) {
	r.activeWorkers.Add(float64(delta))
}

// SetElapsed sets the elapsed test time gauge.
func (r *Registry) SetElapsed(d time.Duration) {
	r.testElapsed.Set(d.Seconds())
}

// SetRequestRate sets the rolling request rate for window (e.g. "30s").
func (r *Registry) SetRequestRate(window string, perSecond float64) {
	r.requestsPerSecond.WithLabelValues(window).Set(perSecond)
}

// =============================================================================
// Snapshot
// =============================================================================

// Bucket is one cumulative histogram bucket.
type Bucket struct {
	UpperBound      float64
	CumulativeCount uint64
}

// Snapshot is a point-in-time view of the request metrics. Counters are read
// one after another, so it is not transactional across metrics.
type Snapshot struct {
	RequestsTotal       uint64
	FailedRequestsTotal uint64
	AbortedTotal        uint64
	StatusCodeCounts    map[string]uint64
	LatencySampleCount  uint64
	LatencySumMillis    float64
	LatencyBuckets      []Bucket

	Timeouts        int64
	TransportErrors int64

	ActiveWorkers  int
	WorkersSpawned uint64
	Step           int
	BatchSize      int
	State          string
}

// Snapshot gathers the registry and extracts the request and ramp metrics.
func (r *Registry) Snapshot() (*Snapshot, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return nil, err
	}

	s := &Snapshot{
		StatusCodeCounts: make(map[string]uint64),
		Timeouts:         r.timeouts.Load(),
		TransportErrors:  r.transportErrors.Load(),
	}

	for _, mf := range families {
		switch mf.GetName() {
		case RequestsTotalName:
			s.RequestsTotal = counterValue(mf)
		case FailedRequestsTotalName:
			s.FailedRequestsTotal = counterValue(mf)
		case RequestsAbortedName:
			s.AbortedTotal = counterValue(mf)
		case StatusCodeCounterName:
			for _, m := range mf.GetMetric() {
				s.StatusCodeCounts[labelValue(m, "status")] = uint64(m.GetCounter().GetValue())
			}
		case ResponseTimeName:
			if len(mf.GetMetric()) == 0 {
				continue
			}
			h := mf.GetMetric()[0].GetHistogram()
			s.LatencySampleCount = h.GetSampleCount()
			s.LatencySumMillis = h.GetSampleSum()
			for _, b := range h.GetBucket() {
				s.LatencyBuckets = append(s.LatencyBuckets, Bucket{
					UpperBound:      b.GetUpperBound(),
					CumulativeCount: b.GetCumulativeCount(),
				})
			}
		case "ramp_active_workers":
			s.ActiveWorkers = int(gaugeValue(mf))
		case "ramp_workers_spawned_total":
			s.WorkersSpawned = counterValue(mf)
		case "ramp_step":
			s.Step = int(gaugeValue(mf))
		case "ramp_batch_size":
			s.BatchSize = int(gaugeValue(mf))
		case "ramp_state":
			for _, m := range mf.GetMetric() {
				if m.GetGauge().GetValue() == 1 {
					s.State = labelValue(m, "state")
				}
			}
		}
	}

	return s, nil
}

// StatusTotal returns the sum of all status_code_counter children.
func (s *Snapshot) StatusTotal() uint64 {
	var total uint64
	for _, v := range s.StatusCodeCounts {
		total += v
	}
	return total
}

// ErrorRate returns failures / requests, or 0 before the first request.
func (s *Snapshot) ErrorRate() float64 {
	if s.RequestsTotal == 0 {
		return 0
	}
	return float64(s.FailedRequestsTotal) / float64(s.RequestsTotal)
}

// MeanLatencyMillis returns the mean successful latency.
func (s *Snapshot) MeanLatencyMillis() float64 {
	if s.LatencySampleCount == 0 {
		return 0
	}
	return s.LatencySumMillis / float64(s.LatencySampleCount)
}

// StatusLabels returns the observed labels in sorted order.
func (s *Snapshot) StatusLabels() []string {
	labels := make([]string, 0, len(s.StatusCodeCounts))
	for l := range s.StatusCodeCounts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// =============================================================================
// Percentiles
// =============================================================================

// Percentiles holds latency percentiles of successful responses.
type Percentiles struct {
	Count int64
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// LatencyPercentiles estimates percentiles from the in-process digest.
func (r *Registry) LatencyPercentiles() Percentiles {
	r.digestMu.Lock()
	defer r.digestMu.Unlock()

	p := Percentiles{Count: r.digestCount, Max: r.latencyMax}
	if r.digestCount == 0 {
		return p
	}
	p.P50 = millisDuration(r.digest.Quantile(0.50))
	p.P95 = millisDuration(r.digest.Quantile(0.95))
	p.P99 = millisDuration(r.digest.Quantile(0.99))
	return p
}

func millisDuration(ms float64) time.Duration {
	if math.IsNaN(ms) || ms < 0 {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func counterValue(mf *dto.MetricFamily) uint64 {
	if len(mf.GetMetric()) == 0 {
		return 0
	}
	return uint64(mf.GetMetric()[0].GetCounter().GetValue())
}

func gaugeValue(mf *dto.MetricFamily) float64 {
	if len(mf.GetMetric()) == 0 {
		return 0
	}
	return mf.GetMetric()[0].GetGauge().GetValue()
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
