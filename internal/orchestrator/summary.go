package orchestrator

import (
	"fmt"
	"io"
	"time"

	"github.com/randomizedcoder/go-http-ramp/internal/metrics"
)

// Summary is the end-of-run report.
type Summary struct {
	Duration       time.Duration
	Target         string
	Mode           string
	StepsRun       int
	WorkersSpawned int
	WorkersRetired int

	Requests  uint64
	Failed    uint64
	Aborted   uint64
	Timeouts  int64
	Transport int64
	Statuses  map[string]uint64
	Labels    []string

	MeanLatencyMs float64
	Percentiles   metrics.Percentiles
	AvgRPS        float64

	MetricsURL string
}

// GenerateSummary builds the exit summary from the registry and pool.
func (o *Orchestrator) GenerateSummary() Summary {
	s := Summary{
		Duration:       o.Elapsed(),
		Target:         o.config.TargetURL,
		Mode:           o.config.RampMode,
		StepsRun:       int(o.step.Load()) + 1,
		WorkersSpawned: o.pool.StartedCount(),
		WorkersRetired: o.pool.RetiredCount(),
		Percentiles:    o.registry.LatencyPercentiles(),
		MetricsURL:     o.server.URL(),
	}

	snap, err := o.registry.Snapshot()
	if err != nil {
		o.logger.Warn("snapshot_failed", "error", err)
		return s
	}

	s.Requests = snap.RequestsTotal
	s.Failed = snap.FailedRequestsTotal
	s.Aborted = snap.AbortedTotal
	s.Timeouts = snap.Timeouts
	s.Transport = snap.TransportErrors
	s.Statuses = snap.StatusCodeCounts
	s.Labels = snap.StatusLabels()
	s.MeanLatencyMs = snap.MeanLatencyMillis()
	if secs := s.Duration.Seconds(); secs > 0 {
		s.AvgRPS = float64(s.Requests) / secs
	}
	return s
}

// printExitSummary prints a summary of the load test run.
func (o *Orchestrator) printExitSummary() {
	WriteSummary(o.out, o.GenerateSummary())
}

// WriteSummary renders s to w.
func WriteSummary(w io.Writer, s Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintln(w, "                      go-http-ramp Exit Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "Run Duration:           %s\n", formatDuration(s.Duration))
	fmt.Fprintf(w, "Target:                 %s\n", s.Target)
	fmt.Fprintf(w, "Ramp:                   %d steps (%s)\n", s.StepsRun, s.Mode)
	fmt.Fprintf(w, "Workers Spawned:        %d\n", s.WorkersSpawned)
	if s.WorkersRetired > 0 {
		fmt.Fprintf(w, "Workers Retired:        %d\n", s.WorkersRetired)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Requests:")
	fmt.Fprintf(w, "  Total:                %d\n", s.Requests)
	fmt.Fprintf(w, "  Failed:               %d (%.2f%%)\n", s.Failed, percent(s.Failed, s.Requests))
	if s.Failed > 0 {
		fmt.Fprintf(w, "    timeouts:           %d\n", s.Timeouts)
		fmt.Fprintf(w, "    transport:          %d\n", s.Transport)
	}
	if s.Aborted > 0 {
		fmt.Fprintf(w, "  Aborted at shutdown:  %d\n", s.Aborted)
	}
	fmt.Fprintf(w, "  Average Rate:         %.1f req/s\n", s.AvgRPS)
	fmt.Fprintln(w)

	if len(s.Labels) > 0 {
		fmt.Fprintln(w, "Status Codes:")
		for _, label := range s.Labels {
			fmt.Fprintf(w, "  %-6s %d\n", label, s.Statuses[label])
		}
		fmt.Fprintln(w)
	}

	if s.Percentiles.Count > 0 {
		fmt.Fprintln(w, "Latency (successful responses):")
		fmt.Fprintf(w, "  Mean:                 %.2fms\n", s.MeanLatencyMs)
		fmt.Fprintf(w, "  P50 (median):         %s\n", formatLatency(s.Percentiles.P50))
		fmt.Fprintf(w, "  P95:                  %s\n", formatLatency(s.Percentiles.P95))
		fmt.Fprintf(w, "  P99:                  %s\n", formatLatency(s.Percentiles.P99))
		fmt.Fprintf(w, "  Max:                  %s\n", formatLatency(s.Percentiles.Max))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Metrics endpoint was: %s\n", s.MetricsURL)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatLatency formats a latency in milliseconds with two decimals.
func formatLatency(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}

func percent(part, whole uint64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
