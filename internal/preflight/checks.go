// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// add appends c and folds its outcome into the result.
func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// RunAll executes all preflight checks for a run that peaks at peakWorkers
// concurrent workers against targetURL.
func RunAll(peakWorkers int, targetURL string) *Result {
	result := &Result{
		Checks: make([]Check, 0, 3),
		Passed: true,
	}

	result.add(checkFileDescriptors(peakWorkers))
	result.add(checkEphemeralPorts(peakWorkers))
	result.add(checkTargetResolves(targetURL))

	return result
}

// fdOverhead covers the exporter listener, scrapes, logs and stdio.
const fdOverhead = 64

// checkFileDescriptors verifies RLIMIT_NOFILE covers one socket per worker.
func checkFileDescriptors(workers int) Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to read limit: %v", err),
		}
	}
	return fileDescriptorCheck(workers, int(limit.Cur))
}

func fileDescriptorCheck(workers, actual int) Check {
	// Each worker holds one keep-alive socket, plus a spare while reconnecting
	// after a timeout closes it.
	required := workers*2 + fdOverhead

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d workers)", actual, required, workers),
	}
}

// checkEphemeralPorts checks if enough ephemeral ports are available.
func checkEphemeralPorts(workers int) Check {
	data, err := os.ReadFile("/proc/sys/net/ipv4/ip_local_port_range")
	if err != nil {
		return Check{
			Name:    "ephemeral_ports",
			Passed:  true,
			Warning: true,
			Message: "unable to read port range (non-Linux?)",
		}
	}
	return ephemeralPortCheck(workers, string(data))
}

func ephemeralPortCheck(workers int, portRange string) Check {
	var low, high int
	if n, _ := fmt.Sscanf(strings.TrimSpace(portRange), "%d %d", &low, &high); n != 2 || high < low {
		return Check{
			Name:    "ephemeral_ports",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unparseable port range %q", strings.TrimSpace(portRange)),
		}
	}
	available := high - low

	// Timed-out requests leave sockets in TIME_WAIT; keep headroom.
	recommended := workers * 4

	return Check{
		Name:     "ephemeral_ports",
		Required: recommended,
		Actual:   available,
		Passed:   true, // Don't fail on this
		Warning:  available < recommended,
		Message:  fmt.Sprintf("%d-%d (%d available, recommend %d)", low, high, available, recommended),
	}
}

// checkTargetResolves warns when the target host does not resolve. It never
// fails the run: resolution errors are counted as request failures.
func checkTargetResolves(targetURL string) Check {
	u, err := url.Parse(targetURL)
	if err != nil || u.Hostname() == "" {
		return Check{
			Name:    "target_dns",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("cannot parse host from %q", targetURL),
		}
	}
	host := u.Hostname()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return Check{
			Name:    "target_dns",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s does not resolve: %v", host, err),
		}
	}

	return Check{
		Name:    "target_dns",
		Passed:  true,
		Message: fmt.Sprintf("%s → %s", host, strings.Join(addrs, ", ")),
	}
}

// PrintResults prints the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 65536 (or edit /etc/security/limits.conf), or lower -base/-increment"
	case "ephemeral_ports":
		return "sysctl -w net.ipv4.ip_local_port_range=\"1024 65535\""
	default:
		return "see documentation"
	}
}
