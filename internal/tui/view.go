package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-http-ramp/internal/orchestrator"
	"github.com/randomizedcoder/go-http-ramp/internal/timeseries"
)

// topStatusCodes is how many status labels the compact view shows.
const topStatusCodes = 5

// =============================================================================
// Main View Rendering
// =============================================================================

// renderDashboard renders the main dashboard.
func (m Model) renderDashboard() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderProgress())

	if m.hasStatus && m.status.Snapshot != nil {
		sections = append(sections, m.renderRequestStats())
		sections = append(sections, m.renderStatusCodes())
		sections = append(sections, m.renderLatencyStats())
	} else {
		sections = append(sections, mutedStyle.Render("Waiting for first sample..."))
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	st := m.status
	header := fmt.Sprintf(
		" go-http-ramp │ %s │ Workers: %d │ Elapsed: %s ",
		GetStateLabel(st.State.String()),
		st.ActiveWorkers,
		formatDuration(st.Elapsed),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Progress Section
// =============================================================================

// Progress returns the fraction of the test window that has elapsed.
func (m Model) Progress() float64 {
	if m.status.Total <= 0 {
		return 0
	}
	p := float64(m.status.Elapsed) / float64(m.status.Total)
	if p > 1 {
		p = 1
	}
	return p
}

func (m Model) renderProgress() string {
	st := m.status

	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}
	progressBar := RenderProgressBar(m.Progress(), barWidth)

	var status string
	switch st.State {
	case orchestrator.StateStopped:
		status = statusOK.Render(fmt.Sprintf("✓ Ramp finished, %d workers started", st.StartedWorkers))
	case orchestrator.StateRamping:
		status = statusInfo.Render(fmt.Sprintf("Step %d/%d, batch %d", st.Step+1, st.Steps, st.BatchSize))
	default:
		status = mutedStyle.Render("Starting...")
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Ramp Progress"),
		progressBar,
		status,
		RenderKeyValue("Window", formatDuration(st.Elapsed)+" / "+formatDuration(st.Total)),
		RenderKeyValue("Workers", fmt.Sprintf("%d active, %d started, %d retired",
			st.ActiveWorkers, st.StartedWorkers, st.RetiredWorkers)),
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Request Statistics
// =============================================================================

func (m Model) renderRequestStats() string {
	snap := m.status.Snapshot
	rates := m.status.Rates

	errRate := snap.ErrorRate()
	rows := []string{
		sectionHeaderStyle.Render("Requests"),
		RenderKeyValue("Total", formatNumber(snap.RequestsTotal)),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Failed:"),
			GetErrorRateStyle(errRate).Render(fmt.Sprintf("%s (%s)", formatNumber(snap.FailedRequestsTotal), formatPercent(errRate))),
		),
		RenderKeyValue("Timeouts", formatNumber(uint64(snap.Timeouts))),
		RenderKeyValue("Transport errors", formatNumber(uint64(snap.TransportErrors))),
	}
	if snap.AbortedTotal > 0 {
		rows = append(rows, RenderKeyValue("Aborted", formatNumber(snap.AbortedTotal)))
	}

	var windows []string
	for _, w := range timeseries.Windows {
		windows = append(windows, fmt.Sprintf("%s %s", timeseries.WindowLabel(w), formatRate(rates.Window(w))))
	}
	rows = append(rows,
		RenderKeyValue("Rate", strings.Join(windows, "  ")),
		RenderKeyValue("Overall", formatRate(rates.Overall)),
	)

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Status Codes
// =============================================================================

func (m Model) renderStatusCodes() string {
	snap := m.status.Snapshot
	labels := snap.StatusLabels()

	rows := []string{sectionHeaderStyle.Render("Status Codes")}
	if len(labels) == 0 {
		rows = append(rows, dimStyle.Render("no responses yet"))
		return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	total := snap.StatusTotal()
	shown := labels
	if !m.detailedView && len(shown) > topStatusCodes {
		shown = shown[:topStatusCodes]
	}
	for _, label := range shown {
		count := snap.StatusCodeCounts[label]
		share := 0.0
		if total > 0 {
			share = float64(count) / float64(total)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render(label+":"),
			GetStatusCodeStyle(label).Render(fmt.Sprintf("%-10s", formatNumber(count))),
			mutedStyle.Render(formatPercent(share)),
		))
	}
	if hidden := len(labels) - len(shown); hidden > 0 {
		rows = append(rows, dimStyle.Render(fmt.Sprintf("+%d more (d: details)", hidden)))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Latency Statistics
// =============================================================================

func (m Model) renderLatencyStats() string {
	p := m.status.Percentiles
	snap := m.status.Snapshot

	rows := []string{sectionHeaderStyle.Render("Latency")}
	if p.Count == 0 {
		rows = append(rows, dimStyle.Render("no samples yet"))
	} else {
		rows = append(rows,
			renderLatencyRow("P50", p.P50),
			renderLatencyRow("P95", p.P95),
			renderLatencyRow("P99", p.P99),
			renderLatencyRow("Max", p.Max),
			RenderKeyValue("Mean", fmt.Sprintf("%.1fms", snap.MeanLatencyMillis())),
		)
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func renderLatencyRow(label string, d time.Duration) string {
	style := valueGoodStyle
	switch {
	case d >= time.Second:
		style = valueBadStyle
	case d >= 250*time.Millisecond:
		style = valueWarnStyle
	}
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		style.Render(formatMs(d)),
	)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"d: toggle details",
		"r: refresh",
	}

	target := m.status.Target
	maxLen := m.width - 60
	if len(target) > maxLen && maxLen > 10 {
		target = target[:maxLen-3] + "..."
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	right := dimStyle.Render("Target: " + target)
	if m.status.MetricsURL != "" {
		right += dimStyle.Render(" │ " + m.status.MetricsURL)
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}
