package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-http-ramp/internal/metrics"
	"github.com/randomizedcoder/go-http-ramp/internal/orchestrator"
)

func renderedModel(t *testing.T, st orchestrator.Status) Model {
	t.Helper()
	m := New(Config{Source: &stubSource{status: st}})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 50})
	updated, _ = updated.(Model).Update(RefreshMsg{})
	return updated.(Model)
}

func TestView_WaitingForSample(t *testing.T) {
	view := New(Config{}).View()
	for _, want := range []string{"go-http-ramp", "Ramp Progress", "Waiting for first sample"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestView_Dashboard(t *testing.T) {
	view := renderedModel(t, sampleStatus()).View()

	for _, want := range []string{
		"Ramping",
		"Workers: 60",
		"Step 3/6, batch 30",
		"Requests",
		"1000",
		"Status Codes",
		"200:",
		"503:",
		"error:",
		"Latency",
		"P99:",
		"300.0ms",
		"1.20s",
		"1s 120/s",
		"Target: http://127.0.0.1:8080/",
		"q: quit",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(view, "Aborted") {
		t.Error("aborted row should be hidden when zero")
	}
}

func TestView_StoppedState(t *testing.T) {
	st := sampleStatus()
	st.State = orchestrator.StateStopped
	st.Snapshot.AbortedTotal = 3

	view := renderedModel(t, st).View()
	if !strings.Contains(view, "Ramp finished, 60 workers started") {
		t.Error("stopped view should report the finished ramp")
	}
	if !strings.Contains(view, "Aborted") {
		t.Error("aborted row should show when nonzero")
	}
}

func TestView_NoSamples(t *testing.T) {
	st := sampleStatus()
	st.Snapshot = &metrics.Snapshot{StatusCodeCounts: map[string]uint64{}}
	st.Percentiles = metrics.Percentiles{}

	view := renderedModel(t, st).View()
	if !strings.Contains(view, "no responses yet") {
		t.Error("empty status table should say so")
	}
	if !strings.Contains(view, "no samples yet") {
		t.Error("empty latency section should say so")
	}
}

func TestView_StatusCodeDetailToggle(t *testing.T) {
	st := sampleStatus()
	st.Snapshot.StatusCodeCounts = map[string]uint64{
		"200": 10, "201": 1, "301": 1, "404": 1, "500": 1, "502": 1, "error": 1,
	}

	m := renderedModel(t, st)
	if view := m.View(); !strings.Contains(view, "+2 more") {
		t.Error("compact view should hide extra status codes")
	}

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	view := updated.(Model).View()
	if strings.Contains(view, "more (d: details)") {
		t.Error("detail view should show every status code")
	}
	if !strings.Contains(view, "502:") {
		t.Error("detail view missing 502")
	}
}

func TestView_QuittingIsEmpty(t *testing.T) {
	m := New(Config{})
	updated, _ := m.Update(QuitMsg{})
	if v := updated.(Model).View(); v != "" {
		t.Errorf("quitting view = %q, want empty", v)
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		total   time.Duration
		want    float64
	}{
		{"zero total", time.Second, 0, 0},
		{"half", 30 * time.Second, time.Minute, 0.5},
		{"clamped", 2 * time.Minute, time.Minute, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(Config{})
			m.status = orchestrator.Status{Elapsed: tt.elapsed, Total: tt.total}
			if got := m.Progress(); got != tt.want {
				t.Errorf("Progress() = %v, want %v", got, tt.want)
			}
		})
	}
}
