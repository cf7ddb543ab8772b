package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-http-ramp/internal/metrics"
	"github.com/randomizedcoder/go-http-ramp/internal/orchestrator"
	"github.com/randomizedcoder/go-http-ramp/internal/timeseries"
)

type stubSource struct {
	status orchestrator.Status
	calls  int
}

func (s *stubSource) Status() orchestrator.Status {
	s.calls++
	return s.status
}

func sampleStatus() orchestrator.Status {
	return orchestrator.Status{
		State:          orchestrator.StateRamping,
		Step:           2,
		Steps:          6,
		BatchSize:      30,
		ActiveWorkers:  60,
		StartedWorkers: 60,
		Elapsed:        2*time.Minute + 5*time.Second,
		Total:          5 * time.Minute,
		Target:         "http://127.0.0.1:8080/",
		MetricsURL:     "http://127.0.0.1:9898/metrics",
		Snapshot: &metrics.Snapshot{
			RequestsTotal:       1000,
			FailedRequestsTotal: 20,
			StatusCodeCounts:    map[string]uint64{"200": 950, "503": 30, "error": 20},
			LatencySampleCount:  980,
			LatencySumMillis:    9800,
			Timeouts:            15,
			TransportErrors:     5,
		},
		Percentiles: metrics.Percentiles{
			Count: 980,
			P50:   8 * time.Millisecond,
			P95:   40 * time.Millisecond,
			P99:   300 * time.Millisecond,
			Max:   1200 * time.Millisecond,
		},
		Rates: timeseries.Rates{
			Total:     1000,
			PerSecond: map[time.Duration]float64{time.Second: 120, 30 * time.Second: 95.5},
			Overall:   8,
		},
	}
}

func TestNew_Defaults(t *testing.T) {
	m := New(Config{})
	if m.width != 80 || m.height != 24 {
		t.Errorf("size = %dx%d, want 80x24", m.width, m.height)
	}
	if m.hasStatus {
		t.Error("new model should have no status")
	}
	if m.Init() == nil {
		t.Error("Init() should return a command")
	}
}

func TestUpdate_TickFetchesStatus(t *testing.T) {
	src := &stubSource{status: sampleStatus()}
	m := New(Config{Source: src})

	updated, cmd := m.Update(TickMsg(time.Now()))
	got := updated.(Model)

	if src.calls != 1 {
		t.Errorf("source calls = %d, want 1", src.calls)
	}
	if !got.hasStatus || got.status.ActiveWorkers != 60 {
		t.Errorf("status not stored: %+v", got.status)
	}
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
}

func TestUpdate_RefreshDoesNotReschedule(t *testing.T) {
	src := &stubSource{status: sampleStatus()}
	m := New(Config{Source: src})

	updated, cmd := m.Update(RefreshMsg{})
	if cmd != nil {
		t.Error("refresh should not return a command")
	}
	if !updated.(Model).hasStatus || src.calls != 1 {
		t.Error("refresh should fetch status")
	}
}

func TestUpdate_NilSource(t *testing.T) {
	m := New(Config{})
	updated, _ := m.Update(TickMsg(time.Now()))
	if updated.(Model).hasStatus {
		t.Error("tick without a source should not set status")
	}
}

func TestUpdate_StatusMsg(t *testing.T) {
	m := New(Config{})
	updated, _ := m.Update(StatusMsg{Status: sampleStatus()})
	got := updated.(Model)
	if !got.hasStatus || got.status.Steps != 6 {
		t.Errorf("status = %+v", got.status)
	}
}

func TestUpdate_QuitKeys(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.KeyMsg
	}{
		{"q", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}},
		{"esc", tea.KeyMsg{Type: tea.KeyEsc}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quits := 0
			m := New(Config{OnQuit: func() { quits++ }})

			updated, cmd := m.Update(tt.msg)
			got := updated.(Model)
			if !got.quitting {
				t.Error("model should be quitting")
			}
			if cmd == nil {
				t.Fatal("quit key should return tea.Quit")
			}
			if _, ok := cmd().(tea.QuitMsg); !ok {
				t.Error("command should produce tea.QuitMsg")
			}

			// A second quit key must not fire OnQuit again.
			got.Update(tt.msg)
			if quits != 1 {
				t.Errorf("OnQuit calls = %d, want 1", quits)
			}
		})
	}
}

func TestUpdate_QuitMsgSkipsOnQuit(t *testing.T) {
	called := false
	m := New(Config{OnQuit: func() { called = true }})

	updated, cmd := m.Update(QuitMsg{})
	if !updated.(Model).quitting || cmd == nil {
		t.Error("QuitMsg should quit")
	}
	if called {
		t.Error("programmatic quit should not call OnQuit")
	}
}

func TestUpdate_ToggleDetail(t *testing.T) {
	m := New(Config{})
	key := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")}

	updated, _ := m.Update(key)
	if !updated.(Model).detailedView {
		t.Error("d should enable detail view")
	}
	updated, _ = updated.(Model).Update(key)
	if updated.(Model).detailedView {
		t.Error("second d should disable detail view")
	}
}

func TestUpdate_WindowSize(t *testing.T) {
	m := New(Config{})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 132, Height: 40})
	got := updated.(Model)
	if got.width != 132 || got.height != 40 {
		t.Errorf("size = %dx%d, want 132x40", got.width, got.height)
	}
}

func TestSendQuit(t *testing.T) {
	if _, ok := SendQuit()().(QuitMsg); !ok {
		t.Error("SendQuit should produce QuitMsg")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{-time.Second, "0s"},
		{45 * time.Second, "45s"},
		{5*time.Minute + 3*time.Second, "5m 03s"},
		{2*time.Hour + 1*time.Minute, "2h 01m 00s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0"},
		{9999, "9999"},
		{12_500, "12.5K"},
		{3_210_000, "3.21M"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0/s"},
		{2.5, "2.5/s"},
		{95.6, "96/s"},
		{1500, "1.5K/s"},
	}
	for _, tt := range tests {
		if got := formatRate(tt.in); got != tt.want {
			t.Errorf("formatRate(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatMs(t *testing.T) {
	if got := formatMs(8 * time.Millisecond); got != "8.0ms" {
		t.Errorf("formatMs(8ms) = %q", got)
	}
	if got := formatMs(1500 * time.Millisecond); got != "1.50s" {
		t.Errorf("formatMs(1.5s) = %q", got)
	}
	if got := formatPercent(0.02); got != "2.00%" {
		t.Errorf("formatPercent(0.02) = %q", got)
	}
}
