package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-http-ramp/internal/orchestrator"
)

// tickInterval is how often the dashboard polls its StatusSource.
const tickInterval = 500 * time.Millisecond

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// RefreshMsg requests an immediate status fetch without rescheduling the tick.
type RefreshMsg struct{}

// StatusMsg carries an updated run status.
type StatusMsg struct {
	Status orchestrator.Status
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// StatusSource provides the current run status.
type StatusSource interface {
	Status() orchestrator.Status
}

// Config holds TUI configuration.
type Config struct {
	Source StatusSource

	// OnQuit is called once when the user quits from the keyboard.
	OnQuit func()
}

// Model represents the TUI state.
type Model struct {
	source StatusSource
	onQuit func()

	status     orchestrator.Status
	hasStatus  bool
	lastUpdate time.Time

	// Show the full status code table instead of the top entries.
	detailedView bool

	width  int
	height int

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		source:     cfg.Source,
		onQuit:     cfg.OnQuit,
		lastUpdate: time.Now(),
		width:      80,
		height:     24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	// tea.WithAltScreen() is passed when creating the program.
	return tea.Batch(refreshCmd(), tickCmd())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.quitting && m.onQuit != nil {
				m.onQuit()
			}
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		case "r":
			return m, refreshCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.fetch()
		return m, tickCmd()

	case RefreshMsg:
		m.fetch()
		return m, nil

	case StatusMsg:
		m.status = msg.Status
		m.hasStatus = true
		m.lastUpdate = time.Now()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) fetch() {
	if m.source == nil {
		return
	}
	m.status = m.source.Status()
	m.hasStatus = true
	m.lastUpdate = time.Now()
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// =============================================================================
// Commands
// =============================================================================

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func refreshCmd() tea.Cmd {
	return func() tea.Msg {
		return RefreshMsg{}
	}
}

// SendQuit returns a command that will quit the TUI.
func SendQuit() tea.Cmd {
	return func() tea.Msg {
		return QuitMsg{}
	}
}

// =============================================================================
// Formatting Helpers
// =============================================================================

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// formatNumber formats a large number with K/M suffixes.
func formatNumber(n uint64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(n)/1_000_000)
	case n >= 10_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// formatRate formats a per-second rate.
func formatRate(r float64) string {
	switch {
	case r >= 1000:
		return fmt.Sprintf("%.1fK/s", r/1000)
	case r >= 10:
		return fmt.Sprintf("%.0f/s", r)
	default:
		return fmt.Sprintf("%.1f/s", r)
	}
}

// formatPercent formats a 0..1 ratio as a percentage.
func formatPercent(p float64) string {
	return fmt.Sprintf("%.2f%%", p*100)
}

// formatMs formats a duration in milliseconds.
func formatMs(d time.Duration) string {
	ms := float64(d) / float64(time.Millisecond)
	if ms >= 1000 {
		return fmt.Sprintf("%.2fs", ms/1000)
	}
	return fmt.Sprintf("%.1fms", ms)
}
