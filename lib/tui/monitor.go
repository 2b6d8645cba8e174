package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// pollInterval is how often the monitor refreshes from the gateway.
const pollInterval = 2 * time.Second

// Model holds the monitor state
type Model struct {
	client *Client

	stats    *Stats
	fetchErr string

	width    int
	height   int
	ready    bool
	quitting bool
}

// NewModel creates a monitor model polling through the given client.
func NewModel(client *Client) Model {
	return Model{client: client}
}

// Messages

type tickMsg time.Time

type statsMsg struct {
	stats *Stats
}

type errMsg struct {
	err error
}

// Commands

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) fetchStats() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		stats, err := client.FetchStats()
		if err != nil {
			return errMsg{err: err}
		}
		return statsMsg{stats: stats}
	}
}

// Init kicks off the first poll immediately rather than waiting a tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchStats(), tick())
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeypress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchStats(), tick())

	case statsMsg:
		m.stats = msg.stats
		m.fetchErr = ""
		return m, nil

	case errMsg:
		// keep the last good snapshot on screen alongside the failure
		m.fetchErr = msg.err.Error()
		return m, nil
	}
	return m, nil
}

func (m Model) handleKeypress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "r":
		return m, m.fetchStats()
	}
	return m, nil
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("chatgate monitor"))
	b.WriteString("  ")
	b.WriteString(subtitleStyle.Render(m.client.baseURL))
	b.WriteString("\n\n")

	if m.fetchErr != "" {
		b.WriteString(errorStyle.Render("gateway unreachable"))
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render(m.fetchErr))
		b.WriteString("\n")
	}

	if m.stats == nil {
		if m.fetchErr == "" {
			b.WriteString(mutedStyle.Render("connecting..."))
			b.WriteString("\n")
		}
	} else {
		b.WriteString(m.renderSessions())
		b.WriteString("\n")
		b.WriteString(m.renderHealth())
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("q quit · r refresh"))
	return b.String()
}

// renderSessions lists every registered session with its status.
func (m Model) renderSessions() string {
	listing := m.stats.Sessions
	if listing.Total == 0 {
		return mutedStyle.Render("no active sessions") + "\n"
	}

	var b strings.Builder
	for _, s := range listing.ActiveSessions {
		dot := lipgloss.NewStyle().Foreground(statusColor(s.Status)).Render(statusIcon(s.Status))
		b.WriteString(fmt.Sprintf("%s %-24s %-14s", dot, s.ClientID, s.Status))
		if s.HasQR {
			b.WriteString(qrStyle.Render("[qr waiting]"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderHealth summarizes the health endpoint plus poll freshness. A nonzero
// clock offset is worth a glance, so it is appended when present.
func (m Model) renderHealth() string {
	h := m.stats.Health
	uptime := time.Duration(h.Uptime) * time.Second
	line := fmt.Sprintf("%d active · up %s · polled %s",
		h.ActiveClients, uptime, m.stats.FetchedAt.Format("15:04:05"))
	if h.ClockOffsetMs != 0 {
		line += fmt.Sprintf(" · clock %+dms", h.ClockOffsetMs)
	}
	return healthStyle.Render(line)
}

// Run attaches a monitor to the gateway at address and blocks until the user
// quits.
func Run(address string) error {
	p := tea.NewProgram(NewModel(NewClient(address)), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
