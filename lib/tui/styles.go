package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#A78BFA") // purple
	greenColor   = lipgloss.Color("#10B981")
	amberColor   = lipgloss.Color("#F59E0B")
	redColor     = lipgloss.Color("#F87171")
	blueColor    = lipgloss.Color("#60A5FA")
	orangeColor  = lipgloss.Color("#FB923C")
	mutedColor   = lipgloss.Color("#9CA3AF")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(redColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	qrStyle = lipgloss.NewStyle().
		Foreground(amberColor)

	healthStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)

// statusColor maps a session's wire status to its display color.
func statusColor(status string) lipgloss.Color {
	switch status {
	case "initializing":
		return mutedColor
	case "pairing":
		return amberColor
	case "authenticated":
		return blueColor
	case "ready":
		return greenColor
	case "auth_failure", "error":
		return redColor
	case "disconnected":
		return orangeColor
	default:
		return mutedColor
	}
}

// statusIcon returns an icon for a session's wire status.
func statusIcon(status string) string {
	switch status {
	case "initializing":
		return "○"
	case "pairing":
		return "?"
	case "authenticated":
		return "●"
	case "ready":
		return "✓"
	case "auth_failure", "error":
		return "✗"
	case "disconnected":
		return "⏸"
	default:
		return "●"
	}
}
