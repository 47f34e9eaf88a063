package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"oscar/session"
	"oscar/state"
)

var (
	dimColor       = lipgloss.Color("7")
	accentColor    = lipgloss.Color("12")
	successColor   = lipgloss.Color("10")
	warningColor   = lipgloss.Color("11")
	dangerColor    = lipgloss.Color("9")
	highlightColor = lipgloss.Color("13")

	// Transcript lines spoken or typed by the user
	UserStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)
	// NO .Background() = transparent!

	// Transcript lines from the agent
	AgentStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	DimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	BorderStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	TitleStyle = lipgloss.NewStyle().
			Bold(true)

	StatusStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	HighlightStyle = lipgloss.NewStyle().
			Foreground(highlightColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(dangerColor)

	// Pane frame for transcript, tools and canvas
	PaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor).
			Padding(0, 1)
)

// FormatFooter formats a footer string with alternating keys and descriptions.
// Keys remain default color, descriptions are rendered in accent blue+bold.
// Usage: FormatFooter("Enter", "Send", "Esc", "Close")
// Result: "Enter Send  Esc Close"
func FormatFooter(parts ...string) string {
	descStyle := lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	var result []string
	for i := 0; i < len(parts); i += 2 {
		if i+1 < len(parts) {
			result = append(result, parts[i]+" "+descStyle.Render(parts[i+1]))
		}
	}
	return strings.Join(result, "  ")
}

// statusBadge renders the meeting status for the header
func statusBadge(s session.Status) string {
	switch s {
	case session.StatusConnected:
		return lipgloss.NewStyle().Foreground(successColor).Render("● connected")
	case session.StatusConnecting:
		return lipgloss.NewStyle().Foreground(warningColor).Render("◌ connecting")
	default:
		return DimStyle.Render("○ disconnected")
	}
}

// toolGlyph renders the lifecycle state of a tool call
func toolGlyph(s state.ToolStatus) string {
	switch s {
	case state.StatusSuccess:
		return lipgloss.NewStyle().Foreground(successColor).Render("✓")
	case state.StatusError:
		return ErrorStyle.Render("✗")
	default:
		return lipgloss.NewStyle().Foreground(warningColor).Render("…")
	}
}
