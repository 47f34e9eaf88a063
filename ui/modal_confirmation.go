package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type ConfirmationState struct {
	Active  bool
	Title   string
	Message string
	// Action is the keybinding action confirmed by "y"
	Action string
}

func RenderConfirmationModal(state ConfirmationState, width, height int) string {
	return renderModal(state.Title, warningColor, state.Message, FormatFooter("y", "Yes", "n", "No"), width, height)
}

// renderModal draws the borderless three-section modal: title, message and
// footer separated by rules, centered on screen.
func renderModal(title string, titleColor lipgloss.Color, message, footer string, width, height int) string {
	modalWidth := 60
	if width < modalWidth+10 {
		modalWidth = width - 10
	}

	titleSection := lipgloss.NewStyle().
		Bold(true).
		Foreground(titleColor).
		Align(lipgloss.Center).
		Width(modalWidth).
		Render(title)

	var messageLines []string
	messageLines = append(messageLines, strings.Repeat(" ", modalWidth))

	messageStyle := lipgloss.NewStyle().
		Width(modalWidth).
		Align(lipgloss.Center)

	for _, line := range strings.Split(message, "\n") {
		messageLines = append(messageLines, messageStyle.Render(line))
	}

	messageLines = append(messageLines, strings.Repeat(" ", modalWidth))

	messageSection := lipgloss.NewStyle().
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Width(modalWidth).
		Render(strings.Join(messageLines, "\n"))

	footerSection := lipgloss.NewStyle().
		Foreground(dimColor).
		Align(lipgloss.Center).
		Width(modalWidth).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Render(footer)

	content := strings.Join([]string{titleSection, messageSection, footerSection}, "\n")

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}
