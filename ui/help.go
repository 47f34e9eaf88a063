package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

func (c Console) renderHelpModal(width, height int) string {
	kb := c.kb

	green := lipgloss.NewStyle().
		Bold(true).
		Foreground(successColor)

	title := green.Render("Oscar - Keyboard Shortcuts")

	blue := lipgloss.NewStyle().Foreground(accentColor)

	meeting := lipgloss.JoinVertical(
		lipgloss.Left,
		blue.Render("## Meeting"),
		fmt.Sprintf("• %-13s Start meeting", kb.DisplayActionKey("start_meeting")),
		fmt.Sprintf("• %-13s End meeting", kb.DisplayActionKey("end_meeting")),
		"• Enter         Send typed message",
		fmt.Sprintf("• %-13s Clear input", kb.DisplayActionKey("clear_input")),
		fmt.Sprintf("• %-13s Clear transcript", kb.DisplayActionKey("clear_transcript")),
		fmt.Sprintf("• %-13s Search transcript", kb.DisplayActionKey("search_transcript")),
		fmt.Sprintf("• %-13s Toggle this help", kb.DisplayActionKey("help")),
		fmt.Sprintf("• %-13s Quit", kb.DisplayActionKey("quit")),
	)

	canvas := lipgloss.JoinVertical(
		lipgloss.Left,
		blue.Render("## Canvas"),
		fmt.Sprintf("• %-13s Single / quadrant", kb.DisplayActionKey("toggle_view")),
		fmt.Sprintf("• %-13s Next slot", kb.DisplayActionKey("next_slot")),
		fmt.Sprintf("• %-13s Show slot alone", kb.DisplayActionKey("select_slot")),
		fmt.Sprintf("• %-13s Copy first HTML", kb.DisplayActionKey("copy_html")),
		fmt.Sprintf("• %-13s Export to disk", kb.DisplayActionKey("export")),
		fmt.Sprintf("• %-13s Open preview", kb.DisplayActionKey("open_canvas")),
	)

	navigation := lipgloss.JoinVertical(
		lipgloss.Left,
		blue.Render("## Transcript Navigation"),
		fmt.Sprintf("• %-13s Scroll down 1 line", kb.DisplayActionKey("scroll_down")),
		fmt.Sprintf("• %-13s Scroll up 1 line", kb.DisplayActionKey("scroll_up")),
		fmt.Sprintf("• %-13s Full page down", kb.DisplayActionKey("page_down")),
		fmt.Sprintf("• %-13s Full page up", kb.DisplayActionKey("page_up")),
		fmt.Sprintf("• %-13s Jump to top", kb.DisplayActionKey("scroll_to_top")),
		fmt.Sprintf("• %-13s Jump to bottom", kb.DisplayActionKey("scroll_to_bottom")),
	)

	columnStyle := lipgloss.NewStyle().Width(42).PaddingLeft(4)

	twoColumns := lipgloss.JoinHorizontal(
		lipgloss.Top,
		columnStyle.Render(meeting),
		"    ",
		columnStyle.Render(lipgloss.JoinVertical(lipgloss.Left, canvas, "", navigation)),
	)

	footer := lipgloss.NewStyle().
		Foreground(dimColor).
		Render(fmt.Sprintf("Press %s or Esc to close this help", kb.DisplayActionKey("help")))

	content := lipgloss.JoinVertical(
		lipgloss.Center,
		title,
		"",
		twoColumns,
		"",
		footer,
	)

	helpBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("8")).
		Padding(1, 2).
		Width(min(width-4, 100))

	return lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		helpBox.Render(content),
	)
}
