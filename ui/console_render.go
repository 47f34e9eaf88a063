package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"oscar/generation"
	"oscar/state"
)

const (
	headerHeight = 1
	footerHeight = 1
	inputHeight  = 3
	minWidth     = 60
	minHeight    = 16
)

func (c Console) View() string {
	if c.quitting {
		return ""
	}
	if c.width == 0 {
		return "Loading..."
	}
	if c.width < minWidth || c.height < minHeight {
		return "Terminal too small"
	}

	switch {
	case c.err != nil:
		return renderErrorModal(c.err, c.width, c.height)
	case c.confirm.Active:
		return RenderConfirmationModal(c.confirm, c.width, c.height)
	case c.showHelp:
		return c.renderHelpModal(c.width, c.height)
	case c.search.active:
		return c.renderSearch(c.width, c.height)
	}

	leftWidth, rightWidth := c.columns()
	body := c.bodyHeight()
	toolsHeight := body / 2
	canvasHeight := body - toolsHeight

	transcript := PaneStyle.
		Width(leftWidth - 2).
		Height(body - 2).
		Render(TitleStyle.Render("Transcript") + "\n" + c.viewport.View())

	right := lipgloss.JoinVertical(lipgloss.Left,
		PaneStyle.Width(rightWidth-2).Height(toolsHeight-2).Render(c.renderTools(rightWidth-4, toolsHeight-3)),
		PaneStyle.Width(rightWidth-2).Height(canvasHeight-2).Render(c.renderCanvas(rightWidth-4)),
	)

	input := PaneStyle.Width(c.width - 2).Render(c.input.View())

	return lipgloss.JoinVertical(lipgloss.Left,
		c.renderHeader(),
		lipgloss.JoinHorizontal(lipgloss.Top, transcript, right),
		input,
		c.renderFooter(),
	)
}

func (c Console) columns() (left, right int) {
	left = c.width * 3 / 5
	return left, c.width - left
}

func (c Console) bodyHeight() int {
	return max(c.height-headerHeight-footerHeight-inputHeight, 6)
}

// transcriptWidth is the text width inside the transcript pane
func (c Console) transcriptWidth() int {
	left, _ := c.columns()
	return max(left-4, 20)
}

func (c *Console) layout() {
	c.viewport.Width = c.transcriptWidth()
	// pane border (2) and title (1)
	c.viewport.Height = max(c.bodyHeight()-3, 1)
	c.input.Width = max(c.width-8, 10)
	c.search.input.Width = max(min(c.width-12, 90), 10)
}

func (c Console) renderHeader() string {
	title := TitleStyle.Render("Oscar")
	if c.version != "" {
		title += " " + DimStyle.Render(c.version)
	}

	voice := DimStyle.Render("listening")
	if c.speaking {
		voice = HighlightStyle.Render("♪ speaking")
	}

	parts := []string{
		title,
		statusBadge(c.status),
		voice,
		StatusStyle.Render("view: " + string(c.snap.ViewMode)),
	}
	return strings.Join(parts, DimStyle.Render("  │  "))
}

func (c Console) renderFooter() string {
	if c.flash != "" {
		return SelectedStyle.Render(c.flash)
	}
	return HelpStyle.Render(FormatFooter(
		c.kb.DisplayActionKey("start_meeting"), "Start",
		c.kb.DisplayActionKey("end_meeting"), "End",
		c.kb.DisplayActionKey("toggle_view"), "View",
		c.kb.DisplayActionKey("copy_html"), "Copy",
		c.kb.DisplayActionKey("export"), "Export",
		c.kb.DisplayActionKey("help"), "Help",
		c.kb.DisplayActionKey("quit"), "Quit",
	))
}

func roleLabel(r state.Role) string {
	if r == state.RoleUser {
		return "You"
	}
	return "Agent"
}

// refreshTranscript rebuilds the viewport content from the snapshot
func (c *Console) refreshTranscript(gotoBottom bool) {
	c.messageLines = c.messageLines[:0]
	if len(c.snap.Transcript) == 0 {
		c.viewport.SetContent(DimStyle.Render(fmt.Sprintf(
			"No transcript yet. Press %s to start a meeting.", c.kb.DisplayActionKey("start_meeting"))))
		return
	}

	width := c.transcriptWidth()
	wrap := lipgloss.NewStyle().Width(width)

	var (
		content strings.Builder
		lines   int
	)
	for i, msg := range c.snap.Transcript {
		if i > 0 {
			content.WriteString("\n\n")
			lines += 2
		}
		c.messageLines = append(c.messageLines, lines)

		roleStyle := AgentStyle
		if msg.Role == state.RoleUser {
			roleStyle = UserStyle
		}
		header := DimStyle.Render(msg.Timestamp.Format("[15:04]")) + " " + roleStyle.Render(roleLabel(msg.Role))

		body := wrap.Render(msg.Content)
		if r, ok := c.rendered[msg.ID]; ok && r.width == width {
			body = r.text
		}

		block := header + "\n" + body
		content.WriteString(block)
		lines += strings.Count(block, "\n")
	}

	c.viewport.SetContent(content.String())
	if gotoBottom {
		c.viewport.GotoBottom()
	}
}

func (c Console) renderTools(width, rows int) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Tools"))

	calls := c.snap.ToolCalls
	if len(calls) == 0 {
		b.WriteString("\n" + DimStyle.Render("No tool calls yet"))
		return b.String()
	}
	if rows > 0 && len(calls) > rows {
		calls = calls[len(calls)-rows:]
	}
	for _, call := range calls {
		name := runewidth.Truncate(call.Name, width-2, "…")
		line := toolGlyph(call.Status) + " " + name
		if room := width - 3 - runewidth.StringWidth(name); room > 4 {
			if summary := toolSummary(call); summary != "" {
				summaryStyle := DimStyle
				if call.Status == state.StatusError {
					summaryStyle = ErrorStyle
				}
				line += " " + summaryStyle.Render(runewidth.Truncate(summary, room, "…"))
			}
		}
		b.WriteString("\n" + line)
	}
	return b.String()
}

// toolSummary is the one-line description shown beside a tool call
func toolSummary(call state.ToolCall) string {
	text := call.Result
	if call.Status == state.StatusPending || text == "" {
		for _, key := range []string{"prompt", "instruction", "description"} {
			if v, ok := call.Params[key].(string); ok && v != "" {
				text = v
				break
			}
		}
	}
	return strings.Join(strings.Fields(text), " ")
}

func (c Console) renderCanvas(width int) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Canvas") + " " + DimStyle.Render(string(c.snap.ViewMode)))

	slots := c.snap.Canvas.Padded()[:c.visibleSlots()]
	for i, doc := range slots {
		label := DimStyle.Render("(empty)")
		if doc != "" {
			title := generation.Title(doc)
			if title == "" {
				title = "Untitled"
			}
			label = runewidth.Truncate(title, width-5, "…")
		}

		prefix := fmt.Sprintf("  %d ", i+1)
		if i == c.slot {
			prefix = SelectedStyle.Render(fmt.Sprintf("> %d ", i+1))
		}
		b.WriteString("\n" + prefix + label)
	}

	if c.previewURL != "" {
		b.WriteString("\n\n" + DimStyle.Render(runewidth.Truncate(c.previewURL, width, "…")))
	}
	return b.String()
}
