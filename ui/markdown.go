package ui

import (
	"regexp"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	tea "github.com/charmbracelet/bubbletea"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"

	"oscar/state"
)

var (
	inlineCodeRegex = regexp.MustCompile(`(?s)\x1b\[44;3m(.*?)\x1b\[0m`)
	mdLinkRegex     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
)

// renderMarkdown renders agent text for the terminal at the given width
func renderMarkdown(content string, width int) string {
	// [text](url) becomes the bare url so terminals can detect it
	content = mdLinkRegex.ReplaceAllString(content, "$2")

	// Autolink off keeps plain URLs as plain text
	p := parser.NewWithExtensions(markdown.Extensions() &^ parser.Autolink)
	r := markdown.NewRenderer(width, 0)
	rendered := gomarkdown.Render(p.Parse([]byte(content)), r)

	// inline code in red instead of blue italics
	out := inlineCodeRegex.ReplaceAllString(string(rendered), "\x1b[31m$1\x1b[0m")
	return strings.Trim(out, "\n")
}

func (c Console) renderAgentMessage(msg state.TranscriptMessage) tea.Cmd {
	width := c.transcriptWidth()
	return func() tea.Msg {
		return markdownRenderedMsg{
			id:       msg.ID,
			width:    width,
			rendered: renderMarkdown(msg.Content, width),
		}
	}
}

// renderStale re-renders agent messages rendered at another width
func (c Console) renderStale() tea.Cmd {
	width := c.transcriptWidth()
	var cmds []tea.Cmd
	for _, msg := range c.snap.Transcript {
		if msg.Role != state.RoleAgent {
			continue
		}
		if r, ok := c.rendered[msg.ID]; ok && r.width == width {
			continue
		}
		cmds = append(cmds, c.renderAgentMessage(msg))
	}
	return tea.Batch(cmds...)
}
