package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	"oscar/state"
)

const searchPreviewWidth = 80

type searchResult struct {
	// Index into the transcript
	Index   int
	Message state.TranscriptMessage
	Matched []int
}

type searchState struct {
	active      bool
	input       textinput.Model
	results     []searchResult
	selectedIdx int
	scrollIdx   int
}

func newSearchState() searchState {
	input := textinput.New()
	input.Placeholder = "Search transcript..."
	input.Prompt = "/ "
	input.CharLimit = 200
	return searchState{input: input}
}

func (s *searchState) open(transcript []state.TranscriptMessage) {
	s.active = true
	s.input.SetValue("")
	s.filter(transcript)
}

func (s *searchState) close() {
	s.active = false
	s.input.Blur()
	s.results = nil
	s.selectedIdx = 0
	s.scrollIdx = 0
}

// filter fuzzy-matches the query against message contents. An empty query
// lists nothing.
func (s *searchState) filter(transcript []state.TranscriptMessage) {
	s.results = nil
	s.selectedIdx = 0
	s.scrollIdx = 0

	query := strings.TrimSpace(s.input.Value())
	if query == "" {
		return
	}

	targets := make([]string, len(transcript))
	for i, m := range transcript {
		targets[i] = m.Content
	}
	for _, match := range fuzzy.Find(query, targets) {
		s.results = append(s.results, searchResult{
			Index:   match.Index,
			Message: transcript[match.Index],
			Matched: match.MatchedIndexes,
		})
	}
}

func (s *searchState) move(delta, visible int) {
	if len(s.results) == 0 {
		return
	}
	s.selectedIdx += delta
	if s.selectedIdx < 0 {
		s.selectedIdx = 0
	}
	if s.selectedIdx >= len(s.results) {
		s.selectedIdx = len(s.results) - 1
	}
	if s.selectedIdx < s.scrollIdx {
		s.scrollIdx = s.selectedIdx
	}
	if visible > 0 && s.selectedIdx >= s.scrollIdx+visible {
		s.scrollIdx = s.selectedIdx - visible + 1
	}
}

func (c Console) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "esc":
		c.search.close()
		return c, c.input.Focus()
	case "enter":
		if len(c.search.results) > 0 {
			idx := c.search.results[c.search.selectedIdx].Index
			if idx < len(c.messageLines) {
				c.viewport.SetYOffset(c.messageLines[idx])
			}
		}
		c.search.close()
		return c, c.input.Focus()
	case c.kb.GetActionKey("search_down"), c.kb.GetActionKey("scroll_down"):
		c.search.move(1, c.searchVisibleResults())
		return c, nil
	case c.kb.GetActionKey("search_up"), c.kb.GetActionKey("scroll_up"):
		c.search.move(-1, c.searchVisibleResults())
		return c, nil
	}

	before := c.search.input.Value()
	var cmd tea.Cmd
	c.search.input, cmd = c.search.input.Update(msg)
	if c.search.input.Value() != before {
		c.search.filter(c.snap.Transcript)
	}
	return c, cmd
}

func (c Console) searchVisibleResults() int {
	// Border(2) + Padding(2) + Title(1) + Blank(1) + Input(1) + Blank(1) +
	// "Found X matches:"(1) + Blank(1) + Footer(1) + Blank(1) = 12 lines
	available := c.height - 12 - 4
	// three lines per result: header, preview, blank
	visible := available / 3
	if visible < 1 {
		visible = 1
	}
	return visible
}

func (c Console) renderSearch(width, height int) string {
	s := c.search
	modalWidth := width - 4
	if modalWidth > 100 {
		modalWidth = 100
	}

	modalStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dimColor).
		Padding(1, 2)

	title := TitleStyle.Render("Search Transcript")

	var resultsView strings.Builder
	switch {
	case len(s.results) == 0 && s.input.Value() == "":
		resultsView.WriteString(DimStyle.Render("Type to search the transcript..."))
	case len(s.results) == 0:
		resultsView.WriteString(DimStyle.Render("No matches found"))
	default:
		visible := c.searchVisibleResults()
		start := s.scrollIdx
		end := min(start+visible, len(s.results))

		fmt.Fprintf(&resultsView, "Found %d matches:\n\n", len(s.results))
		if start > 0 {
			resultsView.WriteString(DimStyle.Render(fmt.Sprintf("↑ %d more above", start)) + "\n\n")
		}

		previewWidth := min(modalWidth-8, searchPreviewWidth)
		for i := start; i < end; i++ {
			r := s.results[i]
			roleStyle := AgentStyle
			if r.Message.Role == state.RoleUser {
				roleStyle = UserStyle
			}
			line := fmt.Sprintf("%s [%s]\n    %s",
				roleStyle.Render(roleLabel(r.Message.Role)),
				r.Message.Timestamp.Format("15:04:05"),
				highlightMatches(r.Message.Content, r.Matched, previewWidth),
			)
			if i == s.selectedIdx {
				line = SelectedStyle.Render("> ") + line
			} else {
				line = "  " + line
			}
			resultsView.WriteString(line + "\n\n")
		}

		if end < len(s.results) {
			resultsView.WriteString(DimStyle.Render(fmt.Sprintf("↓ %d more below", len(s.results)-end)))
		}
	}

	footer := FormatFooter("Type", "to search", "↑/↓", "Navigate", "Enter", "Jump", "Esc", "Close")

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		"",
		s.input.View(),
		"",
		resultsView.String(),
		"",
		footer,
	)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center,
		modalStyle.Width(modalWidth).Render(content))
}

// highlightMatches renders a one-line preview with matched characters
// highlighted, truncated to width cells. matched holds byte offsets into
// content.
func highlightMatches(content string, matched []int, width int) string {
	hits := make(map[int]bool, len(matched))
	for _, i := range matched {
		hits[i] = true
	}

	limit := width
	if runewidth.StringWidth(strings.Join(strings.Fields(content), " ")) > width {
		limit = width - 1
	}

	var (
		b         strings.Builder
		used      int
		prevSpace = true
	)
	for i, r := range content {
		space := r == ' ' || r == '\n' || r == '\t' || r == '\r'
		if space && prevSpace {
			continue
		}
		prevSpace = space
		if space {
			r = ' '
		}

		w := runewidth.RuneWidth(r)
		if used+w > limit {
			b.WriteString("…")
			break
		}
		used += w
		if hits[i] {
			b.WriteString(HighlightStyle.Render(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	return strings.TrimRight(b.String(), " ")
}
