package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"oscar/config"
	"oscar/provider"
	"oscar/state"
)

const flashDuration = 3 * time.Second

func (c Console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.height = msg.Height
		c.layout()
		c.refreshTranscript(c.viewport.AtBottom())
		return c, c.renderStale()

	case stateEventMsg:
		return c.handleStateEvent(state.Event(msg))

	case statusMsg:
		c.status = c.meeting.Status()
		c.speaking = c.meeting.IsSpeaking()
		return c, c.bridge.wait()

	case speakingMsg:
		c.speaking = bool(msg)
		return c, c.bridge.wait()

	case meetingErrorMsg:
		log.Warn().Err(msg.err).Msg("Meeting error")
		c.err = newErrorState(msg.err)
		return c, c.bridge.wait()

	case meetingStartedMsg:
		c.status = c.meeting.Status()
		if msg.err != nil {
			c.err = newErrorState(msg.err)
		}
		return c, nil

	case meetingEndedMsg:
		c.status = c.meeting.Status()
		c.speaking = false
		if msg.err != nil {
			c.err = newErrorState(msg.err)
		}
		return c, nil

	case textSentMsg:
		if msg.err != nil {
			c.err = newErrorState(msg.err)
		}
		return c, nil

	case exportedMsg:
		if msg.err != nil {
			log.Error().Err(msg.err).Msg("Export failed")
			c.err = &errorState{Title: "Export Failed", Message: msg.err.Error()}
			return c, nil
		}
		return c.setFlash("Exported to " + msg.dir)

	case provider.PingProviderMsg:
		if msg.Err != nil {
			return c.setFlash(fmt.Sprintf("%s (%s): %v", msg.ProviderID, msg.Model, msg.Err))
		}
		return c.setFlash(fmt.Sprintf("%s ready: %s", msg.ProviderID, msg.Model))

	case markdownRenderedMsg:
		c.rendered[msg.id] = renderedMessage{width: msg.width, text: msg.rendered}
		c.refreshTranscript(c.viewport.AtBottom())
		return c, nil

	case flashClearMsg:
		if msg.seq == c.flashSeq {
			c.flash = ""
		}
		return c, nil

	case tea.KeyMsg:
		return c.handleKey(msg)
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return c, cmd
}

func (c Console) handleStateEvent(ev state.Event) (tea.Model, tea.Cmd) {
	c.snap = c.store.Snapshot()
	cmds := []tea.Cmd{waitForEvent(c.events)}

	switch ev.Type {
	case state.EventTranscriptAppended:
		if ev.Message != nil && ev.Message.Role == state.RoleAgent {
			cmds = append(cmds, c.renderAgentMessage(*ev.Message))
		}
		c.refreshTranscript(true)
		if c.search.active {
			c.search.filter(c.snap.Transcript)
		}
	case state.EventTranscriptCleared:
		clear(c.rendered)
		c.refreshTranscript(true)
		if c.search.active {
			c.search.filter(c.snap.Transcript)
		}
	case state.EventCanvasReplaced, state.EventViewModeChanged:
		if c.slot >= c.visibleSlots() {
			c.slot = 0
		}
	}
	return c, tea.Batch(cmds...)
}

// actionFor maps a key press to its configured action name
func (c Console) actionFor(key string) string {
	for _, action := range config.Actions() {
		if c.kb.GetActionKey(action) == key {
			return action
		}
	}
	return ""
}

func (c Console) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return c.quit()
	}

	// Modals take every key while open
	if c.err != nil {
		if key == "enter" || key == "esc" {
			c.err = nil
		}
		return c, nil
	}
	if c.confirm.Active {
		return c.handleConfirmKey(key)
	}
	if c.showHelp {
		if key == "esc" || key == c.kb.GetActionKey("help") {
			c.showHelp = false
		}
		return c, nil
	}
	if c.search.active {
		return c.handleSearchKey(msg)
	}

	switch c.actionFor(key) {
	case "quit":
		return c.quit()
	case "help":
		c.showHelp = true
		return c, nil
	case "start_meeting":
		return c, c.startMeeting()
	case "end_meeting":
		return c, c.endMeeting()
	case "toggle_view":
		if _, err := c.store.ToggleViewMode(); err != nil {
			c.err = newErrorState(err)
		}
		return c, nil
	case "clear_transcript":
		if len(c.snap.Transcript) == 0 {
			return c.setFlash("Transcript is already empty")
		}
		c.confirm = ConfirmationState{
			Active:  true,
			Title:   "Clear Transcript",
			Message: fmt.Sprintf("Remove all %d messages?\nTool calls and the canvas are kept.", len(c.snap.Transcript)),
			Action:  "clear_transcript",
		}
		return c, nil
	case "copy_html":
		return c.copyHTML()
	case "next_slot":
		c.slot = (c.slot + 1) % c.visibleSlots()
		return c, nil
	case "select_slot":
		return c.selectSlot()
	case "export":
		return c.export()
	case "open_canvas":
		if c.previewURL == "" {
			return c.setFlash("Preview server is not running")
		}
		if err := c.openURL(c.previewURL); err != nil {
			c.err = &errorState{Title: "Cannot Open Browser", Message: fmt.Sprintf("%v\n\nOpen %s manually.", err, c.previewURL)}
		}
		return c, nil
	case "search_transcript":
		c.search.open(c.snap.Transcript)
		c.input.Blur()
		return c, c.search.input.Focus()
	case "scroll_down":
		c.viewport.ScrollDown(1)
		return c, nil
	case "scroll_up":
		c.viewport.ScrollUp(1)
		return c, nil
	case "page_down":
		c.viewport.PageDown()
		return c, nil
	case "page_up":
		c.viewport.PageUp()
		return c, nil
	case "scroll_to_top":
		c.viewport.GotoTop()
		return c, nil
	case "scroll_to_bottom":
		c.viewport.GotoBottom()
		return c, nil
	case "clear_input":
		c.input.Reset()
		return c, nil
	}

	if key == "enter" {
		return c.sendInput()
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return c, cmd
}

func (c Console) handleConfirmKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "y", "Y":
		action := c.confirm.Action
		c.confirm = ConfirmationState{}
		if action == "clear_transcript" {
			if err := c.store.ClearTranscript(); err != nil {
				c.err = newErrorState(err)
				return c, nil
			}
			return c.setFlash("Transcript cleared")
		}
	case "n", "N", "esc":
		c.confirm = ConfirmationState{}
	}
	return c, nil
}

func (c Console) quit() (tea.Model, tea.Cmd) {
	c.quitting = true
	return c, tea.Quit
}

func (c Console) startMeeting() tea.Cmd {
	meeting, ctx := c.meeting, c.ctx
	return func() tea.Msg {
		return meetingStartedMsg{err: meeting.StartMeeting(ctx)}
	}
}

func (c Console) endMeeting() tea.Cmd {
	meeting := c.meeting
	return func() tea.Msg {
		return meetingEndedMsg{err: meeting.EndMeeting()}
	}
}

func (c Console) sendInput() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(c.input.Value())
	if text == "" {
		return c, nil
	}
	c.input.Reset()
	meeting := c.meeting
	return c, func() tea.Msg {
		return textSentMsg{err: meeting.SendText(text)}
	}
}

func (c Console) copyHTML() (tea.Model, tea.Cmd) {
	html, ok := c.store.FirstHTML()
	if !ok {
		return c.setFlash("Canvas is empty")
	}
	if err := c.copyText(html); err != nil {
		log.Warn().Err(err).Msg("Clipboard write failed")
		c.err = &errorState{Title: "Clipboard Unavailable", Message: err.Error()}
		return c, nil
	}
	return c.setFlash(fmt.Sprintf("Copied HTML (%d bytes)", len(html)))
}

func (c Console) selectSlot() (tea.Model, tea.Cmd) {
	err := c.store.SelectVariant(c.slot)
	if errors.Is(err, state.ErrNoSuchVariant) {
		return c.setFlash(fmt.Sprintf("Slot %d is empty", c.slot+1))
	}
	if err != nil {
		c.err = newErrorState(err)
		return c, nil
	}
	c.slot = 0
	return c, nil
}

func (c Console) export() (tea.Model, tea.Cmd) {
	if c.exports == nil {
		return c.setFlash("Export is not configured")
	}
	exports, snap := c.exports, c.store.Snapshot()
	return c, func() tea.Msg {
		dir, err := exports.Export(snap)
		return exportedMsg{dir: dir, err: err}
	}
}

func (c Console) setFlash(text string) (tea.Model, tea.Cmd) {
	c.flash = text
	c.flashSeq++
	seq := c.flashSeq
	return c, tea.Tick(flashDuration, func(time.Time) tea.Msg {
		return flashClearMsg{seq: seq}
	})
}

func (c Console) visibleSlots() int {
	if c.snap.ViewMode == state.ViewQuadrant {
		return state.QuadrantSlots
	}
	return 1
}
