package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oscar/provider"
	"oscar/provider/testutil"
	"oscar/session"
	"oscar/state"
)

type fakeMeeting struct {
	mu       sync.Mutex
	status   session.Status
	startErr error
	starts   int
	ends     int
	sent     []string
}

func (m *fakeMeeting) StartMeeting(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.startErr != nil {
		return m.startErr
	}
	m.status = session.StatusConnected
	return nil
}

func (m *fakeMeeting) EndMeeting() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ends++
	m.status = session.StatusDisconnected
	return nil
}

func (m *fakeMeeting) SendText(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, text)
	return nil
}

func (m *fakeMeeting) Status() session.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == "" {
		return session.StatusDisconnected
	}
	return m.status
}

func (m *fakeMeeting) IsSpeaking() bool { return false }

type fakeExporter struct {
	dir  string
	err  error
	snap state.Snapshot
}

func (e *fakeExporter) Export(snap state.Snapshot) (string, error) {
	e.snap = snap
	return e.dir, e.err
}

type harness struct {
	store    *state.Store
	meeting  *fakeMeeting
	exporter *fakeExporter
	copied   []string
	opened   []string
}

func newConsole(t *testing.T) (Console, *harness) {
	t.Helper()
	h := &harness{
		store:    state.NewStore(),
		meeting:  &fakeMeeting{},
		exporter: &fakeExporter{dir: "/tmp/exports/oscar-1"},
	}
	t.Cleanup(func() { _ = h.store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c, err := New(ctx, Options{
		Store:      h.store,
		Meeting:    h.meeting,
		Exports:    h.exporter,
		PreviewURL: "http://127.0.0.1:8787/",
		CopyText: func(s string) error {
			h.copied = append(h.copied, s)
			return nil
		},
		OpenURL: func(u string) error {
			h.opened = append(h.opened, u)
			return nil
		},
	})
	require.NoError(t, err)

	c = update(t, c, tea.WindowSizeMsg{Width: 120, Height: 40})
	return c, h
}

func update(t *testing.T, c Console, msg tea.Msg) Console {
	t.Helper()
	c, _ = updateCmd(t, c, msg)
	return c
}

func updateCmd(t *testing.T, c Console, msg tea.Msg) (Console, tea.Cmd) {
	t.Helper()
	m, cmd := c.Update(msg)
	next, ok := m.(Console)
	require.True(t, ok)
	return next, cmd
}

func altKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}, Alt: true}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// changed tells the console the store moved, as the subscription would
func changed(t *testing.T, c Console, typ state.EventType) Console {
	t.Helper()
	return update(t, c, stateEventMsg{Type: typ})
}

func TestNewRequiresStoreAndMeeting(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)
}

func TestHeaderShowsStatusAndViewMode(t *testing.T) {
	c, _ := newConsole(t)

	view := c.View()
	assert.Contains(t, view, "disconnected")
	assert.Contains(t, view, "view: single")
	assert.Contains(t, view, "No transcript yet")
}

func TestToggleView(t *testing.T) {
	c, h := newConsole(t)

	c = update(t, c, altKey('v'))
	assert.Equal(t, state.ViewQuadrant, h.store.Snapshot().ViewMode)

	c = changed(t, c, state.EventViewModeChanged)
	assert.Equal(t, state.ViewQuadrant, c.Snapshot().ViewMode)
	assert.Contains(t, c.View(), "view: quadrant")
}

func TestQuadrantCanvasListsFourSlots(t *testing.T) {
	c, h := newConsole(t)

	ticket, err := h.store.NextIssue()
	require.NoError(t, err)
	_, err = h.store.ApplyCanvas(ticket, []string{
		"<html><head><title>Login</title></head></html>",
		"<html><head><title>Signup</title></head></html>",
	}, state.ViewQuadrant)
	require.NoError(t, err)
	c = changed(t, c, state.EventCanvasReplaced)

	view := c.View()
	assert.Contains(t, view, "Login")
	assert.Contains(t, view, "Signup")
	assert.Equal(t, 2, strings.Count(view, "(empty)"))
}

func TestClearTranscriptAsksFirst(t *testing.T) {
	c, h := newConsole(t)

	_, err := h.store.AppendTranscript(state.RoleUser, "build a dashboard")
	require.NoError(t, err)
	c = changed(t, c, state.EventTranscriptAppended)

	c = update(t, c, altKey('x'))
	require.True(t, c.confirm.Active)
	assert.Contains(t, c.View(), "Clear Transcript")

	c = update(t, c, runes("n"))
	assert.False(t, c.confirm.Active)
	assert.Len(t, h.store.Snapshot().Transcript, 1)

	c = update(t, c, altKey('x'))
	c = update(t, c, runes("y"))
	assert.False(t, c.confirm.Active)
	assert.Empty(t, h.store.Snapshot().Transcript)
	assert.Equal(t, "Transcript cleared", c.flash)
}

func TestClearEmptyTranscriptSkipsConfirmation(t *testing.T) {
	c, _ := newConsole(t)

	c = update(t, c, altKey('x'))
	assert.False(t, c.confirm.Active)
	assert.Equal(t, "Transcript is already empty", c.flash)
}

func TestCopyHTMLCopiesFirstDocument(t *testing.T) {
	c, h := newConsole(t)

	c = update(t, c, altKey('y'))
	assert.Empty(t, h.copied)
	assert.Equal(t, "Canvas is empty", c.flash)

	require.NoError(t, h.store.SeedCanvas([]string{"<p>first</p>", "<p>second</p>"}))
	c = changed(t, c, state.EventCanvasReplaced)

	c = update(t, c, altKey('y'))
	assert.Equal(t, []string{"<p>first</p>"}, h.copied)
	assert.Contains(t, c.flash, "Copied HTML")
}

func TestClipboardFailureShowsError(t *testing.T) {
	c, h := newConsole(t)
	c.copyText = func(string) error { return errors.New("no clipboard utility") }
	require.NoError(t, h.store.SeedCanvas([]string{"<p>x</p>"}))

	c = update(t, c, altKey('y'))
	require.NotNil(t, c.err)
	assert.Equal(t, "Clipboard Unavailable", c.err.Title)
}

func TestStartMeeting(t *testing.T) {
	c, h := newConsole(t)

	c, cmd := updateCmd(t, c, altKey('s'))
	require.NotNil(t, cmd)
	c = update(t, c, cmd())

	assert.Equal(t, 1, h.meeting.starts)
	assert.Equal(t, session.StatusConnected, c.MeetingStatus())
	assert.Contains(t, c.View(), "● connected")

	c, cmd = updateCmd(t, c, altKey('e'))
	require.NotNil(t, cmd)
	c = update(t, c, cmd())
	assert.Equal(t, 1, h.meeting.ends)
	assert.Equal(t, session.StatusDisconnected, c.MeetingStatus())
}

func TestMicrophoneDeniedShowsModal(t *testing.T) {
	c, h := newConsole(t)
	h.meeting.startErr = &session.PermissionError{Reason: "denied by configuration"}

	c, cmd := updateCmd(t, c, altKey('s'))
	c = update(t, c, cmd())

	require.NotNil(t, c.err)
	assert.Equal(t, "Microphone Unavailable", c.err.Title)
	assert.Contains(t, c.View(), "denied by configuration")

	// Keys other than Enter and Esc are swallowed by the modal
	c = update(t, c, altKey('v'))
	assert.Equal(t, state.ViewSingle, h.store.Snapshot().ViewMode)

	c = update(t, c, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, c.err)
}

func TestEnterSendsTypedText(t *testing.T) {
	c, h := newConsole(t)

	c = update(t, c, runes("add a pricing table"))
	c, cmd := updateCmd(t, c, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Empty(t, c.input.Value())

	c = update(t, c, cmd())
	assert.Nil(t, c.err)
	assert.Equal(t, []string{"add a pricing table"}, h.meeting.sent)

	// Blank input sends nothing
	_, cmd = updateCmd(t, c, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}

func TestSelectSlotPromotesVariant(t *testing.T) {
	c, h := newConsole(t)

	ticket, err := h.store.NextIssue()
	require.NoError(t, err)
	docs := []string{"<p>1</p>", "<p>2</p>", "<p>3</p>", "<p>4</p>"}
	_, err = h.store.ApplyCanvas(ticket, docs, state.ViewQuadrant)
	require.NoError(t, err)
	c = changed(t, c, state.EventCanvasReplaced)

	c = update(t, c, altKey('l'))
	c = update(t, c, altKey('l'))
	assert.Equal(t, 2, c.slot)

	c = update(t, c, altKey('p'))
	assert.Equal(t, 0, c.slot)

	snap := h.store.Snapshot()
	assert.Equal(t, state.ViewSingle, snap.ViewMode)
	assert.Equal(t, "<p>3</p>", snap.Canvas[0])
}

func TestNextSlotStaysOnFirstInSingleView(t *testing.T) {
	c, _ := newConsole(t)

	c = update(t, c, altKey('l'))
	assert.Equal(t, 0, c.slot)
}

func TestExport(t *testing.T) {
	c, h := newConsole(t)
	_, err := h.store.AppendTranscript(state.RoleAgent, "done")
	require.NoError(t, err)

	c, cmd := updateCmd(t, c, altKey('o'))
	require.NotNil(t, cmd)
	c = update(t, c, cmd())

	assert.Equal(t, "Exported to /tmp/exports/oscar-1", c.flash)
	assert.Len(t, h.exporter.snap.Transcript, 1)

	h.exporter.err = errors.New("disk full")
	c, cmd = updateCmd(t, c, altKey('o'))
	c = update(t, c, cmd())
	require.NotNil(t, c.err)
	assert.Equal(t, "Export Failed", c.err.Title)
}

func TestOpenCanvas(t *testing.T) {
	c, h := newConsole(t)

	update(t, c, altKey('O'))
	assert.Equal(t, []string{"http://127.0.0.1:8787/"}, h.opened)
}

func TestFlashClearsOnlyLatest(t *testing.T) {
	c, _ := newConsole(t)

	c = update(t, c, altKey('y'))
	first := c.flashSeq
	c = update(t, c, altKey('x'))

	c = update(t, c, flashClearMsg{seq: first})
	assert.NotEmpty(t, c.flash)

	c = update(t, c, flashClearMsg{seq: c.flashSeq})
	assert.Empty(t, c.flash)
}

func TestMeetingErrorFromObserver(t *testing.T) {
	c, _ := newConsole(t)

	c, cmd := updateCmd(t, c, meetingErrorMsg{err: errors.New("websocket closed")})
	assert.NotNil(t, cmd, "the bridge must be re-armed")
	require.NotNil(t, c.err)
	assert.Equal(t, "websocket closed", c.err.Message)
}

func TestBridgeDeliversObserverCalls(t *testing.T) {
	b := NewBridge()
	obs := b.Observer()

	obs.OnStatusChange(session.StatusConnecting)
	obs.OnSpeakingChange(true)
	obs.OnError(errors.New("boom"))

	assert.Equal(t, statusMsg(session.StatusConnecting), b.wait()())
	assert.Equal(t, speakingMsg(true), b.wait()())
	assert.Equal(t, meetingErrorMsg{err: errors.New("boom")}, b.wait()())
}

func TestTranscriptSearch(t *testing.T) {
	c, h := newConsole(t)
	for _, line := range []string{"make a login page", "here is your dashboard", "add a logo"} {
		_, err := h.store.AppendTranscript(state.RoleUser, line)
		require.NoError(t, err)
	}
	c = changed(t, c, state.EventTranscriptAppended)

	c = update(t, c, altKey('f'))
	require.True(t, c.search.active)
	assert.Contains(t, c.View(), "Search Transcript")

	c = update(t, c, runes("logo"))
	require.NotEmpty(t, c.search.results)
	assert.Equal(t, 2, c.search.results[0].Index)

	c = update(t, c, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, c.search.active)
}

func TestSearchEscapeCloses(t *testing.T) {
	c, _ := newConsole(t)

	c = update(t, c, altKey('f'))
	c = update(t, c, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, c.search.active)
}

func TestSearchMoveClamps(t *testing.T) {
	s := searchState{results: make([]searchResult, 5)}

	s.move(-1, 2)
	assert.Equal(t, 0, s.selectedIdx)

	s.move(3, 2)
	assert.Equal(t, 3, s.selectedIdx)
	assert.Equal(t, 2, s.scrollIdx)

	s.move(10, 2)
	assert.Equal(t, 4, s.selectedIdx)
}

func TestHighlightMatchesTruncates(t *testing.T) {
	out := highlightMatches("hello   world\nagain", nil, 11)
	assert.Equal(t, "hello worl…", out)

	out = highlightMatches("short", nil, 20)
	assert.Equal(t, "short", out)
}

func TestHelpToggles(t *testing.T) {
	c, _ := newConsole(t)

	c = update(t, c, altKey('h'))
	require.True(t, c.showHelp)
	assert.Contains(t, c.View(), "Keyboard Shortcuts")

	c = update(t, c, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, c.showHelp)
}

func TestQuit(t *testing.T) {
	c, _ := newConsole(t)

	c, cmd := updateCmd(t, c, altKey('q'))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, c.View())
}

func TestRenderMarkdown(t *testing.T) {
	out := renderMarkdown("Here is **your** page: [preview](https://example.com/x)", 60)

	assert.NotContains(t, out, "**")
	assert.Contains(t, out, "https://example.com/x")
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestAgentMessagesUseRenderedMarkdown(t *testing.T) {
	c, h := newConsole(t)

	msg, err := h.store.AppendTranscript(state.RoleAgent, "**Generated** four variants")
	require.NoError(t, err)
	c = changed(t, c, state.EventTranscriptAppended)

	c = update(t, c, c.renderAgentMessage(msg)())
	r, ok := c.rendered[msg.ID]
	require.True(t, ok)
	assert.Equal(t, c.transcriptWidth(), r.width)

	c = changed(t, c, state.EventTranscriptCleared)
	assert.Empty(t, c.rendered)
}

func TestToolsPane(t *testing.T) {
	c, h := newConsole(t)

	call, err := h.store.BeginToolCall("generate", map[string]any{"prompt": "a login page"})
	require.NoError(t, err)
	c = changed(t, c, state.EventToolCallStarted)
	assert.Contains(t, c.View(), "a login page")

	require.NoError(t, h.store.FailToolCall(call.ID, "provider unavailable"))
	c = changed(t, c, state.EventToolCallFinished)
	assert.Contains(t, c.View(), "provider unavailable")
}

func TestProviderPingAtStartup(t *testing.T) {
	store := state.NewStore()
	t.Cleanup(func() { _ = store.Close() })

	mock := testutil.NewMockProvider("ollama")
	mock.PingFunc = func(context.Context) error { return errors.New("connection refused") }

	c, err := New(context.Background(), Options{
		Store:      store,
		Meeting:    &fakeMeeting{},
		Provider:   mock,
		ProviderID: "ollama",
	})
	require.NoError(t, err)

	msg := provider.PingProvider("ollama", mock)()
	c = update(t, c, msg)
	assert.Contains(t, c.flash, "ollama")
	assert.Contains(t, c.flash, "connection refused")
}
