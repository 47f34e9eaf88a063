package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"oscar/session"
	"oscar/state"
)

// stateEventMsg wraps a view state change from the store
type stateEventMsg state.Event

// statusMsg, speakingMsg and meetingErrorMsg arrive from the session
// controller's observer
type statusMsg session.Status

type speakingMsg bool

type meetingErrorMsg struct{ err error }

type meetingStartedMsg struct{ err error }

type meetingEndedMsg struct{ err error }

type textSentMsg struct{ err error }

type exportedMsg struct {
	dir string
	err error
}

type markdownRenderedMsg struct {
	id       string
	width    int
	rendered string
}

type flashClearMsg struct{ seq int }

// Bridge carries controller notifications into the bubbletea loop. The
// controller calls the observer from its own goroutines.
type Bridge struct {
	ch chan tea.Msg
}

func NewBridge() *Bridge {
	return &Bridge{ch: make(chan tea.Msg, 64)}
}

// Observer returns callbacks to pass in session.Options
func (b *Bridge) Observer() session.Observer {
	return session.Observer{
		OnStatusChange:   func(s session.Status) { b.send(statusMsg(s)) },
		OnSpeakingChange: func(speaking bool) { b.send(speakingMsg(speaking)) },
		OnError:          func(err error) { b.send(meetingErrorMsg{err: err}) },
	}
}

func (b *Bridge) send(msg tea.Msg) {
	select {
	case b.ch <- msg:
	default:
		// status is re-read from the controller on the next message
		log.Warn().Msgf("UI bridge full, dropping %T", msg)
	}
}

func (b *Bridge) wait() tea.Cmd {
	return func() tea.Msg {
		return <-b.ch
	}
}

func waitForEvent(events <-chan state.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return stateEventMsg(ev)
	}
}
