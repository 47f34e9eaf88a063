package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-clone"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed           = errors.New("state store closed")
	ErrUnknownToolCall  = errors.New("unknown tool call")
	ErrToolCallTerminal = errors.New("tool call already finished")
	ErrTooManyDocuments = errors.New("canvas holds at most 4 documents")
	ErrNoSuchVariant    = errors.New("no document in that canvas slot")
)

// data is only touched by the store goroutine
type data struct {
	transcript []TranscriptMessage
	toolCalls  []ToolCall
	canvas     Canvas
	mode       ViewMode

	lastIssue    uint64
	appliedIssue uint64

	epoch uint64
	live  bool
}

// Store owns the view state. A single goroutine runs every mutation in
// request order and publishes an Event for each one.
type Store struct {
	reqs      chan func(*data)
	closed    chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	bus       *bus
	now       func() time.Time
}

// NewStore starts the store goroutine
func NewStore() *Store {
	s := &Store{
		reqs:    make(chan func(*data)),
		closed:  make(chan struct{}),
		stopped: make(chan struct{}),
		bus:     newBus(),
		now:     time.Now,
	}
	go s.loop(&data{mode: ViewSingle})
	return s
}

func (s *Store) loop(d *data) {
	defer close(s.stopped)
	for {
		select {
		case fn := <-s.reqs:
			fn(d)
		case <-s.closed:
			return
		}
	}
}

// do runs fn on the store goroutine and waits for it
func (s *Store) do(fn func(d *data)) error {
	finished := make(chan struct{})
	req := func(d *data) {
		defer close(finished)
		fn(d)
	}
	select {
	case s.reqs <- req:
	case <-s.closed:
		return ErrClosed
	}
	<-finished
	return nil
}

// Close stops the store and its event bus. Subscribers see their channels
// closed.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		<-s.stopped
		err = s.bus.close()
	})
	return err
}

// Subscribe streams state events until ctx is cancelled or the store closes
func (s *Store) Subscribe(ctx context.Context) (<-chan Event, error) {
	return s.bus.subscribe(ctx)
}

// AppendTranscript adds a message to the end of the transcript log
func (s *Store) AppendTranscript(role Role, content string) (TranscriptMessage, error) {
	msg := TranscriptMessage{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	}
	err := s.do(func(d *data) {
		d.transcript = append(d.transcript, msg)
		m := msg
		s.bus.publish(Event{Type: EventTranscriptAppended, Message: &m})
	})
	return msg, err
}

// BeginToolCall records a pending invocation and returns it
func (s *Store) BeginToolCall(name string, params map[string]any) (ToolCall, error) {
	call := ToolCall{
		ID:        uuid.New().String(),
		Name:      name,
		Params:    clone.Clone(params).(map[string]any),
		Timestamp: s.now(),
		Status:    StatusPending,
	}
	err := s.do(func(d *data) {
		d.toolCalls = append(d.toolCalls, call)
		c := clone.Clone(call).(ToolCall)
		s.bus.publish(Event{Type: EventToolCallStarted, ToolCall: &c})
	})
	return call, err
}

// CompleteToolCall moves a pending call to success
func (s *Store) CompleteToolCall(id, result string) error {
	return s.finishToolCall(id, StatusSuccess, result)
}

// FailToolCall moves a pending call to error
func (s *Store) FailToolCall(id, message string) error {
	return s.finishToolCall(id, StatusError, message)
}

func (s *Store) finishToolCall(id string, status ToolStatus, result string) error {
	var ferr error
	err := s.do(func(d *data) {
		for i := range d.toolCalls {
			if d.toolCalls[i].ID != id {
				continue
			}
			if d.toolCalls[i].Status != StatusPending {
				ferr = fmt.Errorf("%w: %s is %s", ErrToolCallTerminal, id, d.toolCalls[i].Status)
				return
			}
			d.toolCalls[i].Status = status
			d.toolCalls[i].Result = result
			c := clone.Clone(d.toolCalls[i]).(ToolCall)
			s.bus.publish(Event{Type: EventToolCallFinished, ToolCall: &c})
			return
		}
		// The log may have been cleared while the call was in flight
		ferr = fmt.Errorf("%w: %s", ErrUnknownToolCall, id)
	})
	if err != nil {
		return err
	}
	return ferr
}

// NextIssue takes a ticket for a canvas-writing call. The ticket carries the
// current session epoch, or zero when no session is live.
func (s *Store) NextIssue() (Ticket, error) {
	var t Ticket
	err := s.do(func(d *data) {
		d.lastIssue++
		t.Issue = d.lastIssue
		if d.live {
			t.Epoch = d.epoch
		}
	})
	return t, err
}

// ApplyCanvas replaces the canvas with html and sets mode, unless a later
// ticket already applied or the issuing session has ended.
func (s *Store) ApplyCanvas(t Ticket, html []string, mode ViewMode) (ApplyOutcome, error) {
	if len(html) > QuadrantSlots {
		return Superseded, fmt.Errorf("%w: got %d", ErrTooManyDocuments, len(html))
	}
	docs := append(Canvas(nil), html...)

	var outcome ApplyOutcome
	err := s.do(func(d *data) {
		if t.Epoch != 0 && (!d.live || d.epoch != t.Epoch) {
			outcome = SessionEnded
			return
		}
		if t.Issue < d.appliedIssue {
			outcome = Superseded
			return
		}
		d.appliedIssue = t.Issue
		d.canvas = docs
		d.mode = mode
		outcome = Applied
		s.bus.publish(Event{Type: EventCanvasReplaced, Canvas: append(Canvas(nil), docs...), ViewMode: mode})
	})
	if err == nil {
		log.Debug().Uint64("issue", t.Issue).Uint64("epoch", t.Epoch).
			Str("outcome", outcome.String()).Int("documents", len(docs)).Msg("Canvas result")
	}
	return outcome, err
}

// SeedCanvas sets the initial canvas without taking a ticket
func (s *Store) SeedCanvas(html []string) error {
	if len(html) > QuadrantSlots {
		return fmt.Errorf("%w: got %d", ErrTooManyDocuments, len(html))
	}
	docs := append(Canvas(nil), html...)
	return s.do(func(d *data) {
		d.canvas = docs
		s.bus.publish(Event{Type: EventCanvasReplaced, Canvas: append(Canvas(nil), docs...), ViewMode: d.mode})
	})
}

// SelectVariant moves the document in slot i to the front and switches to
// single view. The other documents keep their relative order.
func (s *Store) SelectVariant(i int) error {
	var err error
	doErr := s.do(func(d *data) {
		if i < 0 || i >= len(d.canvas) || d.canvas[i] == "" {
			err = fmt.Errorf("%w: %d", ErrNoSuchVariant, i+1)
			return
		}
		docs := make(Canvas, 0, len(d.canvas))
		docs = append(docs, d.canvas[i])
		docs = append(docs, d.canvas[:i]...)
		docs = append(docs, d.canvas[i+1:]...)
		d.canvas = docs
		d.mode = ViewSingle
		s.bus.publish(Event{Type: EventCanvasReplaced, Canvas: append(Canvas(nil), docs...), ViewMode: ViewSingle})
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// SetViewMode changes presentation without touching the canvas
func (s *Store) SetViewMode(mode ViewMode) error {
	return s.do(func(d *data) {
		if d.mode == mode {
			return
		}
		d.mode = mode
		s.bus.publish(Event{Type: EventViewModeChanged, ViewMode: mode})
	})
}

// ToggleViewMode flips between single and quadrant and returns the new mode
func (s *Store) ToggleViewMode() (ViewMode, error) {
	var mode ViewMode
	err := s.do(func(d *data) {
		d.mode = d.mode.Toggle()
		mode = d.mode
		s.bus.publish(Event{Type: EventViewModeChanged, ViewMode: mode})
	})
	return mode, err
}

// ClearTranscript empties the transcript and tool-call logs together.
// Canvas and view mode are left alone.
func (s *Store) ClearTranscript() error {
	return s.do(func(d *data) {
		d.transcript = nil
		d.toolCalls = nil
		s.bus.publish(Event{Type: EventTranscriptCleared})
	})
}

// FirstHTML returns the first canvas document as of now
func (s *Store) FirstHTML() (string, bool) {
	var (
		html string
		ok   bool
	)
	if err := s.do(func(d *data) { html, ok = d.canvas.First() }); err != nil {
		return "", false
	}
	return html, ok
}

// Snapshot returns a deep copy of the whole view state
func (s *Store) Snapshot() Snapshot {
	var snap Snapshot
	_ = s.do(func(d *data) {
		snap = clone.Clone(Snapshot{
			Transcript: d.transcript,
			ToolCalls:  d.toolCalls,
			Canvas:     d.canvas,
			ViewMode:   d.mode,
		}).(Snapshot)
	})
	if snap.ViewMode == "" {
		snap.ViewMode = ViewSingle
	}
	return snap
}

// BeginEpoch marks a new voice session live and returns its epoch
func (s *Store) BeginEpoch() (uint64, error) {
	var epoch uint64
	err := s.do(func(d *data) {
		d.epoch++
		d.live = true
		epoch = d.epoch
		s.bus.publish(Event{Type: EventEpochChanged, Epoch: epoch, Live: true})
	})
	return epoch, err
}

// EndEpoch marks the current session gone. Results issued under it will no
// longer apply.
func (s *Store) EndEpoch() error {
	return s.do(func(d *data) {
		if !d.live {
			return
		}
		d.live = false
		s.bus.publish(Event{Type: EventEpochChanged, Epoch: d.epoch})
	})
}
