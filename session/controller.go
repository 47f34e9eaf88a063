// Package session runs one meeting at a time: it gates on the microphone,
// opens the voice session and relays its transcript into the view state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"

	"oscar/state"
	"oscar/voice"
)

var (
	ErrAlreadyActive = errors.New("meeting already active")
	ErrNotConnected  = errors.New("no meeting in progress")
	errEndedEarly    = errors.New("meeting ended while connecting")
)

// Status of the meeting
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Observer is notified of controller changes. Any field may be nil. Calls
// are made without the controller lock held.
type Observer struct {
	OnStatusChange   func(Status)
	OnSpeakingChange func(bool)
	OnError          func(error)
}

// Options configure a Controller
type Options struct {
	AgentID        string
	ConnectionType string
	ClientTools    map[string]voice.ClientTool
	Tools          []mcptypes.Tool
	Microphone     Microphone
	Observer       Observer
}

type Controller struct {
	dial  voice.Dialer
	store *state.Store
	opts  Options

	mu       sync.Mutex
	status   Status
	starting bool
	session  voice.Session
	speaking bool
	// incremented per attempt and on end; callbacks from older sessions are dropped
	gen uint64
}

func NewController(dial voice.Dialer, store *state.Store, opts Options) *Controller {
	if opts.Microphone == nil {
		opts.Microphone = DeviceMicrophone{}
	}
	return &Controller{
		dial:   dial,
		store:  store,
		opts:   opts,
		status: StatusDisconnected,
	}
}

// Status returns the current meeting status
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// IsSpeaking reports whether the agent is talking
func (c *Controller) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// StartMeeting asks for the microphone and opens a voice session. It is
// only valid while disconnected. An EndMeeting at any point before it
// returns wins.
func (c *Controller) StartMeeting(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusDisconnected || c.starting {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.starting = true
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	if err := c.opts.Microphone.Request(ctx); err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.starting = false
		}
		c.mu.Unlock()

		var perm *PermissionError
		if !errors.As(err, &perm) {
			err = &PermissionError{Reason: err.Error()}
		}
		log.Warn().Err(err).Msg("Microphone unavailable, meeting not started")
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		log.Info().Msg("Meeting ended before the microphone was granted")
		return errEndedEarly
	}
	c.starting = false
	c.status = StatusConnecting
	c.mu.Unlock()
	c.notifyStatus(StatusConnecting)

	sess, err := c.dial(voice.Options{
		AgentID:        c.opts.AgentID,
		ConnectionType: c.opts.ConnectionType,
		ClientTools:    c.opts.ClientTools,
		Tools:          c.opts.Tools,
	}, c.callbacks(gen))
	if err != nil {
		return c.startFailed(gen, fmt.Errorf("open voice session: %w", err))
	}

	// the epoch is live before Start so tool calls from the first frames
	// carry it
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = sess.End()
		return errEndedEarly
	}
	epoch, err := c.store.BeginEpoch()
	if err == nil {
		c.session = sess
	}
	c.mu.Unlock()
	if err != nil {
		_ = sess.End()
		return c.startFailed(gen, err)
	}

	if err := sess.Start(ctx); err != nil {
		_ = sess.End()
		return c.startFailed(gen, fmt.Errorf("start voice session: %w", err))
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = sess.End()
		return errEndedEarly
	}
	c.status = StatusConnected
	c.mu.Unlock()

	log.Info().Uint64("epoch", epoch).Msg("Meeting started")
	c.notifyStatus(StatusConnected)
	return nil
}

func (c *Controller) startFailed(gen uint64, err error) error {
	log.Error().Err(err).Msg("Failed to start meeting")
	c.mu.Lock()
	current := c.gen == gen
	if current {
		c.session = nil
	}
	c.mu.Unlock()

	if current {
		if endErr := c.store.EndEpoch(); endErr != nil && !errors.Is(endErr, state.ErrClosed) {
			log.Warn().Err(endErr).Msg("Failed to end store epoch")
		}
		c.setStatus(gen, StatusDisconnected)
		c.notifyError(err)
	}
	return err
}

// EndMeeting closes the session, if any, and returns to disconnected
func (c *Controller) EndMeeting() error {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.gen++
	c.starting = false
	changed := c.status != StatusDisconnected
	c.status = StatusDisconnected
	wasSpeaking := c.speaking
	c.speaking = false
	c.mu.Unlock()

	var err error
	if sess != nil {
		err = sess.End()
	}
	if endErr := c.store.EndEpoch(); endErr != nil && !errors.Is(endErr, state.ErrClosed) {
		log.Warn().Err(endErr).Msg("Failed to end store epoch")
	}

	if changed {
		log.Info().Msg("Meeting ended")
		c.notifyStatus(StatusDisconnected)
	}
	if wasSpeaking {
		c.notifySpeaking(false)
	}
	return err
}

// SendText forwards typed text to the agent
func (c *Controller) SendText(text string) error {
	c.mu.Lock()
	sess := c.session
	connected := c.status == StatusConnected
	c.mu.Unlock()

	if sess == nil || !connected {
		return ErrNotConnected
	}
	return sess.SendText(text)
}

func (c *Controller) callbacks(gen uint64) voice.Callbacks {
	return voice.Callbacks{
		OnMessage: func(m voice.Message) {
			if !c.current(gen) {
				return
			}
			if _, err := c.store.AppendTranscript(state.RoleFromSource(m.Source), m.Text); err != nil {
				log.Warn().Err(err).Msg("Dropped transcript message")
			}
		},
		OnModeChange: func(m voice.Mode) {
			c.mu.Lock()
			if c.gen != gen {
				c.mu.Unlock()
				return
			}
			speaking := m == voice.ModeSpeaking
			changed := c.speaking != speaking
			c.speaking = speaking
			c.mu.Unlock()
			if changed {
				c.notifySpeaking(speaking)
			}
		},
		OnError: func(err error) {
			log.Error().Err(err).Msg("Voice session error")
			if c.current(gen) {
				c.notifyError(err)
			}
		},
		OnDisconnect: func(reason string) {
			if !c.current(gen) {
				return
			}
			log.Info().Str("reason", reason).Msg("Voice session disconnected")
			_ = c.EndMeeting()
		},
	}
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// setStatus applies s if gen is still the live attempt
func (c *Controller) setStatus(gen uint64, s Status) {
	c.mu.Lock()
	if c.gen != gen || c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	c.mu.Unlock()
	c.notifyStatus(s)
}

func (c *Controller) notifyStatus(s Status) {
	if c.opts.Observer.OnStatusChange != nil {
		c.opts.Observer.OnStatusChange(s)
	}
}

func (c *Controller) notifySpeaking(speaking bool) {
	if c.opts.Observer.OnSpeakingChange != nil {
		c.opts.Observer.OnSpeakingChange(speaking)
	}
}

func (c *Controller) notifyError(err error) {
	if c.opts.Observer.OnError != nil {
		c.opts.Observer.OnError(err)
	}
}
