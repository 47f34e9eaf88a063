// Package ui is the terminal meeting console: transcript, tool calls and
// canvas of the running meeting, with keys to drive the session.
package ui

import (
	"context"
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"oscar/config"
	"oscar/model"
	"oscar/provider"
	"oscar/session"
	"oscar/state"
)

// Meeting is the part of session.Controller the console drives
type Meeting interface {
	StartMeeting(ctx context.Context) error
	EndMeeting() error
	SendText(text string) error
	Status() session.Status
	IsSpeaking() bool
}

// Exporter writes the view state to disk and returns the directory
type Exporter interface {
	Export(snap state.Snapshot) (string, error)
}

type Options struct {
	Store   *state.Store
	Meeting Meeting
	// Bridge must be the one whose Observer was given to the controller
	Bridge      *Bridge
	Exports     Exporter
	Keybindings *config.KeyBindingsConfig
	PreviewURL  string
	Version     string

	// Provider, when set, is pinged at startup
	Provider   model.Provider
	ProviderID string

	// CopyText and OpenURL default to the system clipboard and browser
	CopyText func(string) error
	OpenURL  func(string) error
}

type renderedMessage struct {
	width int
	text  string
}

type Console struct {
	ctx        context.Context
	store      *state.Store
	meeting    Meeting
	bridge     *Bridge
	exports    Exporter
	kb         *config.KeyBindingsConfig
	previewURL string
	version    string
	copyText   func(string) error
	openURL    func(string) error
	provider   model.Provider
	providerID string
	events     <-chan state.Event

	snap     state.Snapshot
	status   session.Status
	speaking bool

	width    int
	height   int
	viewport viewport.Model
	input    textinput.Model

	// agent markdown by message id
	rendered map[string]renderedMessage
	// first viewport line of each transcript message
	messageLines []int

	slot     int
	showHelp bool
	confirm  ConfirmationState
	err      *errorState
	search   searchState

	flash    string
	flashSeq int
	quitting bool
}

// New subscribes to the store and builds the console. The subscription ends
// with ctx.
func New(ctx context.Context, opts Options) (Console, error) {
	if opts.Store == nil || opts.Meeting == nil {
		return Console{}, errors.New("ui: store and meeting are required")
	}
	events, err := opts.Store.Subscribe(ctx)
	if err != nil {
		return Console{}, fmt.Errorf("failed to subscribe to view state: %w", err)
	}

	kb := opts.Keybindings
	if kb == nil {
		kb = config.DefaultKeybindings()
	}
	bridge := opts.Bridge
	if bridge == nil {
		bridge = NewBridge()
	}
	copyText := opts.CopyText
	if copyText == nil {
		copyText = clipboard.WriteAll
	}
	openURL := opts.OpenURL
	if openURL == nil {
		openURL = openBrowser
	}

	input := textinput.New()
	input.Placeholder = "Type to the agent..."
	input.Prompt = "> "
	input.CharLimit = 2000
	input.Focus()

	c := Console{
		ctx:        ctx,
		store:      opts.Store,
		meeting:    opts.Meeting,
		bridge:     bridge,
		exports:    opts.Exports,
		kb:         kb,
		previewURL: opts.PreviewURL,
		version:    opts.Version,
		copyText:   copyText,
		openURL:    openURL,
		provider:   opts.Provider,
		providerID: opts.ProviderID,
		events:     events,
		snap:       opts.Store.Snapshot(),
		status:     opts.Meeting.Status(),
		speaking:   opts.Meeting.IsSpeaking(),
		viewport:   viewport.New(80, 20),
		input:      input,
		rendered:   make(map[string]renderedMessage),
		search:     newSearchState(),
	}
	c.refreshTranscript(true)
	return c, nil
}

func (c Console) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, waitForEvent(c.events), c.bridge.wait()}
	if c.provider != nil {
		cmds = append(cmds, provider.PingProvider(c.providerID, c.provider))
	}
	return tea.Batch(cmds...)
}

// Snapshot returns the view state last seen by the console
func (c Console) Snapshot() state.Snapshot {
	return c.snap
}

// MeetingStatus returns the status shown in the header
func (c Console) MeetingStatus() session.Status {
	return c.status
}
