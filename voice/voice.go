// Package voice connects to a conversational agent. The agent speaks with
// the user, relays transcripts and calls client tools on this side.
package voice

import (
	"context"
	"errors"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

var (
	ErrUnsupportedConnection = errors.New("unsupported connection type")
	ErrNotConnected          = errors.New("voice session not connected")
	ErrMissingAgentID        = errors.New("agent id is required")
)

const (
	ConnectionWebSocket = "websocket"
	ConnectionWebRTC    = "webrtc"
)

// Message sources reported in transcripts
const (
	SourceUser = "user"
	SourceAI   = "ai"
)

// Status of the underlying connection
type Status string

const (
	StatusConnecting    Status = "connecting"
	StatusConnected     Status = "connected"
	StatusDisconnecting Status = "disconnecting"
	StatusDisconnected  Status = "disconnected"
)

// Mode is what the agent is doing right now
type Mode string

const (
	ModeSpeaking  Mode = "speaking"
	ModeListening Mode = "listening"
)

// Message is one transcript line from the session
type Message struct {
	Source string
	Text   string
}

// ClientTool runs a tool the agent asked for and returns the text handed
// back to it.
type ClientTool func(ctx context.Context, params map[string]any) (result string, isError bool)

// Options select the agent and the tools it may call
type Options struct {
	AgentID        string
	ConnectionType string
	ClientTools    map[string]ClientTool
	// Tools describes ClientTools for agents that need schemas up front
	Tools []mcptypes.Tool
}

// Callbacks observe a session. Any of them may be nil.
type Callbacks struct {
	OnConnect      func(conversationID string)
	OnDisconnect   func(reason string)
	OnMessage      func(Message)
	OnError        func(error)
	OnStatusChange func(Status)
	OnModeChange   func(Mode)
}

func (c Callbacks) connect(id string) {
	if c.OnConnect != nil {
		c.OnConnect(id)
	}
}

func (c Callbacks) disconnect(reason string) {
	if c.OnDisconnect != nil {
		c.OnDisconnect(reason)
	}
}

func (c Callbacks) message(m Message) {
	if c.OnMessage != nil {
		c.OnMessage(m)
	}
}

func (c Callbacks) fail(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

func (c Callbacks) status(s Status) {
	if c.OnStatusChange != nil {
		c.OnStatusChange(s)
	}
}

func (c Callbacks) mode(m Mode) {
	if c.OnModeChange != nil {
		c.OnModeChange(m)
	}
}

// Session is one live conversation
type Session interface {
	// Start connects and returns once the conversation is established
	Start(ctx context.Context) error
	// End closes the conversation. It is safe to call more than once.
	End() error
	// SendText sends typed user text to the agent
	SendText(text string) error
}

// Dialer creates a session for the given options
type Dialer func(opts Options, cb Callbacks) (Session, error)
