package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAPIBase       = "https://api.elevenlabs.io"
	DefaultWebSocketBase = "wss://api.elevenlabs.io"

	conversationPath = "/v1/convai/conversation"
	signedURLPath    = "/v1/convai/conversation/get-signed-url"

	// speaking ends after this long without agent audio
	speakingHold = 800 * time.Millisecond
)

// ElevenLabsConfig points the client at the ConvAI API
type ElevenLabsConfig struct {
	// APIKey enables signed URLs for private agents. Public agents need none.
	APIKey        string
	APIBase       string
	WebSocketBase string
	HTTPClient    *http.Client
}

// NewElevenLabsDialer returns a Dialer for ElevenLabs conversational agents
func NewElevenLabsDialer(cfg ElevenLabsConfig) Dialer {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.WebSocketBase == "" {
		cfg.WebSocketBase = DefaultWebSocketBase
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return func(opts Options, cb Callbacks) (Session, error) {
		if opts.AgentID == "" {
			return nil, ErrMissingAgentID
		}
		switch opts.ConnectionType {
		case "", ConnectionWebSocket:
		case ConnectionWebRTC:
			return nil, fmt.Errorf("%w: %s (use websocket)", ErrUnsupportedConnection, opts.ConnectionType)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedConnection, opts.ConnectionType)
		}
		return &ElevenLabs{cfg: cfg, opts: opts, cb: cb, done: make(chan struct{})}, nil
	}
}

// ElevenLabs is a ConvAI conversation over a websocket
type ElevenLabs struct {
	cfg  ElevenLabsConfig
	opts Options
	cb   Callbacks

	writeMu sync.Mutex
	conn    *websocket.Conn

	conversationID string
	toolCtx        context.Context
	ending         atomic.Bool
	done           chan struct{}
	endOnce        sync.Once

	modeMu    sync.Mutex
	mode      Mode
	modeTimer *time.Timer
}

// server events
type inbound struct {
	Type string `json:"type"`

	Metadata *struct {
		ConversationID    string `json:"conversation_id"`
		AgentOutputFormat string `json:"agent_output_audio_format"`
	} `json:"conversation_initiation_metadata_event,omitempty"`

	UserTranscript *struct {
		Text string `json:"user_transcript"`
	} `json:"user_transcription_event,omitempty"`

	AgentResponse *struct {
		Text string `json:"agent_response"`
	} `json:"agent_response_event,omitempty"`

	Ping *struct {
		EventID int64 `json:"event_id"`
		PingMS  int64 `json:"ping_ms"`
	} `json:"ping_event,omitempty"`

	ToolCall *struct {
		Name       string         `json:"tool_name"`
		ID         string         `json:"tool_call_id"`
		Parameters map[string]any `json:"parameters"`
	} `json:"client_tool_call,omitempty"`
}

type initiation struct {
	Type string `json:"type"`
}

type pong struct {
	Type    string `json:"type"`
	EventID int64  `json:"event_id"`
}

type toolResult struct {
	Type       string `json:"type"`
	ToolCallID string `json:"tool_call_id"`
	Result     string `json:"result"`
	IsError    bool   `json:"is_error"`
}

type userMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Start dials the agent and waits for the conversation metadata
func (e *ElevenLabs) Start(ctx context.Context) error {
	e.cb.status(StatusConnecting)

	endpoint, err := e.endpoint(ctx)
	if err != nil {
		e.cb.status(StatusDisconnected)
		return err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		e.cb.status(StatusDisconnected)
		if resp != nil {
			return fmt.Errorf("dial agent: %w (status %s)", err, resp.Status)
		}
		return fmt.Errorf("dial agent: %w", err)
	}
	e.writeMu.Lock()
	e.conn = conn
	e.writeMu.Unlock()
	// tool calls outlive the session so late results reach the canvas guard
	e.toolCtx = context.WithoutCancel(ctx)

	abort := func(err error) error {
		e.writeMu.Lock()
		e.conn = nil
		e.writeMu.Unlock()
		conn.Close()
		e.cb.status(StatusDisconnected)
		return err
	}

	if err := e.write(initiation{Type: "conversation_initiation_client_data"}); err != nil {
		return abort(fmt.Errorf("send initiation: %w", err))
	}

	id, err := e.awaitMetadata(ctx, conn)
	if err != nil {
		return abort(err)
	}
	e.conversationID = id
	if e.ending.Load() {
		return abort(ErrNotConnected)
	}

	log.Info().Str("conversation_id", id).Str("agent_id", e.opts.AgentID).Msg("Voice session connected")
	e.cb.status(StatusConnected)
	e.cb.connect(id)
	e.setMode(ModeListening)

	go e.readLoop(conn)
	return nil
}

func (e *ElevenLabs) endpoint(ctx context.Context) (string, error) {
	if e.cfg.APIKey == "" {
		return e.cfg.WebSocketBase + conversationPath + "?agent_id=" + url.QueryEscape(e.opts.AgentID), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		e.cfg.APIBase+signedURLPath+"?agent_id="+url.QueryEscape(e.opts.AgentID), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)

	resp, err := e.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get signed url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get signed url: %s", resp.Status)
	}

	var body struct {
		SignedURL string `json:"signed_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode signed url: %w", err)
	}
	if body.SignedURL == "" {
		return "", errors.New("get signed url: empty response")
	}
	return body.SignedURL, nil
}

func (e *ElevenLabs) awaitMetadata(ctx context.Context, conn *websocket.Conn) (string, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		defer conn.SetReadDeadline(time.Time{})
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("await conversation metadata: %w", err)
		}
		var ev inbound
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		if ev.Type == "conversation_initiation_metadata" && ev.Metadata != nil {
			return ev.Metadata.ConversationID, nil
		}
		e.handle(ev)
	}
}

func (e *ElevenLabs) readLoop(conn *websocket.Conn) {
	defer close(e.done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			e.stopModeTimer()
			reason := "agent"
			if e.ending.Load() {
				reason = "user"
			} else if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Err(err).Msg("Voice session closed by agent")
			} else {
				log.Error().Err(err).Msg("Voice session read failed")
				e.cb.fail(err)
				reason = "error"
			}
			e.cb.status(StatusDisconnected)
			e.cb.disconnect(reason)
			return
		}

		var ev inbound
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Warn().Err(err).Msg("Ignoring malformed voice event")
			continue
		}
		e.handle(ev)
	}
}

func (e *ElevenLabs) handle(ev inbound) {
	switch ev.Type {
	case "user_transcript":
		if ev.UserTranscript != nil {
			e.cb.message(Message{Source: SourceUser, Text: ev.UserTranscript.Text})
		}
	case "agent_response":
		if ev.AgentResponse != nil {
			e.cb.message(Message{Source: SourceAI, Text: ev.AgentResponse.Text})
		}
	case "audio":
		e.setMode(ModeSpeaking)
	case "interruption":
		e.setMode(ModeListening)
	case "ping":
		if ev.Ping != nil {
			if err := e.write(pong{Type: "pong", EventID: ev.Ping.EventID}); err != nil {
				log.Warn().Err(err).Msg("Failed to answer ping")
			}
		}
	case "client_tool_call":
		if ev.ToolCall != nil {
			go e.runTool(ev.ToolCall.Name, ev.ToolCall.ID, ev.ToolCall.Parameters)
		}
	default:
		log.Trace().Str("type", ev.Type).Msg("Unhandled voice event")
	}
}

func (e *ElevenLabs) runTool(name, id string, params map[string]any) {
	logger := log.With().Str("tool", name).Str("tool_call_id", id).Logger()

	result := toolResult{Type: "client_tool_result", ToolCallID: id}
	if tool, ok := e.opts.ClientTools[name]; ok {
		result.Result, result.IsError = tool(e.toolCtx, params)
	} else {
		result.Result, result.IsError = "Unknown tool: "+name, true
	}

	if e.ending.Load() {
		logger.Debug().Msg("Session ended, dropping tool result")
		return
	}
	if err := e.write(result); err != nil {
		logger.Warn().Err(err).Msg("Failed to send tool result")
	}
}

// SendText sends typed text as a user turn. The agent does not echo typed
// text, so it is relayed as a user message here.
func (e *ElevenLabs) SendText(text string) error {
	if e.ending.Load() {
		return ErrNotConnected
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if err := e.write(userMessage{Type: "user_message", Text: text}); err != nil {
		return err
	}
	e.cb.message(Message{Source: SourceUser, Text: text})
	return nil
}

// End closes the conversation
func (e *ElevenLabs) End() error {
	var err error
	e.endOnce.Do(func() {
		e.ending.Store(true)

		e.writeMu.Lock()
		conn := e.conn
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		}
		e.writeMu.Unlock()

		if conn == nil {
			return
		}
		e.cb.status(StatusDisconnecting)
		err = conn.Close()
	})
	return err
}

// Done is closed once the read loop has stopped
func (e *ElevenLabs) Done() <-chan struct{} {
	return e.done
}

// ConversationID returns the id assigned by the agent
func (e *ElevenLabs) ConversationID() string {
	return e.conversationID
}

func (e *ElevenLabs) write(v any) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.conn == nil {
		return ErrNotConnected
	}
	return e.conn.WriteJSON(v)
}

func (e *ElevenLabs) setMode(m Mode) {
	e.modeMu.Lock()
	if m == ModeSpeaking {
		if e.modeTimer == nil {
			e.modeTimer = time.AfterFunc(speakingHold, func() { e.setMode(ModeListening) })
		} else {
			e.modeTimer.Reset(speakingHold)
		}
	}
	changed := e.mode != m
	e.mode = m
	e.modeMu.Unlock()

	if changed {
		e.cb.mode(m)
	}
}

func (e *ElevenLabs) stopModeTimer() {
	e.modeMu.Lock()
	defer e.modeMu.Unlock()
	if e.modeTimer != nil {
		e.modeTimer.Stop()
	}
}
