package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"oscar/model"
)

// DefaultMaxToolSteps bounds tool rounds per user turn
const DefaultMaxToolSteps = 4

const localSystemPrompt = `You are Oscar, a friendly product design assistant in a live meeting.
You help the user explore UI ideas by creating and refining HTML mockups.

- When the user describes a screen, call generate_mockup with a clear prompt.
- When the user asks for alternatives, pass variants=4.
- When the user asks to change what is shown, call edit_mockup.
- When the user wants something interactive or a working app, call vibe_code.
- Keep spoken replies to one or two short sentences.`

var errInboxFull = errors.New("agent is busy, try again")

// LocalAgent is a text-only agent driven by an LLM provider. It stands in
// for a voice agent when no ElevenLabs agent is configured.
type LocalAgent struct {
	provider model.Provider
	opts     Options
	cb       Callbacks
	maxSteps int

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan string
	done   chan struct{}

	mu      sync.Mutex
	started bool
	ended   bool
	history []model.Message
}

// NewLocalDialer returns a Dialer for a LocalAgent backed by p
func NewLocalDialer(p model.Provider, maxSteps int) Dialer {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxToolSteps
	}
	return func(opts Options, cb Callbacks) (Session, error) {
		if p == nil {
			return nil, errors.New("local agent needs a provider")
		}
		return &LocalAgent{
			provider: p,
			opts:     opts,
			cb:       cb,
			maxSteps: maxSteps,
			inbox:    make(chan string, 8),
			done:     make(chan struct{}),
			history: []model.Message{
				{Role: model.RoleSystem, Content: localSystemPrompt, Timestamp: time.Now()},
			},
		}, nil
	}
}

func (a *LocalAgent) Start(ctx context.Context) error {
	a.cb.status(StatusConnecting)
	if err := ctx.Err(); err != nil {
		a.cb.status(StatusDisconnected)
		return err
	}

	a.mu.Lock()
	// replies and tools keep running after Start returns
	a.ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
	a.started = true
	a.mu.Unlock()

	go a.loop()

	id := "local-" + uuid.New().String()
	log.Info().Str("conversation_id", id).Str("model", a.provider.GetModel()).Msg("Local agent connected")
	a.cb.status(StatusConnected)
	a.cb.connect(id)
	a.cb.mode(ModeListening)
	return nil
}

// SendText queues a user turn. The user's text is relayed as a transcript
// message right away.
func (a *LocalAgent) SendText(text string) error {
	text = strings.TrimSpace(text)

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started || a.ended {
		return ErrNotConnected
	}
	if text == "" {
		return nil
	}

	select {
	case a.inbox <- text:
	default:
		return errInboxFull
	}
	a.cb.message(Message{Source: SourceUser, Text: text})
	return nil
}

func (a *LocalAgent) End() error {
	a.mu.Lock()
	if !a.started || a.ended {
		a.ended = true
		a.mu.Unlock()
		return nil
	}
	a.ended = true
	close(a.inbox)
	a.mu.Unlock()

	// in-flight tool calls finish on their own; only the chat stops
	a.cb.status(StatusDisconnecting)
	a.cancel()
	return nil
}

// Done is closed once the agent has stopped answering
func (a *LocalAgent) Done() <-chan struct{} {
	return a.done
}

func (a *LocalAgent) loop() {
	defer func() {
		close(a.done)
		a.cb.status(StatusDisconnected)
		a.cb.disconnect("user")
	}()
	for text := range a.inbox {
		if a.ctx.Err() != nil {
			continue
		}
		a.turn(text)
	}
}

// turn answers one user message, running requested tools until the model
// replies without tool calls or maxSteps is reached.
func (a *LocalAgent) turn(text string) {
	a.history = append(a.history, model.Message{Role: model.RoleUser, Content: text, Timestamp: time.Now()})
	a.cb.mode(ModeSpeaking)
	defer a.cb.mode(ModeListening)

	for step := 0; step < a.maxSteps; step++ {
		var (
			reply    strings.Builder
			requests []model.ToolRequest
		)
		err := a.provider.ChatWithTools(a.ctx, a.history, a.opts.Tools, func(chunk string, calls []model.ToolRequest) error {
			reply.WriteString(chunk)
			requests = append(requests, calls...)
			return nil
		})
		if err != nil {
			if a.ctx.Err() == nil {
				log.Error().Err(err).Msg("Local agent chat failed")
				a.cb.fail(fmt.Errorf("agent: %w", err))
			}
			return
		}

		if content := strings.TrimSpace(reply.String()); content != "" {
			a.history = append(a.history, model.Message{Role: model.RoleAssistant, Content: content, Timestamp: time.Now()})
			a.cb.message(Message{Source: SourceAI, Text: content})
		}
		if len(requests) == 0 {
			return
		}

		for _, req := range requests {
			result := a.runTool(req)
			a.history = append(a.history, model.Message{
				Role:      model.RoleTool,
				Content:   fmt.Sprintf("Result of %s: %s", req.Name, result),
				Timestamp: time.Now(),
			})
		}
	}
	log.Warn().Int("max_steps", a.maxSteps).Msg("Local agent stopped after too many tool rounds")
}

func (a *LocalAgent) runTool(req model.ToolRequest) string {
	tool, ok := a.opts.ClientTools[req.Name]
	if !ok {
		return "Unknown tool: " + req.Name
	}
	// a tool call survives End so its result can still be recorded
	result, isError := tool(context.WithoutCancel(a.ctx), req.Arguments)
	log.Debug().Str("tool", req.Name).Bool("is_error", isError).Msg("Local agent tool finished")
	return result
}
