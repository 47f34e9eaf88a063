package model

import (
	"context"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"oscar/ollama"
)

// Provider abstracts the LLM backends (Gemini, OpenAI, OpenRouter, Anthropic,
// Ollama) behind the provider-agnostic types of this package.
//
// The interface lives in model rather than provider so that the generation
// service and the local voice agent can depend on it without importing every
// SDK.
type Provider interface {
	// Chat sends messages and streams response chunks back via callback.
	Chat(ctx context.Context, messages []Message, callback StreamCallback) error

	// ChatWithTools sends messages with the available tools. Tool requests
	// made by the model are delivered through the callback.
	ChatWithTools(ctx context.Context, messages []Message, tools []mcptypes.Tool, callback StreamCallback) error

	// ListModels returns the models this provider can serve.
	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)

	// GetModel returns the model name used for API calls.
	GetModel() string

	// GetDisplayName returns the model name formatted for display.
	// For OpenRouter this strips the vendor prefix.
	GetDisplayName() string

	SetModel(model string)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// StreamCallback is called for each chunk of a streamed response. Tool
// requests arrive with an empty chunk.
type StreamCallback func(chunk string, toolCalls []ToolRequest) error

// ToolRequest is a tool invocation requested by a model.
type ToolRequest struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Collect returns a StreamCallback that writes every chunk to b.
// Tool requests are ignored.
func Collect(b *strings.Builder) StreamCallback {
	return func(chunk string, _ []ToolRequest) error {
		b.WriteString(chunk)
		return nil
	}
}
