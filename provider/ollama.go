package provider

import (
	"context"
	"fmt"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog/log"

	"oscar/mcp"
	"oscar/model"
	"oscar/ollama"
)

// OllamaProvider wraps ollama.Client to implement model.Provider.
type OllamaProvider struct {
	client *ollama.Client
}

// NewOllamaProvider creates a new Ollama provider instance. Empty baseURL
// and model fall back to the ollama package defaults.
func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	client, err := ollama.NewClient(baseURL, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	// Full HTML documents overflow the default context window
	client.SetOption("num_ctx", 16384)

	return &OllamaProvider{client: client}, nil
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools converts messages and tools to Ollama types and converts
// tool calls back to model.ToolRequest.
func (p *OllamaProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	var ollamaTools []api.Tool
	if len(tools) > 0 {
		if !p.client.SupportsToolCalling() {
			log.Warn().Str("model", p.client.GetModel()).Msg("model is not known to support tool calling")
		}
		ollamaTools = mcp.ToOllamaTools(tools)
	}

	ollamaCallback := func(chunk string, ollamaCalls []api.ToolCall) error {
		if callback == nil {
			return nil
		}
		return callback(chunk, ConvertToProviderToolCalls(ollamaCalls))
	}

	return p.client.ChatWithTools(ctx, ConvertToOllamaMessages(messages), ollamaTools, ollamaCallback)
}

func (p *OllamaProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return p.client.ListModels(ctx)
}

func (p *OllamaProvider) GetModel() string {
	return p.client.GetModel()
}

func (p *OllamaProvider) GetDisplayName() string {
	return p.client.GetModel()
}

func (p *OllamaProvider) SetModel(model string) {
	p.client.SetModel(model)
}

func (p *OllamaProvider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}
