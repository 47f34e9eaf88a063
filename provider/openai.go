package provider

import (
	"context"
	"fmt"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog/log"

	"oscar/mcp"
	"oscar/model"
	"oscar/ollama"
)

// OpenAIProvider implements model.Provider against the OpenAI chat
// completions API. Gemini reuses it through the OpenAI-compatible endpoint.
type OpenAIProvider struct {
	client  openai.Client
	id      string
	model   string
	baseURL string
}

// NewOpenAIProvider creates a new OpenAI provider instance.
//
// Parameters:
//   - baseURL: OpenAI API base URL (default: "https://api.openai.com/v1")
//   - apiKey: OpenAI API key (required)
//   - model: Initial model to use (default: "gpt-4o-mini")
func NewOpenAIProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	return newOpenAICompatible("openai", baseURL, apiKey, model), nil
}

func newOpenAICompatible(id, baseURL, apiKey, model string) *OpenAIProvider {
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &OpenAIProvider{
		client:  client,
		id:      id,
		model:   model,
		baseURL: baseURL,
	}
}

// Chat implements Provider.Chat by delegating to ChatWithTools with no tools.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools implements Provider.ChatWithTools with streaming support.
func (p *OpenAIProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	if len(tools) > 0 {
		instruction := model.Message{
			Role:    model.RoleSystem,
			Content: buildToolInstructions(tools),
		}
		messages = append([]model.Message{instruction}, messages...)
	}

	params := openai.ChatCompletionNewParams{
		Messages: ConvertToOpenAIMessages(messages),
		Model:    openai.ChatModel(p.model),
	}
	if len(tools) > 0 {
		params.Tools = mcp.ToOpenAITools(tools)
	}

	log.Debug().Str("provider", p.id).Str("model", p.model).Int("messages", len(messages)).Int("tools", len(tools)).Msg("chat request")

	return streamOpenAI(ctx, p.client, params, p.id, nil, callback)
}

// streamOpenAI runs a streaming completion and forwards content deltas and
// finished tool calls. rename maps wire tool names back, nil keeps them.
func streamOpenAI(ctx context.Context, client openai.Client, params openai.ChatCompletionNewParams, id string, rename func(string) string, callback model.StreamCallback) error {
	stream := client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if tool, ok := acc.JustFinishedToolCall(); ok && callback != nil {
			name := tool.Name
			if rename != nil {
				name = rename(name)
			}
			req := model.ToolRequest{
				ID:        tool.ID,
				Name:      name,
				Arguments: ParseToolArguments(tool.Arguments),
			}
			if err := callback("", []model.ToolRequest{withRequestID(req)}); err != nil {
				return err
			}
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" && callback != nil {
			if err := callback(chunk.Choices[0].Delta.Content, nil); err != nil {
				return err
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("%s streaming error: %w", id, err)
	}

	return nil
}

// ListModels implements Provider.ListModels.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s models: %w", p.id, err)
	}

	result := make([]ollama.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		result = append(result, ollama.ModelInfo{
			Name:         m.ID,
			InternalName: m.ID,
			Provider:     p.id,
		})
	}

	return result, nil
}

func (p *OpenAIProvider) GetModel() string {
	return p.model
}

func (p *OpenAIProvider) GetDisplayName() string {
	return p.model
}

func (p *OpenAIProvider) SetModel(model string) {
	p.model = model
}

// Ping implements Provider.Ping by listing models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", p.id, err)
	}
	return nil
}
