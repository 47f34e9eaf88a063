package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"

	"oscar/mcp"
	"oscar/model"
	"oscar/ollama"
)

// AnthropicProvider implements model.Provider using Anthropic's official SDK.
type AnthropicProvider struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicProvider creates a new Anthropic provider instance.
//
// Parameters:
//   - baseURL: Anthropic API base URL (default: "https://api.anthropic.com")
//   - apiKey: Anthropic API key (required)
//   - model: Initial model to use (default: "claude-sonnet-4-5-20250929")
func NewAnthropicProvider(baseURL, apiKey, model string) (*AnthropicProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	anthropicModel := anthropic.ModelClaudeSonnet4_5_20250929
	if model != "" {
		anthropicModel = anthropic.Model(model)
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &AnthropicProvider{
		client:    &client,
		model:     anthropicModel,
		maxTokens: 8192,
	}, nil
}

func (p *AnthropicProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools streams text deltas and reports tool_use blocks once the
// message is complete.
func (p *AnthropicProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	anthropicMessages, systemPrompt := convertToAnthropicMessages(messages)

	if len(tools) > 0 {
		// Tool instructions go first, then caller system prompts
		instruction := anthropic.TextBlockParam{Text: buildToolInstructions(tools)}
		systemPrompt = append([]anthropic.TextBlockParam{instruction}, systemPrompt...)
	}

	params := anthropic.MessageNewParams{
		Model:     p.model,
		Messages:  anthropicMessages,
		MaxTokens: p.maxTokens,
	}
	if len(systemPrompt) > 0 {
		params.System = systemPrompt
	}
	if len(tools) > 0 {
		params.Tools = mcp.ToAnthropicTools(tools)
	}

	log.Debug().Str("provider", "anthropic").Str("model", string(p.model)).Int("messages", len(messages)).Msg("chat request")

	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	msg := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return fmt.Errorf("error accumulating message: %w", err)
		}

		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && callback != nil {
				if err := callback(text.Text, nil); err != nil {
					return err
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic streaming error: %w", err)
	}

	if callback != nil {
		if toolCalls := extractToolCalls(msg.Content); len(toolCalls) > 0 {
			return callback("", toolCalls)
		}
	}

	return nil
}

func (p *AnthropicProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	page, err := p.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to list Anthropic models: %w", err)
	}

	result := make([]ollama.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		result = append(result, ollama.ModelInfo{
			Name:         m.ID,
			InternalName: m.ID,
			Provider:     "anthropic",
		})
	}

	return result, nil
}

func (p *AnthropicProvider) GetModel() string {
	return string(p.model)
}

func (p *AnthropicProvider) GetDisplayName() string {
	return string(p.model)
}

func (p *AnthropicProvider) SetModel(model string) {
	p.model = anthropic.Model(model)
}

// Ping implements Provider.Ping. Anthropic has no health endpoint, so this
// lists models.
func (p *AnthropicProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return fmt.Errorf("anthropic ping failed: %w", err)
	}
	return nil
}

// convertToAnthropicMessages splits system messages out, since Anthropic
// takes the system prompt as a separate parameter.
func convertToAnthropicMessages(messages []model.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var systemBlocks []anthropic.TextBlockParam
	anthropicMsgs := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: msg.Content})
		case model.RoleAssistant:
			anthropicMsgs = append(anthropicMsgs,
				anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)),
			)
		default:
			// user and tool results
			anthropicMsgs = append(anthropicMsgs,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)),
			)
		}
	}

	return anthropicMsgs, systemBlocks
}

func extractToolCalls(content []anthropic.ContentBlockUnion) []model.ToolRequest {
	var toolCalls []model.ToolRequest

	for _, block := range content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}

		var args map[string]any
		if err := json.Unmarshal(toolUse.Input, &args); err != nil {
			log.Warn().Err(err).Str("tool", toolUse.Name).Msg("skipping tool call with unparseable input")
			continue
		}

		toolCalls = append(toolCalls, model.ToolRequest{
			ID:        toolUse.ID,
			Name:      toolUse.Name,
			Arguments: args,
		})
	}

	return toolCalls
}
