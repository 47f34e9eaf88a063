package provider

import (
	"context"
	"fmt"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/rs/zerolog/log"

	"oscar/mcp"
	"oscar/model"
	"oscar/ollama"
)

// OpenRouterProvider talks to OpenRouter, which is OpenAI-compatible but
// uses vendor-prefixed model names.
type OpenRouterProvider struct {
	*OpenAIProvider
}

// NewOpenRouterProvider creates a new OpenRouter provider instance.
//
// Parameters:
//   - baseURL: OpenRouter API base URL ("https://openrouter.ai/api/v1")
//   - apiKey: OpenRouter API key
//   - model: Initial model to use (can be changed with SetModel)
func NewOpenRouterProvider(baseURL, apiKey, model string) (*OpenRouterProvider, error) {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenRouter API key is required")
	}
	if model == "" {
		model = "google/gemini-2.0-flash-001"
	}

	return &OpenRouterProvider{
		OpenAIProvider: newOpenAICompatible("openrouter", baseURL, apiKey, model),
	}, nil
}

// shouldSkipToolInstructions reports models that understand tools natively
// and get confused by explicit prompting.
func shouldSkipToolInstructions(modelName string) bool {
	return strings.Contains(strings.ToLower(modelName), "qwen")
}

// OpenRouter requires tool names matching ^[a-zA-Z0-9_-]{1,64}$.
// Example: "mockups.generate" -> "mockups__generate"
func convertToolNamesForOpenRouter(tools []mcptypes.Tool) []mcptypes.Tool {
	converted := make([]mcptypes.Tool, len(tools))
	for i, tool := range tools {
		converted[i] = tool
		converted[i].Name = strings.ReplaceAll(tool.Name, ".", "__")
	}
	return converted
}

func convertToolNameFromOpenRouter(toolName string) string {
	return strings.ReplaceAll(toolName, "__", ".")
}

func (p *OpenRouterProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

func (p *OpenRouterProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	if len(tools) > 0 && !shouldSkipToolInstructions(p.model) {
		instruction := model.Message{
			Role:    model.RoleSystem,
			Content: buildToolInstructions(tools),
		}
		messages = append([]model.Message{instruction}, messages...)
	}
	if len(tools) > 0 && shouldSkipToolInstructions(p.model) {
		log.Debug().Str("model", p.model).Msg("openrouter: skipping tool instructions")
	}

	params := openai.ChatCompletionNewParams{
		Messages: ConvertToOpenAIMessages(messages),
		Model:    openai.ChatModel(p.model),
	}
	if len(tools) > 0 {
		params.Tools = mcp.ToOpenAITools(convertToolNamesForOpenRouter(tools))
	}

	return streamOpenAI(ctx, p.client, params, "openrouter", convertToolNameFromOpenRouter, callback)
}

// ListModels implements Provider.ListModels with prefix stripping.
func (p *OpenRouterProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	models, err := p.OpenAIProvider.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	for i := range models {
		models[i].Name = stripProviderPrefix(models[i].InternalName)
	}
	return models, nil
}

// GetDisplayName strips the vendor prefix.
// Example: "qwen/qwen3-coder:free" -> "qwen3-coder:free"
func (p *OpenRouterProvider) GetDisplayName() string {
	return stripProviderPrefix(p.model)
}

func stripProviderPrefix(modelName string) string {
	if idx := strings.Index(modelName, "/"); idx != -1 {
		return modelName[idx+1:]
	}
	return modelName
}
