package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	DefaultURL   = "http://localhost:11434"
	DefaultModel = "qwen2.5-coder:latest"
)

type Client struct {
	client  *api.Client
	model   string
	baseURL string
	options map[string]any
}

type StreamCallback func(chunk string, toolCalls []api.ToolCall) error

// ModelInfo describes a model offered by any provider. Size is zero for
// hosted providers that do not report it.
type ModelInfo struct {
	Name         string // Display name (stripped for OpenRouter)
	Size         int64
	Provider     string // Provider ID: "ollama", "gemini", "openai", ...
	InternalName string // Full API name
}

func NewClient(baseURL, model string) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	return &Client{
		client:  api.NewClient(parsedURL, http.DefaultClient),
		model:   model,
		baseURL: baseURL,
		options: map[string]any{},
	}, nil
}

// SetOption sets a model option such as "temperature" or "num_ctx" for
// subsequent requests.
func (c *Client) SetOption(key string, value any) {
	c.options[key] = value
}

func (c *Client) Chat(ctx context.Context, messages []api.Message, callback StreamCallback) error {
	return c.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools sends a chat request with optional tool definitions.
// Requests with tools are not streamed so tool calls arrive in one response.
func (c *Client) ChatWithTools(ctx context.Context, messages []api.Message, tools []api.Tool, callback StreamCallback) error {
	stream := len(tools) == 0
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    tools,
		Stream:   &stream,
	}
	if len(c.options) > 0 {
		req.Options = c.options
	}

	respFunc := func(resp api.ChatResponse) error {
		if callback != nil {
			return callback(resp.Message.Content, resp.Message.ToolCalls)
		}
		return nil
	}

	if err := c.client.Chat(ctx, req, respFunc); err != nil {
		return fmt.Errorf("ollama chat: %w", err)
	}
	return nil
}

func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]ModelInfo, len(resp.Models))
	for i, model := range resp.Models {
		models[i] = ModelInfo{
			Name:         model.Name,
			Size:         model.Size,
			Provider:     "ollama",
			InternalName: model.Name,
		}
	}

	return models, nil
}

func (c *Client) SetModel(model string) {
	c.model = model
}

func (c *Client) GetModel() string {
	return c.model
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.List(ctx)
	return err
}

// toolCallingModels lists model families by tool calling support. The local
// voice agent needs it; HTML generation does not.
var toolCallingModels = map[string]bool{
	"qwen":      true,
	"llama3.1":  true,
	"llama3.2":  true,
	"llama3.3":  true,
	"mistral":   true,
	"command-r": true,
	"granite3":  true,

	"llama3":    false,
	"phi":       false,
	"gemma":     false,
	"codellama": false,
	"deepseek":  false,
}

// Most specific prefixes first so "llama3.2" is not matched as "llama3".
var orderedPrefixes = []string{
	"llama3.3", "llama3.2", "llama3.1",
	"command-r", "qwen", "mistral", "granite3",
	"codellama",
	"llama3",
	"deepseek", "phi", "gemma",
}

// SupportsToolCalling reports whether the current model is known to
// support Ollama's tool calling API.
func (c *Client) SupportsToolCalling() bool {
	return ModelSupportsToolCalling(c.model)
}

// ModelSupportsToolCalling checks a model name without a Client.
// Unknown families are reported as unsupported.
func ModelSupportsToolCalling(modelName string) bool {
	modelName = strings.ToLower(modelName)
	for _, prefix := range orderedPrefixes {
		if strings.HasPrefix(modelName, prefix) {
			return toolCallingModels[prefix]
		}
	}
	return false
}
