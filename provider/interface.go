// Package provider implements model.Provider for the hosted and local LLMs
// that produce mockup HTML and drive the local voice agent.
//
// Supported backends:
//   - gemini: Google Gemini through its OpenAI-compatible endpoint
//   - openai: OpenAI chat completions
//   - openrouter: OpenRouter (OpenAI-compatible, vendor-prefixed model names)
//   - anthropic: Claude messages API
//   - ollama: local Ollama server
//
// All providers stream text through model.StreamCallback and report tool
// requests as model.ToolRequest values. Type conversions between the
// provider SDKs and model types live in conversions.go.
//
// # Usage
//
//	p, err := provider.NewProvider(provider.Config{
//	    Type:   provider.ProviderTypeGemini,
//	    APIKey: os.Getenv("GEMINI_API_KEY"),
//	})
//	if err != nil {
//	    // handle error
//	}
//	err = p.Chat(ctx, messages, callback)
package provider

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeGemini     ProviderType = "gemini"
	ProviderTypeOllama     ProviderType = "ollama"
	ProviderTypeOpenRouter ProviderType = "openrouter"
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeAnthropic  ProviderType = "anthropic"
)

// Config holds provider-specific configuration.
type Config struct {
	Type    ProviderType
	BaseURL string
	Model   string
	APIKey  string // Unused for Ollama
	// MaxTokens caps a single response. Zero uses the provider default.
	MaxTokens int64
}
