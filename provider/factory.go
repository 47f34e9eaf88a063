package provider

import (
	"fmt"

	"oscar/config"
	"oscar/model"
)

// NewProvider creates a provider based on configuration.
//
// Returns an error if the provider type is unknown or the provider-specific
// constructor fails (missing API key, invalid URL).
func NewProvider(cfg Config) (model.Provider, error) {
	switch cfg.Type {
	case ProviderTypeGemini:
		return NewGeminiProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderTypeOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model)
	case ProviderTypeOpenRouter:
		return NewOpenRouterProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderTypeOpenAI:
		return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderTypeAnthropic:
		p, err := NewAnthropicProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		if cfg.MaxTokens > 0 {
			p.maxTokens = cfg.MaxTokens
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// MapProviderIDToType converts a config provider ID to a ProviderType.
// Unknown IDs are passed through and rejected by NewProvider.
func MapProviderIDToType(id string) ProviderType {
	switch id {
	case "gemini", "google":
		return ProviderTypeGemini
	case "ollama":
		return ProviderTypeOllama
	case "openrouter":
		return ProviderTypeOpenRouter
	case "openai":
		return ProviderTypeOpenAI
	case "anthropic", "claude":
		return ProviderTypeAnthropic
	default:
		return ProviderType(id)
	}
}

// FromConfig builds the provider with the given ID using the base URL and
// API key from cfg. An empty modelName keeps the provider default.
func FromConfig(cfg *config.Config, id, modelName string) (model.Provider, error) {
	p, err := NewProvider(Config{
		Type:      MapProviderIDToType(id),
		BaseURL:   cfg.ProviderBaseURL(id),
		APIKey:    cfg.APIKey(id),
		Model:     modelName,
		MaxTokens: 8192,
	})
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", id, err)
	}
	return p, nil
}
