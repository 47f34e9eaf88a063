package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oscar/config"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		wantModel   string
	}{
		{
			name:      "gemini defaults",
			config:    Config{Type: ProviderTypeGemini, APIKey: "test-key"},
			wantModel: "gemini-2.0-flash",
		},
		{
			name:        "gemini without key",
			config:      Config{Type: ProviderTypeGemini},
			expectError: true,
		},
		{
			name:      "ollama defaults",
			config:    Config{Type: ProviderTypeOllama},
			wantModel: "qwen2.5-coder:latest",
		},
		{
			name:      "ollama custom model",
			config:    Config{Type: ProviderTypeOllama, BaseURL: "http://localhost:11434", Model: "llama3.1"},
			wantModel: "llama3.1",
		},
		{
			name:      "openai",
			config:    Config{Type: ProviderTypeOpenAI, Model: "gpt-4o", APIKey: "test-key"},
			wantModel: "gpt-4o",
		},
		{
			name:        "openai without key",
			config:      Config{Type: ProviderTypeOpenAI},
			expectError: true,
		},
		{
			name:      "openrouter",
			config:    Config{Type: ProviderTypeOpenRouter, APIKey: "test-key"},
			wantModel: "google/gemini-2.0-flash-001",
		},
		{
			name:      "anthropic",
			config:    Config{Type: ProviderTypeAnthropic, APIKey: "test-key", MaxTokens: 1024},
			wantModel: "claude-sonnet-4-5-20250929",
		},
		{
			name:        "unknown provider type",
			config:      Config{Type: ProviderType("unknown")},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.config)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, p.GetModel())
		})
	}
}

func TestAnthropicMaxTokensFromConfig(t *testing.T) {
	p, err := NewProvider(Config{Type: ProviderTypeAnthropic, APIKey: "k", MaxTokens: 1024})
	require.NoError(t, err)
	anthropic, ok := p.(*AnthropicProvider)
	require.True(t, ok)
	assert.EqualValues(t, 1024, anthropic.maxTokens)
}

func TestMapProviderIDToType(t *testing.T) {
	tests := map[string]ProviderType{
		"gemini":     ProviderTypeGemini,
		"google":     ProviderTypeGemini,
		"ollama":     ProviderTypeOllama,
		"openrouter": ProviderTypeOpenRouter,
		"openai":     ProviderTypeOpenAI,
		"claude":     ProviderTypeAnthropic,
		"mystery":    ProviderType("mystery"),
	}
	for id, want := range tests {
		assert.Equal(t, want, MapProviderIDToType(id), id)
	}
}

func TestFromConfigUsesCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	store := config.NewCredentialStore(config.SecurityPlainText, "")
	store.Set("openai", "stored-key")
	cfg := &config.Config{CredentialStore: store}

	p, err := FromConfig(cfg, "openai", "gpt-4.1")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", p.GetModel())

	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err = FromConfig(cfg, "anthropic", "")
	assert.Error(t, err, "no anthropic key")
}

func TestOpenRouterDisplayName(t *testing.T) {
	p, err := NewOpenRouterProvider("", "k", "qwen/qwen3-coder:free")
	require.NoError(t, err)
	assert.Equal(t, "qwen3-coder:free", p.GetDisplayName())
	assert.Equal(t, "mockups.generate", convertToolNameFromOpenRouter("mockups__generate"))
	assert.True(t, shouldSkipToolInstructions("qwen/qwen3-coder"), "qwen models skip tool instructions")
}
