package provider

import (
	"fmt"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta/openai/"
	geminiDefaultModel = "gemini-2.0-flash"
)

// GeminiProvider talks to Google Gemini through its OpenAI-compatible
// endpoint, so it shares the OpenAI streaming and tool handling.
type GeminiProvider struct {
	*OpenAIProvider
}

// NewGeminiProvider creates a Gemini provider. The model defaults to
// gemini-2.0-flash.
func NewGeminiProvider(baseURL, apiKey, model string) (*GeminiProvider, error) {
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = geminiDefaultModel
	}

	return &GeminiProvider{
		OpenAIProvider: newOpenAICompatible("gemini", baseURL, apiKey, model),
	}, nil
}
