package nl2sql

import (
	"fmt"

	"github.com/askdb/askdb/internal/config"
)

// New builds the translator configured by cfg. An unknown provider or a
// missing API key fails here so the process refuses to start instead of
// failing on the first question.
func New(cfg config.AIConfig) (Translator, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiTranslator(GeminiConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case "openai":
		return NewOpenAITranslator(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case "anthropic":
		return NewAnthropicTranslator(AnthropicConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
