package ai

import (
	"fmt"

	"mailcal/pkg/gemini"
)

// Config holds AI provider configuration
type Config struct {
	Provider ProviderType // "gemini", "ollama" or "auto"

	// Gemini config
	GeminiAPIKey string
	GeminiModel  string

	// Ollama config
	OllamaBaseURL string // e.g., "http://localhost:11434"
	OllamaModel   string // e.g., "llama3", "mistral"
}

// NewGenerator creates a Generator based on the config
// This is the factory function - switch AI provider by changing config.Provider
func NewGenerator(cfg Config) (Generator, error) {
	switch cfg.Provider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		return gemini.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel), nil

	case ProviderOllama:
		return NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel), nil

	case ProviderAuto, "":
		ollama := NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel)
		if cfg.GeminiAPIKey == "" {
			return ollama, nil
		}
		return NewFallbackService(gemini.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel), ollama), nil

	default:
		return nil, fmt.Errorf("unknown AI_PROVIDER %q", cfg.Provider)
	}
}
