package ai

import (
	"context"
)

// Generator is the interface for text-in/text-out language model providers
// Implement this interface to add new AI providers (Gemini, Ollama, OpenAI, etc.)
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)
