package ai

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog/log"
)

// FallbackService tries Gemini first (better extraction quality) and falls
// back to Ollama when Gemini fails, e.g. on quota exhaustion.
type FallbackService struct {
	gemini Generator
	ollama Generator
}

// NewFallbackService creates a new fallback service with both providers
func NewFallbackService(gemini, ollama Generator) *FallbackService {
	return &FallbackService{
		gemini: gemini,
		ollama: ollama,
	}
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := err.(net.Error); ok {
		return true
	}

	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	}

	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	quotaIndicators := []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource_exhausted",
		"resource exhausted",
	}

	for _, indicator := range quotaIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

// Generate implements Generator
func (f *FallbackService) Generate(ctx context.Context, prompt string) (string, error) {
	var geminiErr error
	if f.gemini != nil {
		result, err := f.gemini.Generate(ctx, prompt)
		if err == nil {
			return result, nil
		}
		geminiErr = err
		if ctx.Err() != nil {
			return "", fmt.Errorf("gemini generation failed: %w", err)
		}

		if isQuotaError(err) {
			log.Warn().Err(err).Msg("ai: gemini quota exhausted, falling back to ollama")
		} else {
			log.Warn().Err(err).Msg("ai: gemini error, falling back to ollama")
		}
	}

	if f.ollama != nil {
		result, err := f.ollama.Generate(ctx, prompt)
		if err == nil {
			return result, nil
		}

		// a cancelled run looks like a dropped connection
		if ctx.Err() == nil && isConnectionError(err) && f.gemini != nil && geminiErr != nil && !isQuotaError(geminiErr) {
			log.Warn().Err(err).Msg("ai: ollama unreachable, retrying gemini once")
			return f.gemini.Generate(ctx, prompt)
		}
		return "", fmt.Errorf("ollama generation failed: %w", err)
	}

	if geminiErr != nil {
		return "", fmt.Errorf("gemini generation failed: %w", geminiErr)
	}
	return "", fmt.Errorf("no AI provider available")
}
