package usecase

import (
	"context"
	"fmt"

	"mailcal/internal/event/domain"
)

// maxBodyRunes keeps very long mails inside the model's context window
const maxBodyRunes = 10000

const extractionPrompt = `
Extract event details from the following text.
Return ONLY valid JSON with these keys:
name, start datetime, end datetime, location, description.
Ensure start and end datetimes are in human-readable form.
Text: %s
`

// Generator is the text-in/text-out language model
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Extractor asks the model for an event description and decodes the answer
type Extractor struct {
	generator Generator
	provider  string
}

func NewExtractor(generator Generator, provider string) *Extractor {
	return &Extractor{generator: generator, provider: provider}
}

// BuildPrompt renders the fixed extraction prompt for a mail body
func BuildPrompt(body string) string {
	r := []rune(body)
	if len(r) > maxBodyRunes {
		body = string(r[:maxBodyRunes])
	}
	return fmt.Sprintf(extractionPrompt, body)
}

// Extract returns the decoded extraction and the raw model output (for diagnostics).
// Model failures are wrapped in *ModelCallError; decode failures are returned as is.
func (e *Extractor) Extract(ctx context.Context, body string) (domain.RawExtraction, string, error) {
	output, err := e.generator.Generate(ctx, BuildPrompt(body))
	if err != nil {
		return domain.RawExtraction{}, "", &domain.ModelCallError{Provider: e.provider, Err: err}
	}

	raw, err := DecodeExtraction(output)
	if err != nil {
		return domain.RawExtraction{}, output, err
	}
	return raw, output, nil
}
