package usecase

import (
	"encoding/json"
	"regexp"

	"mailcal/internal/event/domain"
)

// Keys the extraction prompt asks the model to return
const (
	KeyName        = "name"
	KeyStart       = "start datetime"
	KeyEnd         = "end datetime"
	KeyLocation    = "location"
	KeyDescription = "description"
)

var (
	// first "{" through the last "}", spanning newlines
	jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)
	// a comma directly (modulo whitespace) before a closing bracket or brace
	trailingCommaPattern = regexp.MustCompile(`,\s*([\]}])`)
)

// DecodeExtraction pulls the JSON object out of free-form model output and
// maps its keys onto a RawExtraction. The only repair applied is dropping
// trailing commas; anything else that fails to parse is a MalformedJSONError.
func DecodeExtraction(raw string) (domain.RawExtraction, error) {
	span := jsonObjectPattern.FindString(raw)
	if span == "" {
		return domain.RawExtraction{}, domain.ErrNoJSONFound
	}

	repaired := trailingCommaPattern.ReplaceAllString(span, "$1")

	var obj map[string]any
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		return domain.RawExtraction{}, &domain.MalformedJSONError{
			Snippet: domain.Snippet(span),
			Err:     err,
		}
	}

	return domain.RawExtraction{
		Name:        stringField(obj, KeyName),
		StartText:   stringField(obj, KeyStart),
		EndText:     stringField(obj, KeyEnd),
		Location:    stringField(obj, KeyLocation),
		Description: stringField(obj, KeyDescription),
	}, nil
}

// stringField returns nil for missing, null and non-string values
func stringField(obj map[string]any, key string) *string {
	v, ok := obj[key].(string)
	if !ok {
		return nil
	}
	return &v
}
