package domain

import (
	"errors"
	"fmt"
)

// ErrNoJSONFound is returned when model output contains no {...} span
var ErrNoJSONFound = errors.New("no JSON object found in model output")

// snippetLen bounds how much offending text is kept on errors and in logs
const snippetLen = 200

// Snippet shortens text for error messages and log fields
func Snippet(text string) string {
	r := []rune(text)
	if len(r) <= snippetLen {
		return text
	}
	return string(r[:snippetLen]) + "..."
}

// MalformedJSONError means a {...} span was found but is not valid JSON even after repair
type MalformedJSONError struct {
	Snippet string
	Err     error
}

func (e *MalformedJSONError) Error() string {
	return fmt.Sprintf("malformed JSON in model output %q: %v", e.Snippet, e.Err)
}

func (e *MalformedJSONError) Unwrap() error { return e.Err }

// ModelCallError wraps a failure of the language model collaborator
type ModelCallError struct {
	Provider string
	Err      error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call failed (%s): %v", e.Provider, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }

// CalendarInsertError wraps a failure of the calendar collaborator
type CalendarInsertError struct {
	Title string
	Err   error
}

func (e *CalendarInsertError) Error() string {
	return fmt.Sprintf("calendar insert failed for %q: %v", e.Title, e.Err)
}

func (e *CalendarInsertError) Unwrap() error { return e.Err }

// AuthError is a mailbox or calendar credential failure. Fatal at startup.
type AuthError struct {
	Service string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.Service, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// StoreCorruptError means persisted processed-set state exists but cannot be read back
type StoreCorruptError struct {
	Location string
	Err      error
}

func (e *StoreCorruptError) Error() string {
	return fmt.Sprintf("processed store at %s is corrupt: %v", e.Location, e.Err)
}

func (e *StoreCorruptError) Unwrap() error { return e.Err }

// IsFatal reports whether err must stop the process before polling starts
func IsFatal(err error) bool {
	var authErr *AuthError
	var corruptErr *StoreCorruptError
	return errors.As(err, &authErr) || errors.As(err, &corruptErr)
}
