package domain

import "time"

// DefaultTitle is used when the model did not return an event name
const DefaultTitle = "No Title"

// DefaultDuration is applied when no usable end time was extracted
const DefaultDuration = time.Hour

// RawExtraction is the unvalidated record decoded from model output.
// Every field is optional: nil means the key was missing, null or not a string.
type RawExtraction struct {
	Name        *string `json:"name,omitempty"`
	StartText   *string `json:"start datetime,omitempty"`
	EndText     *string `json:"end datetime,omitempty"`
	Location    *string `json:"location,omitempty"`
	Description *string `json:"description,omitempty"`
}

// NormalizedEvent is an insert-ready calendar event
type NormalizedEvent struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	TimeZone    string    `json:"time_zone"`
}

// Duration returns End - Start
func (e NormalizedEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}
