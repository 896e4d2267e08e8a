package domain

import (
	"sort"
	"time"
)

// ProcessedSet is the set of mail identifiers already handled.
// An identifier in the set is never processed again.
type ProcessedSet map[string]struct{}

// NewProcessedSet builds a set from a list of identifiers
func NewProcessedSet(ids ...string) ProcessedSet {
	s := make(ProcessedSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id was already handled
func (s ProcessedSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Mark adds id and returns the set. Callers must Save after every Mark.
func (s ProcessedSet) Mark(id string) ProcessedSet {
	if s == nil {
		s = make(ProcessedSet)
	}
	s[id] = struct{}{}
	return s
}

// Forget removes id so the mail becomes eligible again
func (s ProcessedSet) Forget(id string) ProcessedSet {
	delete(s, id)
	return s
}

// IDs returns the identifiers in sorted order
func (s ProcessedSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ProcessedEmail is the SQL row backing one set member
type ProcessedEmail struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	MessageID   string    `json:"message_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	ProcessedAt time.Time `json:"processed_at"`
}

// TableName specifies the table name for ProcessedEmail
func (ProcessedEmail) TableName() string {
	return "processed_emails"
}
