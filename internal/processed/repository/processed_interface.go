package repository

import (
	"context"

	"mailcal/internal/processed/domain"
)

// ProcessedRepository persists the set of handled mail identifiers
type ProcessedRepository interface {
	// Load reads the persisted set. Returns an empty set when nothing was persisted yet,
	// and a *StoreCorruptError when persisted state exists but cannot be parsed.
	Load(ctx context.Context) (domain.ProcessedSet, error)
	// Save overwrites the persisted state with set
	Save(ctx context.Context, set domain.ProcessedSet) error
	// Close releases the underlying resource
	Close() error
}
