package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	eventdomain "mailcal/internal/event/domain"
	"mailcal/internal/processed/domain"
)

// fileProcessedRepository stores the set as a JSON array of ids in one file.
// Writes are not crash-atomic; a torn write surfaces as StoreCorruptError on the next Load.
type fileProcessedRepository struct {
	path string
}

// NewFileProcessedRepository creates a file-backed ProcessedRepository
func NewFileProcessedRepository(path string) ProcessedRepository {
	return &fileProcessedRepository{path: path}
}

func (r *fileProcessedRepository) Load(_ context.Context) (domain.ProcessedSet, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.NewProcessedSet(), nil
		}
		return nil, fmt.Errorf("unable to read processed file %s: %w", r.path, err)
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, &eventdomain.StoreCorruptError{Location: r.path, Err: err}
	}
	return domain.NewProcessedSet(ids...), nil
}

func (r *fileProcessedRepository) Save(_ context.Context, set domain.ProcessedSet) error {
	data, err := json.Marshal(set.IDs())
	if err != nil {
		return err
	}
	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("unable to write processed file %s: %w", r.path, err)
	}
	return nil
}

func (r *fileProcessedRepository) Close() error { return nil }
