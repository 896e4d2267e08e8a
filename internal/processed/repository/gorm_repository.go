package repository

import (
	"context"
	"fmt"
	"time"

	"mailcal/internal/processed/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormProcessedRepository keeps one processed_emails row per handled mail
type gormProcessedRepository struct {
	db *gorm.DB
}

// NewGormProcessedRepository creates a SQL-backed ProcessedRepository and migrates its table
func NewGormProcessedRepository(db *gorm.DB) (ProcessedRepository, error) {
	if err := db.AutoMigrate(&domain.ProcessedEmail{}); err != nil {
		return nil, fmt.Errorf("failed to migrate processed_emails: %w", err)
	}
	return &gormProcessedRepository{db: db}, nil
}

func (r *gormProcessedRepository) Load(ctx context.Context) (domain.ProcessedSet, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&domain.ProcessedEmail{}).Pluck("message_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load processed emails: %w", err)
	}
	return domain.NewProcessedSet(ids...), nil
}

// deleteChunk keeps every IN list well below the driver bind-parameter limits
const deleteChunk = 1000

// Save makes the table match set. Only ids missing from the table are inserted
// and only ids no longer in set are deleted.
func (r *gormProcessedRepository) Save(ctx context.Context, set domain.ProcessedSet) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []string
		if err := tx.Model(&domain.ProcessedEmail{}).Pluck("message_id", &existing).Error; err != nil {
			return fmt.Errorf("failed to read processed emails: %w", err)
		}
		stored := domain.NewProcessedSet(existing...)

		var removed []string
		for _, id := range existing {
			if !set.Has(id) {
				removed = append(removed, id)
			}
		}
		for start := 0; start < len(removed); start += deleteChunk {
			end := min(start+deleteChunk, len(removed))
			if err := tx.Where("message_id IN ?", removed[start:end]).Delete(&domain.ProcessedEmail{}).Error; err != nil {
				return fmt.Errorf("failed to delete processed emails: %w", err)
			}
		}

		now := time.Now()
		var rows []domain.ProcessedEmail
		for _, id := range set.IDs() {
			if stored.Has(id) {
				continue
			}
			rows = append(rows, domain.ProcessedEmail{
				ID:          uuid.New().String(),
				MessageID:   id,
				ProcessedAt: now,
			})
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).CreateInBatches(rows, 500).Error
	})
}

func (r *gormProcessedRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
