package repository

import (
	"context"
	"fmt"

	"mailcal/pkg/config"
	"mailcal/pkg/database"
)

// Store backend names accepted in PROCESSED_STORE
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
)

// NewProcessedRepository builds the backend selected by cfg.ProcessedStore
func NewProcessedRepository(ctx context.Context, cfg *config.Config) (ProcessedRepository, error) {
	switch cfg.ProcessedStore {
	case StoreFile, "":
		return NewFileProcessedRepository(cfg.ProcessedFile), nil

	case StorePostgres:
		db, err := database.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return NewGormProcessedRepository(db)

	case StoreSQLite:
		db, err := database.NewSQLiteConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return NewGormProcessedRepository(db)

	case StoreRedis:
		rdb, err := database.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		return NewRedisProcessedRepository(rdb, cfg.ProcessedRedisKey), nil

	default:
		return nil, fmt.Errorf("unknown PROCESSED_STORE %q (want file, postgres, sqlite or redis)", cfg.ProcessedStore)
	}
}
