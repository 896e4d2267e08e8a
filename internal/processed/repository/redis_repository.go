package repository

import (
	"context"
	"fmt"
	"strings"

	eventdomain "mailcal/internal/event/domain"
	"mailcal/internal/processed/domain"

	"github.com/redis/go-redis/v9"
)

// redisProcessedRepository keeps the set as a Redis SET under a single key
type redisProcessedRepository struct {
	rdb *redis.Client
	key string
}

// NewRedisProcessedRepository creates a Redis-backed ProcessedRepository
func NewRedisProcessedRepository(rdb *redis.Client, key string) ProcessedRepository {
	return &redisProcessedRepository{rdb: rdb, key: key}
}

func (r *redisProcessedRepository) Load(ctx context.Context) (domain.ProcessedSet, error) {
	ids, err := r.rdb.SMembers(ctx, r.key).Result()
	if err != nil && err != redis.Nil {
		// Key holds something other than a set
		if strings.HasPrefix(err.Error(), "WRONGTYPE") {
			return nil, &eventdomain.StoreCorruptError{Location: "redis key " + r.key, Err: err}
		}
		return nil, fmt.Errorf("failed to load processed set from redis: %w", err)
	}
	return domain.NewProcessedSet(ids...), nil
}

func (r *redisProcessedRepository) Save(ctx context.Context, set domain.ProcessedSet) error {
	ids := set.IDs()

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, r.key)
	if len(ids) > 0 {
		args := make([]any, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		pipe.SAdd(ctx, r.key, args...)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to save processed set to redis: %w", err)
	}
	return nil
}

func (r *redisProcessedRepository) Close() error {
	return r.rdb.Close()
}
