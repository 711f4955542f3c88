package cache

import (
	"context"
	"time"

	"eventsync/internal/models"
	"eventsync/internal/repository"
)

// DBStore keeps values in the cache_entries table. TTLs are ignored.
type DBStore struct {
	Repo repository.Repository
}

func (s *DBStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	item, err := s.Repo.GetCacheEntry(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if item == nil {
		return nil, false, nil
	}
	return []byte(item.Value), true, nil
}

func (s *DBStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.Repo.UpsertCacheEntry(ctx, &models.CacheEntry{Key: key, Value: string(value)})
}

func (s *DBStore) Delete(ctx context.Context, key string) error {
	return s.Repo.DeleteCacheEntries(ctx, key)
}
