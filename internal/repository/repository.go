package repository

import (
	"context"

	"gorm.io/gorm"

	"eventsync/internal/models"
)

// Repository persists cache entries and per-scope sync state.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	GetCacheEntry(ctx context.Context, key string) (*models.CacheEntry, error)
	UpsertCacheEntry(ctx context.Context, item *models.CacheEntry) error
	DeleteCacheEntries(ctx context.Context, keys ...string) error

	GetSyncState(ctx context.Context, scope string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error
	ListSyncStates(ctx context.Context, params ListSyncStatesParams) ([]models.SyncState, error)
}

type ListSyncStatesParams struct {
	Limit  int
	Offset int
	Source *string
}
