package gormrepository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"eventsync/internal/models"
	"eventsync/internal/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(&models.CacheEntry{}, &models.SyncState{}))
	return New(gdb)
}

func TestCacheEntries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.GetCacheEntry(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.UpsertCacheEntry(ctx, &models.CacheEntry{Key: "a", Value: "1"}))
	require.NoError(t, s.UpsertCacheEntry(ctx, &models.CacheEntry{Key: "a", Value: "2"}))
	require.NoError(t, s.UpsertCacheEntry(ctx, &models.CacheEntry{Key: "b", Value: "3"}))

	got, err = s.GetCacheEntry(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2", got.Value)

	require.NoError(t, s.DeleteCacheEntries(ctx, "a", "b"))
	got, err = s.GetCacheEntry(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSyncState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	state, err := s.GetSyncState(ctx, "events")
	require.NoError(t, err)
	assert.Nil(t, state)

	now := time.Now().UTC()
	msg := "boom"
	require.NoError(t, s.SaveSyncState(ctx, &models.SyncState{
		Scope: "events", Source: "ledger", RunID: "r1", LastAttemptAt: &now, LastError: &msg,
	}))
	hash := "0xabc"
	require.NoError(t, s.SaveSyncState(ctx, &models.SyncState{
		Scope: "events", Source: "ledger", RunID: "r2", TxHash: &hash, Appealed: true,
		LastAttemptAt: &now, LastSuccessAt: &now, StatsJSON: datatypes.JSON(`{"events":3}`),
	}))
	require.NoError(t, s.SaveSyncState(ctx, &models.SyncState{Scope: "other", Source: "sheets", RunID: "r3"}))

	state, err = s.GetSyncState(ctx, "events")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "r2", state.RunID)
	assert.True(t, state.Appealed)
	assert.Nil(t, state.LastError)
	require.NotNil(t, state.TxHash)
	assert.Equal(t, hash, *state.TxHash)

	all, err := s.ListSyncStates(ctx, repository.ListSyncStatesParams{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "events", all[0].Scope)

	src := "sheets"
	filtered, err := s.ListSyncStates(ctx, repository.ListSyncStatesParams{Source: &src})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "other", filtered[0].Scope)
}

func TestNilStore(t *testing.T) {
	var s *Store
	got, err := s.GetCacheEntry(context.Background(), "a")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, s.SaveSyncState(context.Background(), &models.SyncState{Scope: "x"}))
}
