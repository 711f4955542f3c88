package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"eventsync/internal/cache"
	"eventsync/internal/metrics"
	"eventsync/internal/models"
	"eventsync/internal/repository"
	"eventsync/internal/schedule"
	"eventsync/internal/source"
)

// ErrNoEvents is returned when a completed sync still reads back nothing.
var ErrNoEvents = errors.New("no events returned after sync")

const DefaultScope = "events"

// Snapshot is what callers are shown: the events with fresh statuses and
// where they came from.
type Snapshot struct {
	Events       []models.Event `json:"events"`
	LastSyncedAt *time.Time     `json:"last_synced_at,omitempty"`
	FromCache    bool           `json:"from_cache"`
	Warning      string         `json:"warning,omitempty"`
}

// EventStore reads events through the local cache and writes through it on
// every successful fetch. Concurrent syncs for the same scope share one run.
type EventStore struct {
	Source     source.Source
	Cache      *cache.Local
	Classifier schedule.Classifier
	Repo       repository.Repository
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	Scope      string
	Now        func() time.Time

	// SyncCooldown stops an empty Load from starting another sync while the
	// previous attempt is more recent than this. Zero always syncs.
	SyncCooldown time.Duration
	// SyncTimeout bounds a shared sync run. Zero leaves it unbounded.
	SyncTimeout time.Duration

	group   singleflight.Group
	hubOnce sync.Once
	hub     *snapshotHub

	// flightMu guards the waiter count of the running sync and its cancel.
	flightMu  sync.Mutex
	waiters   int
	runCancel context.CancelFunc

	mu          sync.RWMutex
	last        *Snapshot
	lastAttempt time.Time
}

// Load performs the cheap read. An empty read escalates to Sync unless a sync
// was attempted within SyncCooldown; any failure falls back to the cached
// snapshot with statuses recomputed.
func (s *EventStore) Load(ctx context.Context) (Snapshot, error) {
	batch, err := s.Source.Fetch(ctx)
	if err == nil && len(batch.Events) > 0 {
		now := s.now()
		events := transformEvents(batch.Events, s.Classifier, now)
		return s.commit(ctx, events, now), nil
	}
	if err == nil {
		if at, cooling := s.coolingDown(ctx); cooling {
			s.logger().Info("source is empty, sync cooling down",
				zap.String("source", s.Source.Name()),
				zap.Time("last_attempt", at),
			)
			return s.fallback(ctx, fmt.Errorf("%w: last sync attempt at %s", ErrNoEvents, at.UTC().Format(time.RFC3339)))
		}
		s.logger().Info("source is empty, syncing", zap.String("source", s.Source.Name()))
		snap, syncErr := s.Sync(ctx)
		if syncErr == nil {
			return snap, nil
		}
		err = syncErr
	}
	return s.fallback(ctx, err)
}

// Sync asks the source to refresh, waits for it, and reads the result back.
// A failed sync leaves the cache as it was. The run is shared by every caller
// and outlives any one of them; it is cancelled once no caller is waiting.
func (s *EventStore) Sync(ctx context.Context) (Snapshot, error) {
	s.joinSync()
	defer s.leaveSync()

	ch := s.group.DoChan(s.scope(), func() (any, error) {
		runCtx, cancel := s.startRun(ctx)
		defer s.endRun(cancel)
		return s.sync(runCtx)
	})
	select {
	case res := <-ch:
		if res.Shared {
			s.logger().Debug("sync coalesced", zap.String("scope", s.scope()))
		}
		snap, _ := res.Val.(Snapshot)
		return snap, res.Err
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (s *EventStore) joinSync() {
	s.flightMu.Lock()
	s.waiters++
	s.flightMu.Unlock()
}

func (s *EventStore) leaveSync() {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	s.waiters--
	if s.waiters == 0 && s.runCancel != nil {
		s.runCancel()
	}
}

func (s *EventStore) startRun(parent context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(parent)
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.SyncTimeout > 0 {
		ctx, cancel = context.WithTimeout(base, s.SyncTimeout)
	} else {
		ctx, cancel = context.WithCancel(base)
	}
	s.flightMu.Lock()
	s.runCancel = cancel
	if s.waiters == 0 {
		cancel()
	}
	s.flightMu.Unlock()
	return ctx, cancel
}

func (s *EventStore) endRun(cancel context.CancelFunc) {
	s.flightMu.Lock()
	s.runCancel = nil
	s.flightMu.Unlock()
	cancel()
}

// coolingDown reports the last sync attempt and whether it is too recent for
// an empty read to start another one.
func (s *EventStore) coolingDown(ctx context.Context) (time.Time, bool) {
	if s.SyncCooldown <= 0 {
		return time.Time{}, false
	}
	s.mu.RLock()
	at := s.lastAttempt
	s.mu.RUnlock()
	if at.IsZero() && s.Repo != nil {
		if st, err := s.Repo.GetSyncState(ctx, s.scope()); err == nil && st != nil && st.LastAttemptAt != nil {
			at = *st.LastAttemptAt
		}
	}
	if at.IsZero() {
		return at, false
	}
	return at, s.now().Sub(at) < s.SyncCooldown
}

func (s *EventStore) sync(ctx context.Context) (Snapshot, error) {
	started := s.now()
	s.mu.Lock()
	s.lastAttempt = started
	s.mu.Unlock()
	runID := uuid.NewString()
	name := s.Source.Name()
	log := s.logger().With(zap.String("run_id", runID), zap.String("source", name))
	log.Info("sync started")

	res, err := s.Source.Refresh(ctx)
	if err != nil {
		err = fmt.Errorf("refresh %s: %w", name, err)
		s.finish(ctx, log, runID, started, res, 0, err)
		return Snapshot{}, err
	}
	batch, err := s.Source.Fetch(ctx)
	if err != nil {
		err = fmt.Errorf("read %s after refresh: %w", name, err)
		s.finish(ctx, log, runID, started, res, 0, err)
		return Snapshot{}, err
	}
	if len(batch.Events) == 0 {
		s.finish(ctx, log, runID, started, res, 0, ErrNoEvents)
		return Snapshot{}, ErrNoEvents
	}

	now := s.now()
	snap := s.commit(ctx, transformEvents(batch.Events, s.Classifier, now), now)
	s.finish(ctx, log, runID, started, res, len(snap.Events), nil)
	return snap, nil
}

// ClearCache drops the persisted snapshot. The source is not touched.
func (s *EventStore) ClearCache(ctx context.Context) error {
	if err := s.Cache.Clear(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()
	s.Metrics.SetCachedEvents(0)
	s.getHub().publish(Snapshot{Events: []models.Event{}})
	s.logger().Info("event cache cleared")
	return nil
}

// HasEvents reports whether the last snapshot served had any events.
func (s *EventStore) HasEvents() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last != nil && len(s.last.Events) > 0
}

func (s *EventStore) LastSyncedAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil || s.last.LastSyncedAt == nil {
		return nil
	}
	t := *s.last.LastSyncedAt
	return &t
}

// Last returns the most recent snapshot served, if any.
func (s *EventStore) Last() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Snapshot{}, false
	}
	return *s.last, true
}

// Subscribe streams every snapshot the store serves from now on. Call cancel
// to release the subscription; the channel is closed then.
func (s *EventStore) Subscribe(buf int) (<-chan Snapshot, func()) {
	return s.getHub().subscribe(buf)
}

func (s *EventStore) SyncStates(ctx context.Context, params repository.ListSyncStatesParams) ([]models.SyncState, error) {
	if s.Repo == nil {
		return []models.SyncState{}, nil
	}
	return s.Repo.ListSyncStates(ctx, params)
}

func (s *EventStore) commit(ctx context.Context, events []models.Event, at time.Time) Snapshot {
	at = at.UTC().Truncate(time.Second)
	snap := Snapshot{Events: events, LastSyncedAt: &at}
	if err := s.Cache.Save(ctx, events, at); err != nil {
		s.logger().Warn("failed to save event cache", zap.Error(err))
		snap.Warning = err.Error()
	} else {
		s.Metrics.SetCachedEvents(len(events))
	}
	s.remember(snap)
	return snap
}

func (s *EventStore) fallback(ctx context.Context, cause error) (Snapshot, error) {
	rec, ok, err := s.Cache.Load(ctx)
	if err != nil {
		s.logger().Warn("failed to read event cache", zap.Error(err))
	}
	if !ok {
		return Snapshot{}, cause
	}
	s.logger().Warn("serving cached events", zap.Error(cause), zap.Int("events", len(rec.Events)))
	s.Metrics.CacheFallback()

	snap := Snapshot{
		Events:    s.Classifier.Restamp(rec.Events, s.now()),
		FromCache: true,
		Warning:   cause.Error(),
	}
	if !rec.LastSyncedAt.IsZero() {
		at := rec.LastSyncedAt
		snap.LastSyncedAt = &at
	}
	s.remember(snap)
	return snap, nil
}

func (s *EventStore) remember(snap Snapshot) {
	s.mu.Lock()
	s.last = &snap
	s.mu.Unlock()
	s.getHub().publish(snap)
}

type syncStats struct {
	Events     int   `json:"events"`
	Attempts   int   `json:"attempts"`
	DurationMS int64 `json:"duration_ms"`
}

func (s *EventStore) finish(ctx context.Context, log *zap.Logger, runID string, started time.Time, res source.RefreshResult, count int, syncErr error) {
	finished := s.now()
	elapsed := finished.Sub(started)
	s.Metrics.SyncFinished(s.Source.Name(), syncErr, elapsed)
	if syncErr != nil {
		log.Warn("sync failed", zap.Duration("elapsed", elapsed), zap.Error(syncErr))
	} else {
		log.Info("sync finished",
			zap.Int("events", count),
			zap.Bool("appealed", res.Appealed),
			zap.Int("attempts", res.Attempts),
			zap.Duration("elapsed", elapsed),
		)
	}
	if s.Repo == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	state := &models.SyncState{
		Scope:         s.scope(),
		Source:        s.Source.Name(),
		RunID:         runID,
		Appealed:      res.Appealed,
		LastAttemptAt: &started,
	}
	if prev, err := s.Repo.GetSyncState(ctx, s.scope()); err == nil && prev != nil {
		state.LastSuccessAt = prev.LastSuccessAt
	}
	if res.TxHash != "" {
		hash := res.TxHash
		state.TxHash = &hash
	}
	if syncErr != nil {
		msg := syncErr.Error()
		state.LastError = &msg
	} else {
		state.LastSuccessAt = &finished
	}
	if raw, err := json.Marshal(syncStats{Events: count, Attempts: res.Attempts, DurationMS: elapsed.Milliseconds()}); err == nil {
		state.StatsJSON = datatypes.JSON(raw)
	}
	if err := s.Repo.SaveSyncState(ctx, state); err != nil {
		log.Warn("failed to record sync state", zap.Error(err))
	}
}

func (s *EventStore) getHub() *snapshotHub {
	s.hubOnce.Do(func() { s.hub = newSnapshotHub(s.Metrics.StreamDropped) })
	return s.hub
}

func (s *EventStore) scope() string {
	if sc := strings.TrimSpace(s.Scope); sc != "" {
		return sc
	}
	return DefaultScope
}

func (s *EventStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *EventStore) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
