package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"eventsync/internal/models"
)

const (
	DefaultPrefix = "eventsync_"
	eventsKey     = "events_data"
	lastSyncKey   = "last_sync"
)

// Record is the last persisted event snapshot.
type Record struct {
	Events       []models.Event
	LastSyncedAt time.Time
}

// Local persists the event list under two keys: the JSON array of events and
// the RFC3339 time of the sync that produced it. Statuses are not stored.
type Local struct {
	Store  Store
	Prefix string
	Logger *zap.Logger

	mu sync.Mutex
}

func NewLocal(store Store, prefix string, logger *zap.Logger) *Local {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Local{Store: store, Prefix: prefix, Logger: logger}
}

func (l *Local) EventsKey() string   { return l.Prefix + eventsKey }
func (l *Local) LastSyncKey() string { return l.Prefix + lastSyncKey }

func (l *Local) Save(ctx context.Context, events []models.Event, at time.Time) error {
	stripped := make([]models.Event, len(events))
	for i, ev := range events {
		ev.Status = ""
		stripped[i] = ev
	}
	payload, err := json.Marshal(stripped)
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.Store.Set(ctx, l.EventsKey(), payload, 0); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := l.Store.Set(ctx, l.LastSyncKey(), []byte(at.UTC().Format(time.RFC3339)), 0); err != nil {
		return fmt.Errorf("save last sync: %w", err)
	}
	return nil
}

// Load returns ok=false when no usable snapshot exists. A corrupt snapshot is
// treated as absent.
func (l *Local) Load(ctx context.Context) (Record, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, found, err := l.Store.Get(ctx, l.EventsKey())
	if err != nil {
		return Record{}, false, fmt.Errorf("load events: %w", err)
	}
	if !found {
		return Record{}, false, nil
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec.Events); err != nil {
		l.warn("discarding unreadable cached events", err)
		return Record{}, false, nil
	}

	ts, found, err := l.Store.Get(ctx, l.LastSyncKey())
	if err != nil {
		return Record{}, false, fmt.Errorf("load last sync: %w", err)
	}
	if found {
		if at, perr := time.Parse(time.RFC3339, strings.TrimSpace(string(ts))); perr == nil {
			rec.LastSyncedAt = at
		} else {
			l.warn("ignoring unreadable last sync time", perr)
		}
	}
	return rec, true, nil
}

func (l *Local) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.Store.Delete(ctx, l.EventsKey()); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	if err := l.Store.Delete(ctx, l.LastSyncKey()); err != nil {
		return fmt.Errorf("clear last sync: %w", err)
	}
	return nil
}

func (l *Local) warn(msg string, err error) {
	if l.Logger != nil {
		l.Logger.Warn(msg, zap.String("key_prefix", l.Prefix), zap.Error(err))
	}
}
