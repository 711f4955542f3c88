package service

import "sync"

// snapshotHub fans snapshots out to subscribers. Slow subscribers miss
// updates instead of blocking the publisher; onDrop is told about each miss.
type snapshotHub struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Snapshot
	nextID uint64
	onDrop func()
}

func newSnapshotHub(onDrop func()) *snapshotHub {
	return &snapshotHub{subs: map[uint64]chan Snapshot{}, onDrop: onDrop}
}

func (h *snapshotHub) subscribe(buf int) (<-chan Snapshot, func()) {
	if buf <= 0 {
		buf = 4
	}
	ch := make(chan Snapshot, buf)
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (h *snapshotHub) publish(snap Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- snap:
		default:
			if h.onDrop != nil {
				h.onDrop()
			}
		}
	}
}
