package token

import (
	"context"
	"sync"
	"time"
)

const defaultMemoryCapacity = 100

type usedEntry struct {
	jti     string
	expires time.Time
}

// MemoryStore is an in-process ReplayStore. It holds at most capacity
// consumed-token marks; when full, the oldest half is evicted. Suitable
// for single-process deployments; marks do not survive a restart.
type MemoryStore struct {
	mu         sync.Mutex
	capacity   int
	used       map[string]time.Time
	order      []usedEntry
	watermarks map[string]time.Time
}

// NewMemoryStore creates a MemoryStore. capacity <= 0 selects the
// default of 100 entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryStore{
		capacity:   capacity,
		used:       make(map[string]time.Time),
		watermarks: make(map[string]time.Time),
	}
}

// MarkUsed implements ReplayStore. The whole check-and-mark runs under
// one lock, so a concurrent duplicate always observes the mark.
func (m *MemoryStore) MarkUsed(_ context.Context, userID, jti string, issuedAt time.Time, retain time.Duration) error {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if wm, ok := m.watermarks[userID]; ok && !issuedAt.After(wm) {
		return ErrTokenReused
	}
	if exp, ok := m.used[jti]; ok && exp.After(now) {
		return ErrTokenReused
	}

	if len(m.order) >= m.capacity {
		m.evictLocked(now)
	}

	exp := now.Add(retain)
	m.used[jti] = exp
	m.order = append(m.order, usedEntry{jti: jti, expires: exp})
	return nil
}

// evictLocked first drops expired marks, then, if still at capacity,
// the oldest half. Evicting expired refresh tokens is safe: they can no
// longer verify, so losing their mark cannot enable replay.
func (m *MemoryStore) evictLocked(now time.Time) {
	kept := m.order[:0]
	for _, e := range m.order {
		if e.expires.After(now) {
			kept = append(kept, e)
		} else {
			delete(m.used, e.jti)
		}
	}
	m.order = kept

	if len(m.order) >= m.capacity {
		half := len(m.order) / 2
		for _, e := range m.order[:half] {
			delete(m.used, e.jti)
		}
		m.order = append(m.order[:0], m.order[half:]...)
	}
}

// InvalidateUser implements ReplayStore.
func (m *MemoryStore) InvalidateUser(_ context.Context, userID string, at time.Time, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if wm, ok := m.watermarks[userID]; !ok || at.After(wm) {
		m.watermarks[userID] = at
	}
	return nil
}

// Len reports the number of live consumed-token marks.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}
