package coord

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Store. A single mutex gives it the same atomicity
// guarantees as the Redis scripts, which makes it suitable both for tests and
// for single-node development without a Redis instance.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time // injectable clock for testing
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetClock replaces the store's time source. Test use only.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// live returns the entry for key if it exists and has not expired, pruning it
// otherwise. Must be called with m.mu held.
func (m *Memory) live(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) SetEx(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) IncrBy(_ context.Context, key string, n int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incrLocked(key, n), nil
}

func (m *Memory) DecrBy(_ context.Context, key string, n int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incrLocked(key, -n), nil
}

// incrLocked adjusts the integer at key, preserving any existing expiry.
// Must be called with m.mu held.
func (m *Memory) incrLocked(key string, delta int64) int64 {
	e, ok := m.live(key)
	var cur int64
	if ok {
		cur, _ = strconv.ParseInt(e.value, 10, 64)
	}
	cur += delta
	m.entries[key] = memoryEntry{value: strconv.FormatInt(cur, 10), expiresAt: e.expiresAt}
	return cur
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return nil
	}
	e.expiresAt = m.now().Add(ttl)
	m.entries[key] = e
	return nil
}

func (m *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return -2 * time.Second, nil
	}
	if e.expiresAt.IsZero() {
		return -1 * time.Second, nil
	}
	return e.expiresAt.Sub(m.now()), nil
}

func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) BoundedIncr(_ context.Context, key string, amount, limit int64, ttl time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.incrLocked(key, amount)
	if total > limit {
		m.incrLocked(key, -amount)
		return false, 0, nil
	}
	e := m.entries[key]
	e.expiresAt = m.now().Add(ttl)
	m.entries[key] = e
	return true, total, nil
}

func (m *Memory) CompareAndSwap(_ context.Context, key, old, new string, ttl time.Duration) (string, bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)
	if !ok {
		return "", false, false, nil
	}
	if e.value != old {
		return e.value, true, false, nil
	}
	m.entries[key] = memoryEntry{value: new, expiresAt: m.now().Add(ttl)}
	return e.value, true, true, nil
}
