package cache

import (
	"sync"
	"time"
)

type entry struct {
	value      any
	insertedAt time.Time
}

// Memory is an in-memory cache with a fixed TTL and a hard entry cap.
// Overflow evicts the oldest-inserted entry first: plain FIFO, insertion
// order is the only order tracked. State is deliberately process-local;
// instances behind a load balancer each warm their own copy.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	order   []string
	ttl     time.Duration
	cap     int
	now     func() time.Time
}

// NewMemory returns an empty cache holding at most maxEntries values for at
// most ttl each.
func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Memory{
		entries: make(map[string]entry),
		ttl:     ttl,
		cap:     maxEntries,
		now:     time.Now,
	}
}

// WithClock replaces the cache's time source. Tests use this to step through
// TTL expiry deterministically.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

// Get returns the live value for key. Expired entries are dropped lazily on
// access and reported as misses.
func (m *Memory) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.now().Sub(e.insertedAt) >= m.ttl {
		m.remove(key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key, evicting the oldest entries when the cap is
// exceeded. Re-setting an existing key refreshes its value and TTL without
// changing its position in the eviction order.
func (m *Memory) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; exists {
		m.entries[key] = entry{value: value, insertedAt: m.now()}
		return
	}
	m.entries[key] = entry{value: value, insertedAt: m.now()}
	m.order = append(m.order, key)
	for len(m.entries) > m.cap {
		m.evictOldest()
	}
}

// Delete removes key if present.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(key)
}

// Len returns the number of stored entries, expired ones included until they
// are touched.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) evictOldest() {
	for len(m.order) > 0 {
		oldest := m.order[0]
		m.order = m.order[1:]
		if _, ok := m.entries[oldest]; ok {
			delete(m.entries, oldest)
			return
		}
	}
}

// remove must be called with the lock held.
func (m *Memory) remove(key string) {
	if _, ok := m.entries[key]; !ok {
		return
	}
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}
