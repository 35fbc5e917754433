package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Memory is an in-process cache with lazy TTL expiry and a bounded size.
// When full, expired entries are purged first and then an arbitrary entry
// is evicted.
type Memory[V any] struct {
	mu         sync.Mutex
	items      map[string]entry[V]
	maxEntries int
	now        func() time.Time
	closed     bool
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	maxEntries int
	now        func() time.Time
}

// WithMaxEntries caps the number of stored entries.
func WithMaxEntries(n int) MemoryOption {
	return func(o *memoryOptions) { o.maxEntries = n }
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(o *memoryOptions) { o.now = now }
}

// NewMemory creates an in-process cache.
func NewMemory[V any](opts ...MemoryOption) *Memory[V] {
	o := &memoryOptions{maxEntries: 10000, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return &Memory[V]{
		items:      make(map[string]entry[V]),
		maxEntries: o.maxEntries,
		now:        o.now,
	}
}

func (m *Memory[V]) Get(_ context.Context, key string) (V, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V
	e, ok := m.items[key]
	if !ok {
		return zero, ErrNotFound
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.items, key)
		return zero, ErrNotFound
	}
	return e.value, nil
}

func (m *Memory[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if ttl <= 0 {
		delete(m.items, key)
		return nil
	}

	if _, exists := m.items[key]; !exists && m.maxEntries > 0 && len(m.items) >= m.maxEntries {
		m.evict()
	}
	m.items[key] = entry[V]{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory[V]) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delete(m.items, key)
	return nil
}

// Len reports the number of stored entries, including expired ones not yet purged.
func (m *Memory[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Memory[V]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.items = make(map[string]entry[V])
	return nil
}

// evict must be called with mu held.
func (m *Memory[V]) evict() {
	now := m.now()
	for k, e := range m.items {
		if !now.Before(e.expiresAt) {
			delete(m.items, k)
		}
	}
	if len(m.items) < m.maxEntries {
		return
	}
	for k := range m.items {
		delete(m.items, k)
		return
	}
}

var _ Cache[any] = (*Memory[any])(nil)
