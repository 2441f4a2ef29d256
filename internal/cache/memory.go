// Package cache provides the small TTL caches used by feed discovery.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/techradar/internal/clock/system"
	"github.com/JakeFAU/techradar/internal/radar"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process TTL cache. Expired entries are dropped lazily on read.
type Memory struct {
	mu      sync.Mutex
	clock   radar.Clock
	entries map[string]entry
}

var _ radar.Cache = (*Memory)(nil)

// NewMemory builds a cache that reads time from clock (the system clock when nil).
func NewMemory(clock radar.Clock) *Memory {
	if clock == nil {
		clock = system.New()
	}
	return &Memory{clock: clock, entries: make(map[string]entry)}
}

// Get returns a copy of the cached value.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !m.clock.Now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Set stores value for ttl. A non-positive ttl never expires.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.clock.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

// Len reports how many entries are held, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
