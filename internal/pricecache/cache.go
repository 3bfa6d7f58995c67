// Package pricecache memoizes remote price lookups keyed by price-service
// coin ID and date. Negative results are cached too.
package pricecache

import (
	"context"
	"sync"
)

// Key identifies one remote lookup.
type Key struct {
	CoinID string
	Date   string
}

// Entry is a cached lookup result. Found is false for "no price exists".
type Entry struct {
	Price float64 `json:"price"`
	Found bool    `json:"found"`
}

// Cache stores lookup results. Implementations must be safe for concurrent
// use; concurrent writers of the same key store the same value.
type Cache interface {
	Get(ctx context.Context, key Key) (Entry, bool, error)
	Set(ctx context.Context, key Key, entry Entry) error
}

// Memory is an in-process Cache. It lives for one run and is never
// invalidated.
type Memory struct {
	mu      sync.RWMutex
	entries map[Key]Entry
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[Key]Entry)}
}

// Get returns the cached entry for key.
func (m *Memory) Get(_ context.Context, key Key) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

// Set stores entry under key.
func (m *Memory) Set(_ context.Context, key Key, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry
	return nil
}

// Len returns the number of cached keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
