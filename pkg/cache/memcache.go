// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Client with per-entry expiry.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: map[string]memoryEntry{}}
}

// Get implements Client.
func (mem *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	entry, ok := mem.entries[key]
	if !ok || (!entry.expires.IsZero() && time.Now().After(entry.expires)) {
		delete(mem.entries, key)
		return nil, ErrMiss.New("%q", key)
	}
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Put implements Client. A zero ttl stores the entry without expiry.
func (mem *Memory) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	entry := memoryEntry{value: stored}
	if ttl > 0 {
		entry.expires = time.Now().Add(ttl)
	}
	mem.entries[key] = entry
	return nil
}

// Del implements Client.
func (mem *Memory) Del(ctx context.Context, key string) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	delete(mem.entries, key)
	return nil
}

// Close implements Client.
func (mem *Memory) Close() error { return nil }
