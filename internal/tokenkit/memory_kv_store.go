package tokenkit

import (
	"context"
	"sync"
)

// MemoryKeyValueStore is an in-memory store intended for tests and dev.
type MemoryKeyValueStore struct {
	mutex   sync.RWMutex
	entries map[string]string
}

// NewMemoryKeyValueStore creates an empty in-memory store.
func NewMemoryKeyValueStore() *MemoryKeyValueStore {
	return &MemoryKeyValueStore{entries: make(map[string]string)}
}

// Get returns the value stored under key.
func (store *MemoryKeyValueStore) Get(ctx context.Context, key string) (string, bool, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	value, ok := store.entries[key]
	return value, ok, nil
}

// Put overwrites the value stored under key.
func (store *MemoryKeyValueStore) Put(ctx context.Context, key string, value string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.entries[key] = value
	return nil
}

// Len returns the number of stored keys.
func (store *MemoryKeyValueStore) Len() int {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	return len(store.entries)
}
