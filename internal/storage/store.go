// Package storage provides the persistence port the offline queue writes
// through, with a sqlite-backed store and an in-memory fallback for
// environments where durable storage is unavailable.
package storage

import (
	"sync"

	"go.uber.org/zap"
)

// Store is the persistence port: namespaced string keys, whole values
// written atomically per call.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string)
}

// MemoryStore keeps values in process memory only.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

// Fallback wraps a primary store and switches permanently to an in-memory
// store the first time a write fails (quota exhaustion, private-mode style
// restrictions). The failure is logged once, never surfaced to callers.
type Fallback struct {
	mu       sync.Mutex
	primary  Store
	memory   *MemoryStore
	degraded bool
	logger   *zap.Logger
}

// NewFallback wraps the primary store.
func NewFallback(primary Store, logger *zap.Logger) *Fallback {
	return &Fallback{
		primary: primary,
		memory:  NewMemoryStore(),
		logger:  logger,
	}
}

func (f *Fallback) active() Store {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.degraded {
		return f.memory
	}
	return f.primary
}

func (f *Fallback) Get(key string) (string, bool) {
	return f.active().Get(key)
}

func (f *Fallback) Set(key, value string) error {
	f.mu.Lock()
	degraded := f.degraded
	f.mu.Unlock()
	if degraded {
		return f.memory.Set(key, value)
	}
	if err := f.primary.Set(key, value); err != nil {
		f.mu.Lock()
		f.degraded = true
		f.mu.Unlock()
		f.logger.Warn("Persistent storage unavailable, falling back to memory",
			zap.Error(err),
		)
		return f.memory.Set(key, value)
	}
	return nil
}

func (f *Fallback) Remove(key string) {
	f.active().Remove(key)
}

// Degraded reports whether the fallback switched to memory.
func (f *Fallback) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}
