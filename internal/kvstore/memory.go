package kvstore

import (
	"errors"
	"sync"

	"extranef/internal/nef"
)

// ErrQuotaExceeded is returned by Set when storing the value would push the
// store past its byte quota.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// MemoryStore is an in-memory implementation of nef.KVStore with an optional
// byte quota counted over keys and values. It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]string
	used  int64
	quota int64
}

// NewMemoryStore creates an empty store. A quota of 0 means unlimited.
func NewMemoryStore(quota int64) *MemoryStore {
	return &MemoryStore{
		items: make(map[string]string),
		quota: quota,
	}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.items[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.used + int64(len(value))
	if old, ok := m.items[key]; ok {
		used -= int64(len(old))
	} else {
		used += int64(len(key))
	}
	if m.quota > 0 && used > m.quota {
		return ErrQuotaExceeded
	}

	m.items[key] = value
	m.used = used
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.items[key]; ok {
		m.used -= int64(len(key) + len(old))
		delete(m.items, key)
	}
	return nil
}

// Used returns the number of bytes currently counted against the quota.
func (m *MemoryStore) Used() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}

func (m *MemoryStore) Close() error { return nil }

var _ nef.KVStore = (*MemoryStore)(nil)
