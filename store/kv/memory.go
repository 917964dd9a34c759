package kv

import (
	"context"
	"path"
	"sync"
	"time"
)

// MemoryStore is an in-process implementation of Store. It is the default for
// single-instance deployments and the backend used by tests; Redis is only
// needed for multi-instance cache sharing.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]*memoryEntry
}

type memoryEntry struct {
	value    []byte
	list     [][]byte
	isList   bool
	expireAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*memoryEntry)}
}

// get returns the live entry for key, dropping it first if expired.
// Caller must hold mu.
func (m *MemoryStore) get(key string) *memoryEntry {
	entry, ok := m.data[key]
	if !ok {
		return nil
	}
	if entry.expired(time.Now()) {
		delete(m.data, key)
		return nil
	}
	return entry
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.get(key)
	if entry == nil || entry.isList {
		return nil, nil
	}
	return entry.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := &memoryEntry{value: value}
	if ttl > 0 {
		entry.expireAt = time.Now().Add(ttl)
	}
	m.data[key] = entry
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *MemoryStore) Scan(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var keys []string
	for k, entry := range m.data {
		if entry.expired(now) {
			delete(m.data, k)
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *MemoryStore) ListAppend(_ context.Context, key string, values ...[]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.get(key)
	if entry == nil {
		entry = &memoryEntry{isList: true}
		m.data[key] = entry
	}
	for _, v := range values {
		cp := make([]byte, len(v))
		copy(cp, v)
		entry.list = append(entry.list, cp)
	}
	return nil
}

func (m *MemoryStore) ListTrim(_ context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.get(key)
	if entry == nil || !entry.isList {
		return nil
	}
	lo, hi, empty := resolveRange(start, stop, int64(len(entry.list)))
	if empty {
		delete(m.data, key)
		return nil
	}
	entry.list = entry.list[lo : hi+1]
	return nil
}

func (m *MemoryStore) ListRange(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.get(key)
	if entry == nil || !entry.isList {
		return nil, nil
	}
	lo, hi, empty := resolveRange(start, stop, int64(len(entry.list)))
	if empty {
		return nil, nil
	}
	out := make([][]byte, 0, hi-lo+1)
	for _, v := range entry.list[lo : hi+1] {
		out = append(out, v)
	}
	return out, nil
}

func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.get(key)
	if entry == nil {
		return nil
	}
	if ttl > 0 {
		entry.expireAt = time.Now().Add(ttl)
	} else {
		delete(m.data, key)
	}
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]*memoryEntry)
	return nil
}

// resolveRange maps Redis-style start/stop indices (negative counts from the
// tail, stop inclusive) onto [lo, hi] bounds within a list of length n.
func resolveRange(start, stop, n int64) (lo, hi int64, empty bool) {
	if n == 0 {
		return 0, 0, true
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n || stop < 0 {
		return 0, 0, true
	}
	return start, stop, false
}
