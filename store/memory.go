package store

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Memory is an in-memory Store. Keys are enumerated in byte order, the same
// order a Pebble store yields, so both behave alike under full scans.
type Memory struct {
	lock sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	value, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(value), true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	m.lock.Lock()
	m.data[key] = slices.Clone(value)
	m.lock.Unlock()
	return nil
}

func (m *Memory) Remove(ctx context.Context, key string) error {
	m.lock.Lock()
	delete(m.data, key)
	m.lock.Unlock()
	return nil
}

func (m *Memory) Keys(ctx context.Context) ([]string, error) {
	return m.KeysWithPrefix(ctx, "")
}

func (m *Memory) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	m.lock.RLock()
	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.lock.RUnlock()
	slices.Sort(keys)
	return keys, nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.lock.Lock()
	m.data = make(map[string][]byte)
	m.lock.Unlock()
	return nil
}

// Len is the number of stored keys.
func (m *Memory) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.data)
}
