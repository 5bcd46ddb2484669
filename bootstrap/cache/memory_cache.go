// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package cache

import (
	"errors"
	"sync"
)

// A MemoryCache is a RegistryCache in process memory.
type MemoryCache struct {
	mu    sync.Mutex
	cache map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		cache: make(map[string][]byte),
	}
}

func (m *MemoryCache) Save(filename string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache[filename] = append([]byte(nil), data...)

	return nil
}

func (m *MemoryCache) Load(filename string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.cache[filename]

	if !ok {
		return nil, errors.New("file not in cache")
	}

	return append([]byte(nil), data...), nil
}

func (m *MemoryCache) State(filename string) FileState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cache[filename]; !ok {
		return Absent
	}

	return Good
}
