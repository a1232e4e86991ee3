package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hupe1980/dialogmesh/core"
)

// MemoryStorage is a volatile core.Storage keeping JSON encoded items in a
// process local map. It is safe for concurrent access and best suited for
// tests or single instance deployments. Items are stored encoded so values
// handed out by Read never alias stored state.
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryStorage constructs an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string][]byte)}
}

// Read returns decoded values for the keys that exist.
func (s *MemoryStorage) Read(_ context.Context, keys []string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if k == "" {
			return nil, core.ErrEmptyKey
		}
		raw, ok := s.items[k]
		if !ok {
			continue
		}
		v, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Write encodes and stores every change, replacing existing items.
func (s *MemoryStorage) Write(_ context.Context, changes map[string]any) error {
	encoded := make(map[string][]byte, len(changes))
	for k, v := range changes {
		if k == "" {
			return core.ErrEmptyKey
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("write %q: %w", k, err)
		}
		encoded[k] = raw
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, raw := range encoded {
		s.items[k] = raw
	}
	return nil
}

// Delete removes the keys. Missing keys are ignored.
func (s *MemoryStorage) Delete(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.items, k)
	}
	return nil
}

// Len returns the number of stored items.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func decode(raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func marshal(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
