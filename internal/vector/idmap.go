package vector

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// IdentifierMap maps index positions to durable record keys. On disk it is a
// JSON array of keys whose element index is the position, written alongside
// the vector index it was built with.
type IdentifierMap struct {
	keys []int64
	mu   sync.RWMutex
}

// NewIdentifierMap creates an empty map.
func NewIdentifierMap() *IdentifierMap {
	return &IdentifierMap{keys: make([]int64, 0)}
}

// Append records keys for the next positions, in order.
func (m *IdentifierMap) Append(keys ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, keys...)
}

// Resolve returns the record key at position. The second return is false when
// the position is absent; callers drop such matches rather than failing.
func (m *IdentifierMap) Resolve(position int) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if position < 0 || position >= len(m.keys) {
		return 0, false
	}
	return m.keys[position], true
}

// Len returns the number of mapped positions.
func (m *IdentifierMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// Save writes the map as a JSON array to path.
func (m *IdentifierMap) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, err := json.Marshal(m.keys)
	if err != nil {
		return fmt.Errorf("marshal id map: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write id map: %w", err)
	}
	return nil
}

// LoadIdentifierMap reads a map previously written by Save.
func LoadIdentifierMap(path string) (*IdentifierMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read id map: %w", err)
	}
	var keys []int64
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("parse id map: %w", err)
	}
	if keys == nil {
		keys = make([]int64, 0)
	}
	return &IdentifierMap{keys: keys}, nil
}
