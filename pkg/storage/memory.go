package storage

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory is an in-process Adapter used in tests and for offline play.
type Memory struct {
	mu    sync.RWMutex
	items map[string]json.RawMessage

	setErr error // injected failure for degraded-mode tests
}

// Ensure Memory implements Adapter.
var _ Adapter = (*Memory)(nil)

// NewMemory creates an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]json.RawMessage)}
}

// SetItemError configures every subsequent SetItem to fail with err.
// Pass nil to restore normal behavior.
func (m *Memory) SetItemError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr = err
}

func (m *Memory) GetItem(ctx context.Context, key string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.items[key]
	if !ok {
		return nil, nil
	}
	// Copy so callers cannot mutate the stored blob.
	out := make(json.RawMessage, len(value))
	copy(out, value)
	return out, nil
}

func (m *Memory) SetItem(ctx context.Context, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	stored := make(json.RawMessage, len(value))
	copy(stored, value)
	m.items[key] = stored
	return nil
}

func (m *Memory) RemoveItem(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]json.RawMessage)
	return nil
}

func (m *Memory) Close() error { return nil }

// Len reports the number of stored keys. Test helper.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
