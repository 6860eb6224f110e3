package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"
)

// MemoryBackend keeps documents in process. It backs tests and single-node
// development runs.
type MemoryBackend struct {
	mu       sync.RWMutex
	data     map[string]map[string]json.RawMessage
	watchers map[string]map[int]func()
	nextID   int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data:     make(map[string]map[string]json.RawMessage),
		watchers: make(map[string]map[int]func()),
	}
}

func (m *MemoryBackend) List(_ context.Context, collection string) (map[string]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return maps.Clone(m.data[collection]), nil
}

func (m *MemoryBackend) Get(_ context.Context, collection, key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.data[collection][key]
	return doc, ok, nil
}

func (m *MemoryBackend) Query(_ context.Context, collection, field string, value json.RawMessage) (map[string]json.RawMessage, error) {
	var want any
	if err := json.Unmarshal(value, &want); err != nil {
		return nil, fmt.Errorf("decode query value: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]json.RawMessage)
	for key, doc := range m.data[collection] {
		var fields map[string]any
		if err := json.Unmarshal(doc, &fields); err != nil {
			continue
		}
		if got, ok := fields[field]; ok && reflect.DeepEqual(got, want) {
			result[key] = doc
		}
	}
	return result, nil
}

func (m *MemoryBackend) Set(_ context.Context, collection, key string, doc json.RawMessage) error {
	m.mu.Lock()
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]json.RawMessage)
	}
	m.data[collection][key] = slices.Clone(doc)
	notify := m.watchersOf(collection)
	m.mu.Unlock()

	fire(notify)
	return nil
}

func (m *MemoryBackend) Update(_ context.Context, collection, key string, fields map[string]json.RawMessage, deleted []string) error {
	m.mu.Lock()
	current := map[string]json.RawMessage{}
	if existing, ok := m.data[collection][key]; ok {
		if err := json.Unmarshal(existing, &current); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("decode %s/%s: %w", collection, key, err)
		}
	}

	for name, value := range fields {
		current[name] = value
	}
	for _, name := range deleted {
		delete(current, name)
	}

	doc, err := json.Marshal(current)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]json.RawMessage)
	}
	m.data[collection][key] = doc
	notify := m.watchersOf(collection)
	m.mu.Unlock()

	fire(notify)
	return nil
}

func (m *MemoryBackend) Remove(_ context.Context, collection, key string) error {
	m.mu.Lock()
	delete(m.data[collection], key)
	notify := m.watchersOf(collection)
	m.mu.Unlock()

	fire(notify)
	return nil
}

func (m *MemoryBackend) Watch(_ context.Context, collection string, notify func()) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	if m.watchers[collection] == nil {
		m.watchers[collection] = make(map[int]func())
	}
	m.watchers[collection][id] = notify

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watchers[collection], id)
	}, nil
}

func (m *MemoryBackend) Ping(context.Context) error {
	return nil
}

func (m *MemoryBackend) Close() error {
	return nil
}

// watchersOf must be called with m.mu held.
func (m *MemoryBackend) watchersOf(collection string) []func() {
	return slices.Collect(maps.Values(m.watchers[collection]))
}

func fire(notify []func()) {
	for _, fn := range notify {
		fn()
	}
}
