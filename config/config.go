// Package config provides a concurrency-safe runtime configuration store
// with change subscriptions and YAML loading. Pipelines and wrappers read
// switches like debug tracing from it; subscribers react to updates without
// polling.
package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Listener receives the new value whenever its key changes.
type Listener func(key string, value any)

type subscription struct {
	id string
	fn Listener
}

// Store is an in-memory key-value configuration store. All methods are safe
// for concurrent use; listeners run outside the store lock.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
	subs   map[string][]subscription
}

// New creates an empty configuration store.
func New() *Store {
	return &Store{
		values: make(map[string]any),
		subs:   make(map[string][]subscription),
	}
}

// Get returns the value for key, nil when unset.
func (s *Store) Get(key string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.values[key]
}

// GetBool returns the boolean value for key, or fallback when the key is
// unset or not a bool.
func (s *Store) GetBool(key string, fallback bool) bool {
	if v, ok := s.Get(key).(bool); ok {
		return v
	}

	return fallback
}

// GetInt returns the integer value for key, or fallback.
func (s *Store) GetInt(key string, fallback int) int {
	switch v := s.Get(key).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// GetFloat returns the float value for key, or fallback.
func (s *Store) GetFloat(key string, fallback float64) float64 {
	switch v := s.Get(key).(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

// GetString returns the string value for key, or fallback.
func (s *Store) GetString(key, fallback string) string {
	if v, ok := s.Get(key).(string); ok {
		return v
	}

	return fallback
}

// Set stores a value and notifies the key's subscribers.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	subs := append([]subscription(nil), s.subs[key]...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(key, value)
	}
}

// Keys returns the currently set keys in unspecified order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}

	return keys
}

// Subscribe registers a listener for changes to key and returns an
// unsubscribe function.
func (s *Store) Subscribe(key string, fn Listener) (unsubscribe func()) {
	id := uuid.New().String()

	s.mu.Lock()
	s.subs[key] = append(s.subs[key], subscription{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		subs := s.subs[key]
		for i, sub := range subs {
			if sub.id == id {
				s.subs[key] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// BoolSwitch returns a function reading key as a boolean switch, suitable for
// wiring into handler.DebugWrapper.
func (s *Store) BoolSwitch(key string) func() bool {
	return func() bool {
		return s.GetBool(key, false)
	}
}

// LoadYAML merges the top-level mapping of a YAML document into the store.
// Nested mappings are flattened with dotted keys ("debug.handlers").
func (s *Store) LoadYAML(data []byte) error {
	doc := map[string]any{}

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: parse yaml: %w", err)
	}

	flattenInto(s, "", doc)

	return nil
}

// LoadYAMLFile reads and merges a YAML configuration file.
func (s *Store) LoadYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	return s.LoadYAML(data)
}

func flattenInto(s *Store, prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		if nested, ok := v.(map[string]any); ok {
			flattenInto(s, key, nested)
			continue
		}

		s.Set(key, v)
	}
}
