// Package metadata provides a lazily populated keyed store: reading a key
// that is not present creates, stores and returns a default record.
package metadata

import "sync"

// Factory builds the default record for a key on first access.
type Factory[K comparable, V any] func(key K) V

// Map is a get-or-create map that remembers insertion order.
// It is safe for concurrent use.
type Map[K comparable, V any] struct {
	mu      sync.RWMutex
	factory Factory[K, V]
	values  map[K]V
	order   []K
}

// New returns an empty Map which will use factory to create missing records.
func New[K comparable, V any](factory Factory[K, V]) *Map[K, V] {
	if factory == nil {
		panic("metadata: factory is nil")
	}
	return &Map[K, V]{
		factory: factory,
		values:  make(map[K]V),
	}
}

// Get returns the record for key, creating and storing the default record
// when the key has not been seen before. Get never reports absence.
func (m *Map[K, V]) Get(key K) V {
	m.mu.RLock()
	val, ok := m.values[key]
	m.mu.RUnlock()
	if ok {
		return val
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.values[key]; ok {
		return val
	}
	val = m.factory(key)
	m.values[key] = val
	m.order = append(m.order, key)
	return val
}

// Has reports whether a record for key has been stored.
func (m *Map[K, V]) Has(key K) bool {
	m.mu.RLock()
	_, ok := m.values[key]
	m.mu.RUnlock()
	return ok
}

// Set replaces the record for key.
func (m *Map[K, V]) Set(key K, val V) {
	m.mu.Lock()
	if _, ok := m.values[key]; !ok {
		m.order = append(m.order, key)
	}
	m.values[key] = val
	m.mu.Unlock()
}

// Delete drops the record for key. It returns true if a record was present.
func (m *Map[K, V]) Delete(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; !ok {
		return false
	}
	delete(m.values, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear drops every record.
func (m *Map[K, V]) Clear() {
	m.mu.Lock()
	m.values = make(map[K]V)
	m.order = nil
	m.mu.Unlock()
}

// Len returns the number of stored records, defaults included.
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// Keys returns the stored keys in insertion order.
func (m *Map[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]K, len(m.order))
	copy(keys, m.order)
	return keys
}

// Range calls fn for every record in insertion order until fn returns false.
// fn is called without the lock held, so it may use the map.
func (m *Map[K, V]) Range(fn func(key K, val V) bool) {
	for _, key := range m.Keys() {
		m.mu.RLock()
		val, ok := m.values[key]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		if !fn(key, val) {
			return
		}
	}
}

// All returns an iterator over the records in insertion order.
func (m *Map[K, V]) All() func(yield func(K, V) bool) {
	return func(yield func(K, V) bool) {
		m.Range(yield)
	}
}
