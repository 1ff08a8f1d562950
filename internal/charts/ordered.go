package charts

import "sort"

// OrderedMap is a map that remembers key insertion order. Builders never rely
// on that order for output; they sort keys explicitly before emitting.
type OrderedMap[K comparable, V any] struct {
	keys  []K
	items map[K]V
}

// NewOrderedMap returns an empty map.
func NewOrderedMap[K comparable, V any]() *OrderedMap[K, V] {
	return &OrderedMap[K, V]{items: make(map[K]V)}
}

// Set stores v under k. A new key is appended to the key order.
func (m *OrderedMap[K, V]) Set(k K, v V) {
	if _, ok := m.items[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.items[k] = v
}

// Get returns the value stored under k.
func (m *OrderedMap[K, V]) Get(k K) (V, bool) {
	v, ok := m.items[k]
	return v, ok
}

// Len returns the number of keys.
func (m *OrderedMap[K, V]) Len() int { return len(m.keys) }

// Keys returns keys in insertion order.
func (m *OrderedMap[K, V]) Keys() []K {
	out := make([]K, len(m.keys))
	copy(out, m.keys)
	return out
}

// SortedKeys returns keys ordered by less.
func (m *OrderedMap[K, V]) SortedKeys(less func(a, b K) bool) []K {
	out := m.Keys()
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
