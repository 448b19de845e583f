// resolution_map.go: Generic key to element index with a pluggable conflict policy
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

// ConflictFunc decides which element keeps key. It returns the winner and
// true, or false when neither element may stay. For a self-conflict
// (existing == candidate) it must return false.
type ConflictFunc[K comparable, V comparable] func(existing, candidate V, key K) (V, bool)

// ResolutionMap builds an unambiguous index from keys to elements.
//
// Adding an element registers each of its keys. When a key is already taken
// the conflict function arbitrates:
//   - no winner: both elements are retracted with all their keys
//   - the existing element wins: the candidate is retracted, including any
//     keys it registered before the conflicting one
//   - the candidate wins: the existing element is retracted and the
//     candidate continues registering its remaining keys
//
// Retracted keys become free again; a later element may claim them.
type ResolutionMap[K comparable, V comparable] struct {
	getKeys   func(V) []K
	resolve   ConflictFunc[K, V]
	onRetract func(element V, key K)

	index  map[K]V
	keysOf map[V][]K
	order  []V
}

// NewResolutionMap creates an empty map.
func NewResolutionMap[K comparable, V comparable](getKeys func(V) []K, resolve func(existing, candidate V, key K) (V, bool)) *ResolutionMap[K, V] {
	return &ResolutionMap[K, V]{
		getKeys: getKeys,
		resolve: resolve,
		index:   make(map[K]V),
		keysOf:  make(map[V][]K),
	}
}

// OnRetract registers a hook called once per retraction with the retracted
// element and the key whose conflict caused it.
func (m *ResolutionMap[K, V]) OnRetract(fn func(element V, key K)) *ResolutionMap[K, V] {
	m.onRetract = fn
	return m
}

// Add registers element under all of its keys. It returns an error only
// when the conflict function violates its contract; in that case the
// element is left out of the map.
func (m *ResolutionMap[K, V]) Add(element V) error {
	if _, present := m.keysOf[element]; present {
		return nil
	}

	var registered []K
	for _, key := range m.getKeys(element) {
		existing, taken := m.index[key]
		if !taken {
			m.index[key] = element
			registered = append(registered, key)
			continue
		}

		if existing == element {
			if _, keep := m.resolve(element, element, key); keep {
				m.unregister(registered)
				return NewResolutionContractError(key)
			}
			m.unregister(registered)
			m.retracted(element, key)
			return nil
		}

		winner, keep := m.resolve(existing, element, key)
		switch {
		case !keep:
			m.Remove(existing)
			m.unregister(registered)
			m.retracted(existing, key)
			m.retracted(element, key)
			return nil
		case winner == existing:
			m.unregister(registered)
			m.retracted(element, key)
			return nil
		case winner == element:
			m.Remove(existing)
			m.retracted(existing, key)
			m.index[key] = element
			registered = append(registered, key)
		default:
			m.unregister(registered)
			return NewResolutionContractError(key)
		}
	}

	m.keysOf[element] = registered
	m.order = append(m.order, element)
	return nil
}

// Remove retracts element and frees all its keys. Removing an unknown
// element is a no-op.
func (m *ResolutionMap[K, V]) Remove(element V) {
	keys, ok := m.keysOf[element]
	if !ok {
		return
	}
	m.unregister(keys)
	delete(m.keysOf, element)
	for i, e := range m.order {
		if e == element {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Contains reports whether element is currently registered.
func (m *ResolutionMap[K, V]) Contains(element V) bool {
	_, ok := m.keysOf[element]
	return ok
}

// Elements returns the registered elements in insertion order.
func (m *ResolutionMap[K, V]) Elements() []V {
	out := make([]V, len(m.order))
	copy(out, m.order)
	return out
}

// Build returns a copy of the key index.
func (m *ResolutionMap[K, V]) Build() map[K]V {
	out := make(map[K]V, len(m.index))
	for k, v := range m.index {
		out[k] = v
	}
	return out
}

func (m *ResolutionMap[K, V]) unregister(keys []K) {
	for _, k := range keys {
		delete(m.index, k)
	}
}

func (m *ResolutionMap[K, V]) retracted(element V, key K) {
	if m.onRetract != nil {
		m.onRetract(element, key)
	}
}

// AmbiguousIndex maps a key to every element declaring it, in input order.
type AmbiguousIndex[K comparable, V comparable] map[K][]V

// BuildAmbiguous indexes elements without arbitration. An element listing
// the same key twice appears once under that key.
func BuildAmbiguous[K comparable, V comparable](elements []V, getKeys func(V) []K) AmbiguousIndex[K, V] {
	out := make(AmbiguousIndex[K, V])
	for _, e := range elements {
		seen := make(map[K]struct{})
		for _, k := range getKeys(e) {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out[k] = append(out[k], e)
		}
	}
	return out
}
