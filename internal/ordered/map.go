// Package ordered provides an insertion-ordered JSON object map.
//
// The flattening engine's walk order contract ("reverse of sibling declaration
// order at each level") only means something if object keys keep their
// document order, which map[string]any cannot guarantee. Map is the decoded
// form of every hierarchical record in this module:
//
//   - objects decode to *ordered.Map
//   - arrays decode to []any
//   - scalars decode to string, json.Number, bool or nil
package ordered

// Map is a JSON object that remembers key declaration order.
type Map struct {
	keys   []string
	values map[string]any
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{values: make(map[string]any)}
}

// Set stores a value under key. A new key is appended to the iteration order;
// an existing key keeps its position.
func (m *Map) Set(key string, value any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// GetString returns the value under key as a string, or "" if the key is
// absent or not a string.
func (m *Map) GetString(key string) string {
	if s, ok := m.values[key].(string); ok {
		return s
	}
	return ""
}

// Keys returns the keys in insertion order. The returned slice is shared;
// callers must not mutate it.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return m.keys
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}
