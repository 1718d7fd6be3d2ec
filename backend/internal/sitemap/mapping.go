package sitemap

// Mapping is an ordered url -> V mapping. Keys are unique; the first value
// stored for a key wins.
type Mapping[V any] struct {
	keys   []string
	values map[string]V
}

func NewMapping[V any]() *Mapping[V] {
	return &Mapping[V]{values: make(map[string]V)}
}

// Set stores v under key and reports whether key was new.
func (m *Mapping[V]) Set(key string, v V) bool {
	if _, ok := m.values[key]; ok {
		return false
	}
	m.keys = append(m.keys, key)
	m.values[key] = v
	return true
}

func (m *Mapping[V]) Get(key string) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *Mapping[V]) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *Mapping[V]) Len() int { return len(m.keys) }

// Each visits entries in insertion order and stops at the first error.
func (m *Mapping[V]) Each(fn func(key string, v V) error) error {
	for _, k := range m.keys {
		if err := fn(k, m.values[k]); err != nil {
			return err
		}
	}
	return nil
}
