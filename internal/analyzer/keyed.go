package analyzer

// KeyedStore maps runtime-derived keys to aggregates, creating the aggregate
// with newValue the first time a key is touched. Keys remember first-seen order.
type KeyedStore[V any] struct {
	newValue func() V
	values   map[string]V
	order    []string
}

// NewKeyedStore returns an empty store using newValue to build fresh entries.
func NewKeyedStore[V any](newValue func() V) *KeyedStore[V] {
	return &KeyedStore[V]{
		newValue: newValue,
		values:   make(map[string]V),
	}
}

// GetOrCreate returns the entry for key, creating it if needed.
func (s *KeyedStore[V]) GetOrCreate(key string) V {
	if v, ok := s.values[key]; ok {
		return v
	}
	v := s.newValue()
	s.values[key] = v
	s.order = append(s.order, key)
	return v
}

// Get returns the entry for key without creating it.
func (s *KeyedStore[V]) Get(key string) (V, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *KeyedStore[V]) Len() int { return len(s.values) }

// Keys returns the keys in first-seen order.
func (s *KeyedStore[V]) Keys() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Counter counts occurrences per key, remembering first-seen order.
type Counter struct {
	counts map[string]int
	order  []string
}

func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

// Inc adds one to key.
func (c *Counter) Inc(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

func (c *Counter) Get(key string) int { return c.counts[key] }
func (c *Counter) Len() int           { return len(c.counts) }

// Keys returns the keys in first-seen order.
func (c *Counter) Keys() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Map returns a copy of the counts.
func (c *Counter) Map() map[string]int {
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}
