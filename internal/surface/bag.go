package surface

import "fmt"

// Bag is an insertion-ordered string to value mapping. Values are whatever a
// JSON document can carry: string, number, bool, or structured maps and
// slices. Last write wins.
type Bag struct {
	keys   []string
	values map[string]any
}

// NewBag returns an empty property bag.
func NewBag() *Bag {
	return &Bag{values: make(map[string]any)}
}

// Set stores value under key. A key keeps its original position when
// overwritten.
func (b *Bag) Set(key string, value any) {
	if b.values == nil {
		b.values = make(map[string]any)
	}
	if _, ok := b.values[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.values[key] = value
}

// Get returns the value stored under key.
func (b *Bag) Get(key string) (any, bool) {
	if b == nil {
		return nil, false
	}
	v, ok := b.values[key]
	return v, ok
}

// Len returns the number of keys.
func (b *Bag) Len() int {
	if b == nil {
		return 0
	}
	return len(b.keys)
}

// Keys returns the keys in insertion order.
func (b *Bag) Keys() []string {
	if b == nil {
		return nil
	}
	out := make([]string, len(b.keys))
	copy(out, b.keys)
	return out
}

// Map returns a shallow copy of the bag.
func (b *Bag) Map() map[string]any {
	out := make(map[string]any, b.Len())
	if b == nil {
		return out
	}
	for _, k := range b.keys {
		out[k] = b.values[k]
	}
	return out
}

// String returns the value under key formatted for comparison against
// screenshot selector attributes. Missing keys yield "".
func (b *Bag) String(key string) string {
	v, ok := b.Get(key)
	if !ok || v == nil {
		return ""
	}
	switch tv := v.(type) {
	case string:
		return tv
	case bool:
		if tv {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%g", tv)
	default:
		return fmt.Sprint(tv)
	}
}
