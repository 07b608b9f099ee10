// Package reqctx provides the per-request context bag shared mutably across
// the handler chain. A bag lives for exactly one dispatch: it is created
// fresh when a request enters the chain and discarded after the response is
// written back. It is never shared across requests or connections.
package reqctx

import "sort"

// Bag is a string-keyed store of dynamically typed values.
// It is not safe for concurrent use; a dispatch runs handlers sequentially
// on one goroutine, which is the only access pattern the core uses.
type Bag struct {
	values map[string]any
}

// NewBag returns an empty bag.
func NewBag() *Bag {
	return &Bag{values: make(map[string]any)}
}

// Set stores a value under key, replacing any prior value.
func (b *Bag) Set(key string, value any) {
	b.values[key] = value
}

// Get returns the value stored under key.
func (b *Bag) Get(key string) (any, bool) {
	v, ok := b.values[key]
	return v, ok
}

// Delete removes the value stored under key.
func (b *Bag) Delete(key string) {
	delete(b.values, key)
}

// Len returns the number of stored values.
func (b *Bag) Len() int {
	return len(b.values)
}

// Keys returns the stored keys in lexical order.
func (b *Bag) Keys() []string {
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Value returns the value stored under key if it has type T.
// The second return is false when the key is absent or the type differs.
func Value[T any](b *Bag, key string) (T, bool) {
	var zero T
	v, ok := b.values[key]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
