package types

import (
	"iter"
	"maps"
)

// DefaultMap is a map that materializes a default value for missing keys.
//
//	sums := NewDefaultMap[string](func() decimal.Decimal { return decimal.Zero })
//	sums.Update("mint", func(v decimal.Decimal) decimal.Decimal { return v.Add(delta) })
type DefaultMap[K comparable, V any] struct {
	data        map[K]V
	defaultFunc func() V
}

// NewDefaultMap creates an empty DefaultMap whose missing keys start at defaultFunc().
func NewDefaultMap[K comparable, V any](defaultFunc func() V) DefaultMap[K, V] {
	return DefaultMap[K, V]{
		data:        make(map[K]V),
		defaultFunc: defaultFunc,
	}
}

// Get returns the value for key, storing the default first when absent.
func (d *DefaultMap[K, V]) Get(key K) V {
	val, ok := d.data[key]
	if ok {
		return val
	}

	val = d.defaultFunc()
	d.data[key] = val
	return val
}

// Set assigns val to key.
func (d *DefaultMap[K, V]) Set(key K, val V) {
	d.data[key] = val
}

// Update replaces the value for key with fn applied to its current (or default) value.
func (d *DefaultMap[K, V]) Update(key K, fn func(V) V) {
	d.data[key] = fn(d.Get(key))
}

// Len returns the number of materialized keys.
func (d *DefaultMap[K, V]) Len() int {
	return len(d.data)
}

// All iterates over the materialized entries in no particular order.
func (d *DefaultMap[K, V]) All() iter.Seq2[K, V] {
	return maps.All(d.data)
}

// ToMap returns the underlying map.
func (d *DefaultMap[K, V]) ToMap() map[K]V {
	return d.data
}
