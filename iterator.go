package vecfile

import (
	"context"
	"iter"
)

// End is the key of an exhausted iterator.
const End = KeyMax

// Iterator walks the occupied keys of a store in ascending order.
//
// It is not a snapshot: changes made while iterating may or may not be
// observed. Values are copies.
type Iterator struct {
	vf    *VectorFile
	key   uint32
	value []byte
	err   error
}

// Begin returns an iterator positioned at the smallest occupied key.
func (vf *VectorFile) Begin(ctx context.Context) *Iterator {
	it := &Iterator{vf: vf, key: End}

	minKey, err := vf.MinKey(ctx)
	if err != nil {
		it.err = err
		return it
	}
	if n, err := vf.Count(ctx); err != nil || n == 0 {
		it.err = err
		return it
	}

	v, ok, err := vf.Find(ctx, minKey)
	switch {
	case err != nil:
		it.err = err
	case ok:
		it.key, it.value = minKey, v
	default:
		it.key, it.value, _, it.err = vf.Next(ctx, minKey)
	}
	return it
}

// Valid reports whether the iterator is positioned at a key.
func (it *Iterator) Valid() bool { return it.err == nil && it.key != End }

// Key returns the current key, or End.
func (it *Iterator) Key() uint32 { return it.key }

// Value returns the current value.
func (it *Iterator) Value() []byte { return it.value }

// Err returns the error that stopped the iteration, if any.
func (it *Iterator) Err() error { return it.err }

// Next advances to the following occupied key and reports whether there is one.
func (it *Iterator) Next(ctx context.Context) bool {
	if !it.Valid() {
		return false
	}
	it.key, it.value, _, it.err = it.vf.Next(ctx, it.key)
	return it.Valid()
}

// All yields the remaining key/value pairs starting at the current position.
// Check Err after the loop.
func (it *Iterator) All(ctx context.Context) iter.Seq2[uint32, []byte] {
	return func(yield func(uint32, []byte) bool) {
		for ; it.Valid(); it.Next(ctx) {
			if !yield(it.key, it.value) {
				return
			}
		}
	}
}
