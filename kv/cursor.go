package kv

import (
	"bytes"
	"sort"
)

// Pair is a struct for key value pairs.
type Pair struct {
	Key   []byte
	Value []byte
}

// staticCursor implements the Cursor interface for a slice of
// static key value pairs.
type staticCursor struct {
	idx   int
	pairs []Pair
}

// NewStaticCursor returns an instance of a StaticCursor. It
// destructively sorts the provided pairs to be in key ascending order.
func NewStaticCursor(pairs []Pair) Cursor {
	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i].Key, pairs[j].Key) < 0
	})
	return &staticCursor{
		pairs: pairs,
	}
}

// Seek searches the slice for the first key with the provided prefix.
func (c *staticCursor) Seek(prefix []byte) ([]byte, []byte) {
	i := sort.Search(len(c.pairs), func(i int) bool {
		return bytes.Compare(c.pairs[i].Key, prefix) >= 0
	})
	if i == len(c.pairs) || !bytes.HasPrefix(c.pairs[i].Key, prefix) {
		return nil, nil
	}
	c.idx = i
	return c.pairs[i].Key, c.pairs[i].Value
}

func (c *staticCursor) getValueAtIndex(delta int) ([]byte, []byte) {
	idx := c.idx + delta
	if idx < 0 {
		return nil, nil
	}

	if idx >= len(c.pairs) {
		return nil, nil
	}

	c.idx = idx

	pair := c.pairs[c.idx]

	return pair.Key, pair.Value
}

// First retrieves the first element in the cursor.
func (c *staticCursor) First() ([]byte, []byte) {
	return c.getValueAtIndex(-c.idx)
}

// Last retrieves the last element in the cursor.
func (c *staticCursor) Last() ([]byte, []byte) {
	return c.getValueAtIndex(len(c.pairs) - 1 - c.idx)
}

// Next retrieves the next entry in the cursor.
func (c *staticCursor) Next() ([]byte, []byte) {
	return c.getValueAtIndex(1)
}

// Prev retrieves the previous entry in the cursor.
func (c *staticCursor) Prev() ([]byte, []byte) {
	return c.getValueAtIndex(-1)
}

// WalkPrefix calls fn for every key of b starting with prefix, in key order.
// Returning an error from fn stops the walk.
func WalkPrefix(b Bucket, prefix []byte, fn func(k, v []byte) error) error {
	cur, err := b.Cursor()
	if err != nil {
		return err
	}

	var k, v []byte
	if len(prefix) == 0 {
		k, v = cur.First()
	} else {
		k, v = cur.Seek(prefix)
	}
	for ; k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// DeletePrefix removes every key of b starting with prefix and returns how many were removed.
func DeletePrefix(b Bucket, prefix []byte) (int, error) {
	var keys [][]byte
	err := WalkPrefix(b, prefix, func(k, _ []byte) error {
		keys = append(keys, append([]byte(nil), k...))
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}
