package testing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenantdb/tenantdb/kv"
)

var testBucket = []byte("testbucketv1")

// KVStore runs the conformance tests every kv.Store implementation must pass.
func KVStore(init func(*testing.T) kv.Store, t *testing.T) {
	tests := []struct {
		name string
		fn   func(*testing.T, kv.Store)
	}{
		{name: "GetPut", fn: kvGetPut},
		{name: "ReadOnlyView", fn: kvReadOnlyView},
		{name: "Rollback", fn: kvRollback},
		{name: "WalkPrefix", fn: kvWalkPrefix},
		{name: "DeletePrefix", fn: kvDeletePrefix},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, init(t))
		})
	}
}

func kvGetPut(t *testing.T, s kv.Store) {
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx kv.Tx) error {
		b, err := tx.Bucket(testBucket)
		if err != nil {
			return err
		}
		return b.Put([]byte("hello"), []byte("world"))
	}))

	require.NoError(t, s.View(ctx, func(tx kv.Tx) error {
		b, err := tx.Bucket(testBucket)
		if err != nil {
			return err
		}
		v, err := b.Get([]byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, "world", string(v))

		_, err = b.Get([]byte("missing"))
		assert.True(t, kv.IsNotFound(err))
		return nil
	}))
}

func kvReadOnlyView(t *testing.T, s kv.Store) {
	err := s.View(context.Background(), func(tx kv.Tx) error {
		b, err := tx.Bucket([]byte("neverwrittenv1"))
		if err != nil {
			return err
		}
		_, err = b.Get([]byte("k"))
		assert.True(t, kv.IsNotFound(err))
		return b.Put([]byte("k"), []byte("v"))
	})
	assert.Equal(t, kv.ErrTxNotWritable, err)
}

func kvRollback(t *testing.T, s kv.Store) {
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.Update(ctx, func(tx kv.Tx) error {
		b, err := tx.Bucket(testBucket)
		if err != nil {
			return err
		}
		if err := b.Put([]byte("k"), []byte("v")); err != nil {
			return err
		}
		return boom
	})
	require.Equal(t, boom, err)

	require.NoError(t, s.View(ctx, func(tx kv.Tx) error {
		b, err := tx.Bucket(testBucket)
		if err != nil {
			return err
		}
		_, err = b.Get([]byte("k"))
		assert.True(t, kv.IsNotFound(err))
		return nil
	}))
}

func putAll(t *testing.T, s kv.Store, keys ...string) {
	require.NoError(t, s.Update(context.Background(), func(tx kv.Tx) error {
		b, err := tx.Bucket(testBucket)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := b.Put([]byte(k), []byte("v-"+k)); err != nil {
				return err
			}
		}
		return nil
	}))
}

func kvWalkPrefix(t *testing.T, s kv.Store) {
	putAll(t, s, "acme/car/2", "acme/car/1", "acme/driver/1", "other/car/1")

	var got []string
	require.NoError(t, s.View(context.Background(), func(tx kv.Tx) error {
		b, err := tx.Bucket(testBucket)
		if err != nil {
			return err
		}
		return kv.WalkPrefix(b, []byte("acme/car/"), func(k, v []byte) error {
			got = append(got, string(k))
			return nil
		})
	}))
	assert.Equal(t, []string{"acme/car/1", "acme/car/2"}, got)
}

func kvDeletePrefix(t *testing.T, s kv.Store) {
	putAll(t, s, "acme/car/1", "acme/driver/1", "other/car/1")

	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx kv.Tx) error {
		b, err := tx.Bucket(testBucket)
		if err != nil {
			return err
		}
		n, err := kv.DeletePrefix(b, []byte("acme/"))
		assert.Equal(t, 2, n)
		return err
	}))

	require.NoError(t, s.View(ctx, func(tx kv.Tx) error {
		b, err := tx.Bucket(testBucket)
		if err != nil {
			return err
		}
		_, err = b.Get([]byte("other/car/1"))
		assert.NoError(t, err)
		_, err = b.Get([]byte("acme/car/1"))
		assert.True(t, kv.IsNotFound(err))
		return nil
	}))
}
