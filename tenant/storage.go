package tenant

import (
	"context"
	"strings"

	"github.com/tenantdb/tenantdb/kv"
)

// Store holds tenants and credentials in a kv.Store.
type Store struct {
	kvStore kv.Store
}

// NewStore returns a Store over kvStore.
func NewStore(kvStore kv.Store) (*Store, error) {
	return &Store{
		kvStore: kvStore,
	}, nil
}

// View opens up a transaction that will not write to any data. Implementing interfaces
// should take care to ensure that all view transactions do not mutate any data.
func (s *Store) View(ctx context.Context, fn func(kv.Tx) error) error {
	return s.kvStore.View(ctx, fn)
}

// Update opens up a transaction that will mutate data.
func (s *Store) Update(ctx context.Context, fn func(kv.Tx) error) error {
	return s.kvStore.Update(ctx, fn)
}

const keySeparator = "\x00"

// compoundKey joins parts into a key whose prefixes can be walked part by part.
func compoundKey(parts ...string) []byte {
	return []byte(strings.Join(parts, keySeparator))
}

// tenantPrefix is the prefix of every key owned by tenantID.
func tenantPrefix(tenantID string) []byte {
	return []byte(tenantID + keySeparator)
}
