package testing

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tenantdb/tenantdb/bolt"
	"github.com/tenantdb/tenantdb/inmem"
	"github.com/tenantdb/tenantdb/kv"
	"go.uber.org/zap/zaptest"
)

// NewTestInmemStore returns an empty in memory store.
func NewTestInmemStore(t *testing.T) kv.Store {
	t.Helper()
	return inmem.NewKVStore()
}

// NewTestBoltStore returns an empty bolt store living in a temporary directory.
// The store is closed when the test ends.
func NewTestBoltStore(t *testing.T) kv.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tenantdb.bolt")
	// skip fsync to improve test performance
	s := bolt.NewKVStore(zaptest.NewLogger(t), path, bolt.WithNoSync)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("failed to open bolt store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}
