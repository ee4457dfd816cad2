package inmem_test

import (
	"testing"

	itesting "github.com/tenantdb/tenantdb/testing"
)

func TestKVStore(t *testing.T) {
	itesting.KVStore(itesting.NewTestInmemStore, t)
}
