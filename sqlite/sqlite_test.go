package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// NewTestStore returns an empty in-memory store closed when the test ends.
func NewTestStore(t *testing.T) *SqlStore {
	t.Helper()

	store, err := NewSqlStore(InmemPath, zaptest.NewLogger(t))
	require.NoError(t, err, "unable to open testing database")
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func TestFlush(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewTestStore(t)

	err := store.execTrans(ctx, `CREATE TABLE test_table_1 (id TEXT NOT NULL PRIMARY KEY)`)
	require.NoError(t, err)

	err = store.execTrans(ctx, `INSERT INTO test_table_1 (id) VALUES ('one'), ('two'), ('three')`)
	require.NoError(t, err)

	vals, err := store.queryToStrings(`SELECT * FROM test_table_1`)
	require.NoError(t, err)
	require.Equal(t, 3, len(vals))

	store.Flush(context.Background())

	vals, err = store.queryToStrings(`SELECT * FROM test_table_1`)
	require.NoError(t, err)
	require.Equal(t, 0, len(vals))
}

func TestTableNames(t *testing.T) {
	t.Parallel()

	store := NewTestStore(t)
	ctx := context.Background()

	err := store.execTrans(ctx, `CREATE TABLE test_table_1 (id TEXT NOT NULL PRIMARY KEY);
	CREATE TABLE test_table_3 (id TEXT NOT NULL PRIMARY KEY);
	CREATE TABLE test_table_2 (id TEXT NOT NULL PRIMARY KEY);`)
	require.NoError(t, err)

	got, err := store.tableNames()
	require.NoError(t, err)
	require.Equal(t, []string{"test_table_1", "test_table_3", "test_table_2"}, got)
}

func TestFileStoreReopens(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultFilename)
	ctx := context.Background()

	store, err := NewSqlStore(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.execTrans(ctx, `PRAGMA user_version=7; CREATE TABLE test_table_1 (id TEXT NOT NULL PRIMARY KEY);`))
	require.NoError(t, store.Close())

	store, err = NewSqlStore(path, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	v, err := store.userVersion()
	require.NoError(t, err)
	require.Equal(t, 7, v)

	got, err := store.tableNames()
	require.NoError(t, err)
	require.Equal(t, []string{"test_table_1"}, got)
}
