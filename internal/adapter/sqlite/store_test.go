package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windrift/drivefetch/internal/domain"
	"github.com/windrift/drivefetch/internal/port"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Put(ctx, port.CollectionBlobs, "k1", []byte("hello")))

	got, err := store.Get(ctx, port.CollectionBlobs, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	require.NoError(t, store.Delete(ctx, port.CollectionBlobs, "k1"))
	_, err = store.Get(ctx, port.CollectionBlobs, "k1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_GetMissing(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get(context.Background(), port.CollectionBlobs, "absent")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Put(ctx, port.CollectionMeta, "k", []byte("v1")))
	require.NoError(t, store.Put(ctx, port.CollectionMeta, "k", []byte("v2")))

	got, err := store.Get(ctx, port.CollectionMeta, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestStore_CollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Put(ctx, port.CollectionBlobs, "k", []byte("blob")))
	require.NoError(t, store.Put(ctx, port.CollectionMeta, "k", []byte("meta")))

	blob, err := store.Get(ctx, port.CollectionBlobs, "k")
	require.NoError(t, err)
	meta, err := store.Get(ctx, port.CollectionMeta, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), blob)
	assert.Equal(t, []byte("meta"), meta)

	require.NoError(t, store.Delete(ctx, port.CollectionBlobs, "k"))
	_, err = store.Get(ctx, port.CollectionMeta, "k")
	assert.NoError(t, err, "deleting from one collection must not touch another")
}

func TestStore_DeleteAbsentNoOp(t *testing.T) {
	store := openTestStore(t)
	assert.NoError(t, store.Delete(context.Background(), port.CollectionBlobs, "absent"))
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, port.CollectionBlobs, "k", []byte("durable")))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(ctx, port.CollectionBlobs, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("durable"), got)
}
