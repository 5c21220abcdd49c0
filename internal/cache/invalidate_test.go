package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/windrift/drivefetch/internal/domain"
	"github.com/windrift/drivefetch/internal/port"
)

// fakeLister implements port.DriveLister over a static tree.
type fakeLister struct {
	children map[string][]domain.DownloadableItem
	listErr  error
}

func (f *fakeLister) ListChildren(_ context.Context, folderID, _ string, offset, limit int) (*port.ChildPage, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	all := f.children[folderID]
	if offset >= len(all) {
		return &port.ChildPage{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return &port.ChildPage{
		Items:      all[offset:end],
		NextOffset: end,
		More:       end < len(all),
	}, nil
}

func (f *fakeLister) GetItem(context.Context, string) (*domain.DownloadableItem, error) {
	return nil, domain.ErrNotFound
}

func file(id, parentID string) domain.DownloadableItem {
	return domain.DownloadableItem{ID: id, ParentID: parentID}
}

func folder(id, parentID string) domain.DownloadableItem {
	return domain.DownloadableItem{ID: id, ParentID: parentID, IsFolder: true}
}

func cachedEntry(t *testing.T, c *BlobCache, id, parentID string) {
	t.Helper()
	require.NoError(t, c.Set(context.Background(), &domain.CacheEntry{
		ItemID:   id,
		ParentID: parentID,
		Content:  []byte{0},
		Size:     1,
	}))
}

func TestInvalidator_CascadesThroughSubtree(t *testing.T) {
	ctx := context.Background()
	c := NewBlobCache(1000, newMemStore(), nil, zap.NewNop())

	// Tree: F contains files X, Y and subfolder G; G contains Z.
	// U is cached but unrelated.
	cachedEntry(t, c, "x", "f")
	cachedEntry(t, c, "y", "f")
	cachedEntry(t, c, "z", "g")
	cachedEntry(t, c, "u", "other")

	lister := &fakeLister{children: map[string][]domain.DownloadableItem{
		"f": {file("x", "f"), file("y", "f"), folder("g", "f")},
		"g": {file("z", "g")},
	}}

	inv := NewInvalidator(c, lister, zap.NewNop())
	require.NoError(t, inv.Invalidate(ctx, []domain.DownloadableItem{folder("f", "root")}))

	for _, id := range []string{"x", "y", "z"} {
		_, ok := c.Get(ctx, id)
		assert.False(t, ok, "descendant %s must be invalidated", id)
	}
	_, ok := c.Get(ctx, "u")
	assert.True(t, ok, "unrelated entry must survive")
	assert.Empty(t, c.CachedChildren(ctx, "f"))
	assert.Empty(t, c.CachedChildren(ctx, "g"))
}

func TestInvalidator_FilesAndMixedSelection(t *testing.T) {
	ctx := context.Background()
	c := NewBlobCache(1000, newMemStore(), nil, zap.NewNop())

	cachedEntry(t, c, "a", "p")
	cachedEntry(t, c, "b", "p")
	cachedEntry(t, c, "z", "g")

	lister := &fakeLister{children: map[string][]domain.DownloadableItem{
		"g": {file("z", "g")},
	}}

	inv := NewInvalidator(c, lister, zap.NewNop())
	err := inv.Invalidate(ctx, []domain.DownloadableItem{
		file("a", "p"),
		folder("g", "p"),
	})
	require.NoError(t, err)

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "z")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "b")
	assert.True(t, ok, "sibling not in the selection must survive")
	assert.Equal(t, []string{"b"}, c.CachedChildren(ctx, "p"))
}

func TestInvalidator_OrphanWithoutParent(t *testing.T) {
	ctx := context.Background()
	c := NewBlobCache(1000, newMemStore(), nil, zap.NewNop())
	cachedEntry(t, c, "lone", "")

	inv := NewInvalidator(c, &fakeLister{}, zap.NewNop())
	require.NoError(t, inv.Invalidate(ctx, []domain.DownloadableItem{file("lone", "")}))

	_, ok := c.Get(ctx, "lone")
	assert.False(t, ok)
}

func TestInvalidator_CyclicTreeTerminates(t *testing.T) {
	ctx := context.Background()
	c := NewBlobCache(1000, newMemStore(), nil, zap.NewNop())
	cachedEntry(t, c, "x", "f")

	// f lists g, g lists f again.
	lister := &fakeLister{children: map[string][]domain.DownloadableItem{
		"f": {folder("g", "f"), file("x", "f")},
		"g": {folder("f", "g")},
	}}

	inv := NewInvalidator(c, lister, zap.NewNop())
	require.NoError(t, inv.Invalidate(ctx, []domain.DownloadableItem{folder("f", "")}))

	_, ok := c.Get(ctx, "x")
	assert.False(t, ok)
}

func TestInvalidator_ListerErrorPropagates(t *testing.T) {
	ctx := context.Background()
	c := NewBlobCache(1000, newMemStore(), nil, zap.NewNop())
	cachedEntry(t, c, "x", "f")

	wantErr := errors.New("backend down")
	inv := NewInvalidator(c, &fakeLister{listErr: wantErr}, zap.NewNop())
	err := inv.Invalidate(ctx, []domain.DownloadableItem{folder("f", "")})
	require.ErrorIs(t, err, wantErr)

	// Nothing removed on failed expansion.
	_, ok := c.Get(ctx, "x")
	assert.True(t, ok)
}

func TestInvalidator_ReachesDiskOnlyEntriesAfterRestart(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	warm := NewBlobCache(1000, store, nil, zap.NewNop())
	cachedEntry(t, warm, "x", "f")
	cachedEntry(t, warm, "y", "f")

	// New process over the same store. The folder was deleted remotely, so
	// the lister has nothing left to report under it; the persisted index
	// is the only route to the children.
	cold := NewBlobCache(1000, store, nil, zap.NewNop())
	inv := NewInvalidator(cold, &fakeLister{}, zap.NewNop())
	require.NoError(t, inv.Invalidate(ctx, []domain.DownloadableItem{folder("f", "")}))

	for _, id := range []string{"x", "y"} {
		assert.False(t, store.has(port.CollectionBlobs, id), "blob %s must be scrubbed", id)
		assert.False(t, store.has(port.CollectionMeta, id), "meta %s must be scrubbed", id)
	}
	assert.False(t, store.has(port.CollectionIndex, "f"))
}

func TestInvalidator_UncachedDescendantsNoOp(t *testing.T) {
	ctx := context.Background()
	c := NewBlobCache(1000, newMemStore(), nil, zap.NewNop())

	lister := &fakeLister{children: map[string][]domain.DownloadableItem{
		"f": {file("x", "f")},
	}}
	inv := NewInvalidator(c, lister, zap.NewNop())
	require.NoError(t, inv.Invalidate(ctx, []domain.DownloadableItem{folder("f", "")}))

	count, used := c.Stats()
	assert.Equal(t, 0, count)
	assert.Equal(t, int64(0), used)
}
