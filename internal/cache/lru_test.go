package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/windrift/drivefetch/internal/domain"
	"github.com/windrift/drivefetch/internal/port"
)

// memStore implements port.BlobStore in memory for testing
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	// failAll makes every operation fail
	failAll bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) key(collection, key string) string { return collection + "/" + key }

func (m *memStore) Get(_ context.Context, collection, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return nil, errors.New("store unavailable")
	}
	v, ok := m.data[m.key(collection, key)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (m *memStore) Put(_ context.Context, collection, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errors.New("store unavailable")
	}
	m.data[m.key(collection, key)] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errors.New("store unavailable")
	}
	delete(m.data, m.key(collection, key))
	return nil
}

func (m *memStore) has(collection, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[m.key(collection, key)]
	return ok
}

// countingReporter implements port.ErrorReporter
type countingReporter struct {
	mu    sync.Mutex
	count int
}

func (r *countingReporter) Report(string, error) {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
}

func entry(id string, size int64) *domain.CacheEntry {
	return &domain.CacheEntry{
		ItemID:    id,
		ParentID:  "parent-1",
		Content:   make([]byte, size),
		Size:      size,
		UpdatedAt: time.Now(),
	}
}

func TestBlobCache_SetGetRoundtrip(t *testing.T) {
	ctx := context.Background()
	c := NewBlobCache(100, newMemStore(), nil, zap.NewNop())

	want := entry("a", 10)
	require.NoError(t, c.Set(ctx, want))

	got, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, want.ItemID, got.ItemID)
	assert.Equal(t, want.Size, got.Size)
	assert.Equal(t, want.Content, got.Content)
}

func TestBlobCache_CapacityInvariant(t *testing.T) {
	ctx := context.Background()
	const capacity = 100
	c := NewBlobCache(capacity, newMemStore(), nil, zap.NewNop())

	sizes := []int64{30, 40, 50, 20, 90, 10, 60}
	for i, size := range sizes {
		err := c.Set(ctx, entry(fmt.Sprintf("item-%d", i), size))
		require.NoError(t, err)
		_, used := c.Stats()
		assert.LessOrEqual(t, used, int64(capacity), "after set %d", i)
	}
}

func TestBlobCache_EvictionOrder(t *testing.T) {
	ctx := context.Background()
	c := NewBlobCache(100, newMemStore(), nil, zap.NewNop())

	require.NoError(t, c.Set(ctx, entry("a", 30)))
	require.NoError(t, c.Set(ctx, entry("b", 30)))
	require.NoError(t, c.Set(ctx, entry("c", 30)))

	// Promote a, so b becomes least recently used.
	_, ok := c.Get(ctx, "a")
	require.True(t, ok)

	// Needs exactly one eviction.
	require.NoError(t, c.Set(ctx, entry("d", 40)))

	_, ok = c.Get(ctx, "b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok, "a was promoted and must survive")
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "d")
	assert.True(t, ok)
}

func TestBlobCache_OversizedEntryRejected(t *testing.T) {
	ctx := context.Background()
	c := NewBlobCache(100, newMemStore(), nil, zap.NewNop())

	require.NoError(t, c.Set(ctx, entry("small", 50)))

	err := c.Set(ctx, entry("huge", 150))
	require.ErrorIs(t, err, domain.ErrEntryTooLarge)

	// The oversized entry must not have drained the cache.
	_, ok := c.Get(ctx, "small")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "huge")
	assert.False(t, ok)
}

func TestBlobCache_DeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	c := NewBlobCache(100, newMemStore(), nil, zap.NewNop())

	require.NoError(t, c.Set(ctx, entry("a", 40)))
	_, usedBefore := c.Stats()
	require.Equal(t, int64(40), usedBefore)

	c.Delete(ctx, "a")
	_, used := c.Stats()
	assert.Equal(t, int64(0), used)

	// Deleting an absent key must not panic or alter accounting.
	c.Delete(ctx, "a")
	c.Delete(ctx, "never-existed")
	_, used = c.Stats()
	assert.Equal(t, int64(0), used)
}

func TestBlobCache_ReplaceAdjustsAccounting(t *testing.T) {
	ctx := context.Background()
	c := NewBlobCache(100, newMemStore(), nil, zap.NewNop())

	require.NoError(t, c.Set(ctx, entry("a", 60)))
	require.NoError(t, c.Set(ctx, entry("a", 20)))

	count, used := c.Stats()
	assert.Equal(t, 1, count)
	assert.Equal(t, int64(20), used)
}

func TestBlobCache_HydratesFromStore(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	// Simulate a previous session's persisted entry.
	meta, err := json.Marshal(entryMeta{ParentID: "p", Size: 5, UpdatedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, port.CollectionMeta, "cold", meta))
	require.NoError(t, store.Put(ctx, port.CollectionBlobs, "cold", []byte("hello")))

	c := NewBlobCache(100, store, nil, zap.NewNop())
	got, ok := c.Get(ctx, "cold")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), got.Content)
	assert.Equal(t, "p", got.ParentID)

	_, used := c.Stats()
	assert.Equal(t, int64(5), used, "hydrated entries count toward capacity")
}

func TestBlobCache_StoreFailureIsMiss(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failAll = true
	reporter := &countingReporter{}
	c := NewBlobCache(100, store, reporter, zap.NewNop())

	_, ok := c.Get(ctx, "anything")
	assert.False(t, ok)
	assert.Positive(t, reporter.count, "store failure must be reported")

	// A failing store must not corrupt in-memory state.
	require.NoError(t, c.Set(ctx, entry("a", 10)))
	got, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, int64(10), got.Size)
}

func TestBlobCache_EvictionRemovesPersistedRecord(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	c := NewBlobCache(100, store, nil, zap.NewNop())

	require.NoError(t, c.Set(ctx, entry("a", 60)))
	require.NoError(t, c.Set(ctx, entry("b", 60))) // evicts a

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	assert.False(t, store.has(port.CollectionBlobs, "a"))
	assert.False(t, store.has(port.CollectionMeta, "a"))
	assert.True(t, store.has(port.CollectionBlobs, "b"))
}
