// Package cache implements the size-bounded LRU blob cache that keeps
// downloaded file content across repeat downloads, backed by a persistent
// blob store for durability across sessions.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/windrift/drivefetch/internal/domain"
	"github.com/windrift/drivefetch/internal/port"
)

// entryMeta is the persisted metadata record for a cache entry.
type entryMeta struct {
	ParentID  string    `json:"parent_id"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BlobCache is an in-process LRU cache of downloaded file content. The
// in-memory index is authoritative within a process lifetime; the persistent
// store only provides durability across restarts. All operations are
// linearizable with respect to each other.
type BlobCache struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	order    *list.List               // front = most recently used
	entries  map[string]*list.Element // element value is *domain.CacheEntry
	index    map[string][]string      // parent folder id -> cached child item ids
	probed   map[string]struct{}      // keys already looked up in the store

	store    port.BlobStore
	reporter port.ErrorReporter
	log      *zap.Logger
}

// NewBlobCache creates a cache with the given byte capacity.
func NewBlobCache(capacity int64, store port.BlobStore, reporter port.ErrorReporter, log *zap.Logger) *BlobCache {
	return &BlobCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		index:    make(map[string][]string),
		probed:   make(map[string]struct{}),
		store:    store,
		reporter: reporter,
		log:      log,
	}
}

// Get returns the cached entry for itemID, promoting it to most recently
// used. On a cold start the entry is lazily hydrated from the persistent
// store; store failures are reported and treated as a miss.
func (c *BlobCache) Get(ctx context.Context, itemID string) (*domain.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[itemID]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*domain.CacheEntry), true
	}

	if _, done := c.probed[itemID]; done {
		return nil, false
	}
	c.probed[itemID] = struct{}{}

	entry := c.hydrateLocked(ctx, itemID)
	if entry == nil {
		return nil, false
	}
	if !c.insertLocked(ctx, entry) {
		return nil, false
	}
	return entry, true
}

// Set inserts or replaces an entry, evicting least-recently-used entries
// until it fits. An entry larger than the whole capacity is rejected rather
// than draining the cache.
func (c *BlobCache) Set(ctx context.Context, entry *domain.CacheEntry) error {
	if entry.Size > c.capacity {
		c.log.Debug("entry exceeds cache capacity, not cached",
			zap.String("item_id", entry.ItemID),
			zap.String("size", humanize.IBytes(uint64(entry.Size))))
		return domain.ErrEntryTooLarge
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.probed[entry.ItemID] = struct{}{}
	if el, ok := c.entries[entry.ItemID]; ok {
		old := el.Value.(*domain.CacheEntry)
		c.used -= old.Size
		c.removeFromIndexLocked(old.ParentID, old.ItemID)
		c.order.Remove(el)
		delete(c.entries, entry.ItemID)
	}
	if !c.insertLocked(ctx, entry) {
		return domain.ErrEntryTooLarge
	}
	c.persist(ctx, entry)
	return nil
}

// Delete removes an entry and its size accounting regardless of recency.
// Deleting an absent key is a no-op.
func (c *BlobCache) Delete(ctx context.Context, itemID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteLocked(ctx, itemID, true)
}

// InvalidateChildren removes the given entries belonging to one parent
// folder, rewriting the parent's child index exactly once. Used by the
// invalidation utility for multi-item deletes.
func (c *BlobCache) InvalidateChildren(ctx context.Context, parentID string, itemIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range itemIDs {
		c.deleteLocked(ctx, id, false)
	}
	if parentID == "" {
		return
	}
	removed := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		removed[id] = struct{}{}
	}
	kept := c.index[parentID][:0]
	for _, id := range c.index[parentID] {
		if _, gone := removed[id]; !gone {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		delete(c.index, parentID)
	} else {
		c.index[parentID] = kept
	}
	c.persistIndex(ctx, parentID)
}

// CachedChildren returns the item ids indexed under a folder, merging the
// in-memory index with the one persisted by earlier sessions. The merge is
// what lets invalidation reach entries that only exist on disk after a
// restart. Store failures are reported and reduce the answer to the
// in-memory view.
func (c *BlobCache) CachedChildren(ctx context.Context, parentID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := c.index[parentID]
	out := make([]string, len(ids))
	copy(out, ids)

	raw, err := c.store.Get(ctx, port.CollectionIndex, parentID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.report("cache.index.get", err)
		}
		return out
	}
	var persisted []string
	if err := json.Unmarshal(raw, &persisted); err != nil {
		c.report("cache.index.decode", err)
		return out
	}
	have := make(map[string]struct{}, len(out))
	for _, id := range out {
		have[id] = struct{}{}
	}
	for _, id := range persisted {
		if _, ok := have[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Stats returns the live entry count and tracked bytes.
func (c *BlobCache) Stats() (count int, used int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), c.used
}

// insertLocked adds entry to the front of the recency order, evicting from
// the back until it fits. The entry being inserted is never an eviction
// candidate. Returns false if space could not be made.
func (c *BlobCache) insertLocked(ctx context.Context, entry *domain.CacheEntry) bool {
	if entry.Size > c.capacity {
		return false
	}
	for c.used+entry.Size > c.capacity {
		if !c.evictOneLocked(ctx, entry.ItemID) {
			return false
		}
	}
	c.entries[entry.ItemID] = c.order.PushFront(entry)
	c.used += entry.Size
	if entry.ParentID != "" {
		c.index[entry.ParentID] = append(c.index[entry.ParentID], entry.ItemID)
		c.persistIndex(ctx, entry.ParentID)
	}
	return true
}

// evictOneLocked removes the least-recently-used entry, skipping skipID.
func (c *BlobCache) evictOneLocked(ctx context.Context, skipID string) bool {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		victim := el.Value.(*domain.CacheEntry)
		if victim.ItemID == skipID {
			continue
		}
		c.order.Remove(el)
		delete(c.entries, victim.ItemID)
		c.used -= victim.Size
		c.removeFromIndexLocked(victim.ParentID, victim.ItemID)
		if victim.ParentID != "" {
			c.persistIndex(ctx, victim.ParentID)
		}
		c.unpersist(ctx, victim.ItemID)
		c.log.Debug("evicted cache entry",
			zap.String("item_id", victim.ItemID),
			zap.Int64("size", victim.Size))
		return true
	}
	return false
}

func (c *BlobCache) deleteLocked(ctx context.Context, itemID string, updateIndex bool) {
	el, ok := c.entries[itemID]
	if !ok {
		// Still scrub the store: the entry may exist only on disk.
		c.unpersist(ctx, itemID)
		return
	}
	entry := el.Value.(*domain.CacheEntry)
	c.order.Remove(el)
	delete(c.entries, itemID)
	c.used -= entry.Size
	if updateIndex {
		c.removeFromIndexLocked(entry.ParentID, itemID)
		if entry.ParentID != "" {
			c.persistIndex(ctx, entry.ParentID)
		}
	}
	c.unpersist(ctx, itemID)
}

func (c *BlobCache) removeFromIndexLocked(parentID, itemID string) {
	if parentID == "" {
		return
	}
	ids := c.index[parentID]
	for i, id := range ids {
		if id == itemID {
			c.index[parentID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(c.index[parentID]) == 0 {
		delete(c.index, parentID)
	}
}

// hydrateLocked loads an entry from the persistent store. Any store failure
// is reported and turns into a miss.
func (c *BlobCache) hydrateLocked(ctx context.Context, itemID string) *domain.CacheEntry {
	raw, err := c.store.Get(ctx, port.CollectionMeta, itemID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.report("cache.hydrate.meta", err)
		}
		return nil
	}
	var meta entryMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		c.report("cache.hydrate.decode", err)
		return nil
	}
	blob, err := c.store.Get(ctx, port.CollectionBlobs, itemID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.report("cache.hydrate.blob", err)
		}
		return nil
	}
	return &domain.CacheEntry{
		ItemID:    itemID,
		ParentID:  meta.ParentID,
		Content:   blob,
		Size:      meta.Size,
		UpdatedAt: meta.UpdatedAt,
	}
}

// persist writes an entry through to the store. Failures cost durability,
// not correctness, so they are reported and swallowed.
func (c *BlobCache) persist(ctx context.Context, entry *domain.CacheEntry) {
	meta, err := json.Marshal(entryMeta{
		ParentID:  entry.ParentID,
		Size:      entry.Size,
		UpdatedAt: entry.UpdatedAt,
	})
	if err != nil {
		c.report("cache.persist.encode", err)
		return
	}
	if err := c.store.Put(ctx, port.CollectionMeta, entry.ItemID, meta); err != nil {
		c.report("cache.persist.meta", err)
		return
	}
	if err := c.store.Put(ctx, port.CollectionBlobs, entry.ItemID, entry.Content); err != nil {
		c.report("cache.persist.blob", err)
	}
}

func (c *BlobCache) unpersist(ctx context.Context, itemID string) {
	if err := c.store.Delete(ctx, port.CollectionBlobs, itemID); err != nil {
		c.report("cache.delete.blob", err)
	}
	if err := c.store.Delete(ctx, port.CollectionMeta, itemID); err != nil {
		c.report("cache.delete.meta", err)
	}
}

func (c *BlobCache) persistIndex(ctx context.Context, parentID string) {
	ids, ok := c.index[parentID]
	if !ok {
		if err := c.store.Delete(ctx, port.CollectionIndex, parentID); err != nil {
			c.report("cache.index.delete", err)
		}
		return
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		c.report("cache.index.encode", err)
		return
	}
	if err := c.store.Put(ctx, port.CollectionIndex, parentID, raw); err != nil {
		c.report("cache.index.put", err)
	}
}

func (c *BlobCache) report(op string, err error) {
	c.log.Warn("blob store operation failed", zap.String("op", op), zap.Error(err))
	if c.reporter != nil {
		c.reporter.Report(op, err)
	}
}
