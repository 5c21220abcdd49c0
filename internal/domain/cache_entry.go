package domain

import "time"

// CacheEntry is one cached blob plus the metadata needed for eviction,
// staleness checks and folder-level invalidation.
type CacheEntry struct {
	ItemID    string
	ParentID  string
	Content   []byte
	Size      int64
	UpdatedAt time.Time
}

// Stale reports whether the entry is older than the live item's timestamp.
// Staleness is purely a timestamp comparison, no content hashing.
func (e *CacheEntry) Stale(liveUpdatedAt time.Time) bool {
	return liveUpdatedAt.After(e.UpdatedAt)
}
