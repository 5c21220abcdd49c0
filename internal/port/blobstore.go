package port

import "context"

// Blob store collection names used by the cache.
const (
	CollectionBlobs = "blobs"
	CollectionMeta  = "meta"
	CollectionIndex = "index"
)

// BlobStore is the persistent key-value store backing the blob cache across
// sessions. Keys live under a collection name. All operations may fail
// independently of the in-memory cache; callers treat failures as loss of
// durability, never loss of correctness.
type BlobStore interface {
	// Get returns the stored value, or domain.ErrNotFound if absent.
	Get(ctx context.Context, collection, key string) ([]byte, error)

	// Put stores or replaces a value.
	Put(ctx context.Context, collection, key string, value []byte) error

	// Delete removes a value. Deleting an absent key is a no-op.
	Delete(ctx context.Context, collection, key string) error
}
