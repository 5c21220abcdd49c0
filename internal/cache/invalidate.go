package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/windrift/drivefetch/internal/domain"
	"github.com/windrift/drivefetch/internal/port"
)

const invalidatePageSize = 200

// Invalidator keeps the blob cache consistent with the remote tree when
// drive items are deleted or moved. Folder subtrees are expanded through the
// drive lister so every cached descendant is dropped.
type Invalidator struct {
	cache  *BlobCache
	lister port.DriveLister
	log    *zap.Logger
}

// NewInvalidator creates an Invalidator over the given cache.
func NewInvalidator(c *BlobCache, lister port.DriveLister, log *zap.Logger) *Invalidator {
	return &Invalidator{cache: c, lister: lister, log: log}
}

// Invalidate removes the cache entries for the given deleted-or-moved items.
// Folders are walked breadth-first with a visited guard so deep or cyclic
// trees terminate. Removals are grouped per parent folder so each parent's
// child index is rewritten once per call. Items without a parent identifier
// cannot be attributed to a group; their entries are still removed directly.
func (v *Invalidator) Invalidate(ctx context.Context, items []domain.DownloadableItem) error {
	files, folders := partition(items)

	visited := make(map[string]struct{}, len(folders))
	queue := folders
	for len(queue) > 0 {
		folder := queue[0]
		queue = queue[1:]
		if _, seen := visited[folder.ID]; seen {
			continue
		}
		visited[folder.ID] = struct{}{}

		children, err := v.listAll(ctx, folder.ID)
		if err != nil {
			return fmt.Errorf("failed to expand folder %s: %w", folder.ID, err)
		}
		for _, child := range children {
			if child.IsFolder {
				queue = append(queue, child)
			} else {
				files = append(files, child)
			}
		}
		// A deleted folder may still index children the lister no longer
		// returns, in memory or persisted by an earlier session; scrub
		// whatever the cache knows under it.
		for _, id := range v.cache.CachedChildren(ctx, folder.ID) {
			files = append(files, domain.DownloadableItem{ID: id, ParentID: folder.ID})
		}
	}

	byParent := make(map[string][]string)
	var orphans []string
	seen := make(map[string]struct{}, len(files))
	for i := range files {
		f := &files[i]
		if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}
		if f.ParentID == "" {
			orphans = append(orphans, f.ID)
			continue
		}
		byParent[f.ParentID] = append(byParent[f.ParentID], f.ID)
	}

	for parentID, ids := range byParent {
		v.cache.InvalidateChildren(ctx, parentID, ids)
	}
	for _, id := range orphans {
		v.cache.Delete(ctx, id)
	}

	v.log.Debug("cache invalidation complete",
		zap.Int("files", len(seen)),
		zap.Int("folders", len(visited)))
	return nil
}

// listAll drains the paginated child listing for one folder.
func (v *Invalidator) listAll(ctx context.Context, folderID string) ([]domain.DownloadableItem, error) {
	var out []domain.DownloadableItem
	offset := 0
	for {
		page, err := v.lister.ListChildren(ctx, folderID, "", offset, invalidatePageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if !page.More || len(page.Items) == 0 {
			return out, nil
		}
		offset = page.NextOffset
	}
}

func partition(items []domain.DownloadableItem) (files, folders []domain.DownloadableItem) {
	for i := range items {
		if items[i].IsFolder {
			folders = append(folders, items[i])
		} else {
			files = append(files, items[i])
		}
	}
	return files, folders
}
