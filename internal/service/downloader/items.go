package downloader

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/windrift/drivefetch/internal/archive"
	"github.com/windrift/drivefetch/internal/domain"
)

// downloadItems handles a mixed multi-item selection: one shared archive for
// the whole task, folders expanded into it under their own prefix, files
// appended at the root. Aggregate progress is the mean of per-item fractions.
func (r *taskRun) downloadItems(ctx context.Context) error {
	target, err := r.s.saver.Create(r.task.ArchiveName + ".zip")
	if err != nil {
		return fmt.Errorf("failed to create save target: %w", err)
	}
	aw := archive.NewWriter(target)
	r.s.setStatus(r.task, domain.TaskStatusInProgress)

	table := newProgressTable(len(r.task.Items), r.progress)
	names := entryNames(r.task.Items)

	var errMu sync.Mutex
	var itemErrs *multierror.Error

	r.forEach(ctx, len(r.task.Items), func(i int) {
		item := r.task.Items[i]
		var err error
		if item.IsFolder {
			// Nested, non-closing: the folder shares the task archive.
			err = r.downloadFolder(ctx, &item, aw, names[i]+"/", table.slot(i), r.bytes.add, r.cb.OnItemCount)
		} else {
			err = r.archiveFile(ctx, resolvedFile{item: item, path: names[i]}, aw, table.slot(i), r.bytes.add)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.s.log.Error("item download failed",
				zap.String("task_id", r.task.ID),
				zap.String("item_id", item.ID),
				zap.Bool("is_folder", item.IsFolder),
				zap.Error(err))
			r.task.RecordFailure(item)
			errMu.Lock()
			itemErrs = multierror.Append(itemErrs, err)
			errMu.Unlock()
			if domain.IsConnectionLost(err) {
				r.cancel(domain.ErrConnectionLost)
			}
			return
		}
		table.update(i, 1)
	})

	if ctx.Err() != nil {
		_ = aw.Close()
		_ = target.Discard()
		return context.Cause(ctx)
	}

	if r.task.AllFailed() {
		// Nothing usable was produced: abort rather than deliver an empty
		// archive.
		aw.Abort()
		_ = aw.Close()
		_ = target.Discard()
		return fmt.Errorf("%w: %v", domain.ErrAllItemsFailed, itemErrs.ErrorOrNil())
	}

	if err := aw.Close(); err != nil {
		_ = target.Discard()
		return err
	}
	if err := target.Close(); err != nil {
		return fmt.Errorf("failed to deliver archive: %w", err)
	}
	return nil
}

// entryNames assigns each top-level item its archive entry name. Distinct
// items sharing a display name get a numeric suffix ("name (1).ext") so
// entries in the shared archive stay unique. Folders lose the "/" here; the
// caller appends it.
func entryNames(items []domain.DownloadableItem) []string {
	seen := make(map[string]int, len(items))
	out := make([]string, len(items))
	for i := range items {
		base := items[i].DisplayName()
		n := seen[base]
		seen[base] = n + 1
		if n == 0 {
			out[i] = base
			continue
		}
		if !items[i].IsFolder && items[i].Type != "" {
			out[i] = fmt.Sprintf("%s (%d).%s", items[i].Name, n, items[i].Type)
		} else {
			out[i] = fmt.Sprintf("%s (%d)", items[i].Name, n)
		}
	}
	return out
}
