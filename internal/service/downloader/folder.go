package downloader

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/windrift/drivefetch/internal/archive"
	"github.com/windrift/drivefetch/internal/domain"
	"github.com/windrift/drivefetch/internal/port"
)

// resolvedFile is a file discovered under a folder together with its entry
// path inside the archive.
type resolvedFile struct {
	item domain.DownloadableItem
	path string
}

// downloadFolderTask handles a single-folder task: the folder is expanded
// and zipped into one archive delivered under the folder's name.
func (r *taskRun) downloadFolderTask(ctx context.Context) error {
	folder := &r.task.Items[0]

	target, err := r.s.saver.Create(r.task.ArchiveName + ".zip")
	if err != nil {
		return fmt.Errorf("failed to create save target: %w", err)
	}
	aw := archive.NewWriter(target)
	r.s.setStatus(r.task, domain.TaskStatusInProgress)

	err = r.downloadFolder(ctx, folder, aw, folder.Name+"/", r.progress, r.bytes.add, r.cb.OnItemCount)

	if ctx.Err() != nil {
		// Cooperative cancellation: close (not abandon) the writer, then
		// drop the partial artifact.
		_ = aw.Close()
		_ = target.Discard()
		return context.Cause(ctx)
	}
	if err != nil {
		aw.Abort()
		_ = aw.Close()
		_ = target.Discard()
		return err
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

// downloadFolder expands a folder and feeds every resolved file through the
// cache-or-network path into aw under the given entry prefix. Item-level
// failures are recorded on the task; the folder as a whole fails only when
// expansion fails, every file fails, or the connection drops.
func (r *taskRun) downloadFolder(ctx context.Context, folder *domain.DownloadableItem, aw archiveAppender, prefix string, onProgress port.ProgressFunc, onBytes port.ByteProgressFunc, onItemCount port.ItemCountFunc) error {
	files, dirs, err := r.expandFolder(ctx, folder, prefix)
	if err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return fmt.Errorf("failed to expand folder %s: %w", folder.Name, err)
	}
	if onItemCount != nil {
		onItemCount(len(files))
	}
	for _, d := range dirs {
		if err := aw.AddDir(d); err != nil {
			return err
		}
	}
	if len(files) == 0 {
		if onProgress != nil {
			onProgress(1)
		}
		return nil
	}

	table := newProgressTable(len(files), onProgress)
	var failMu sync.Mutex
	failed := 0

	r.forEach(ctx, len(files), func(i int) {
		f := files[i]
		err := r.archiveFile(ctx, f, aw, table.slot(i), onBytes)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.s.log.Error("item download failed",
				zap.String("task_id", r.task.ID),
				zap.String("entry", f.path),
				zap.Error(err))
			r.task.RecordFailure(f.item)
			failMu.Lock()
			failed++
			failMu.Unlock()
			if domain.IsConnectionLost(err) {
				r.cancel(domain.ErrConnectionLost)
			}
			return
		}
		table.update(i, 1)
	})

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if failed == len(files) {
		return fmt.Errorf("folder %s: %w", folder.Name, domain.ErrAllItemsFailed)
	}
	return nil
}

// expandFolder walks the folder subtree breadth-first over the paginated
// lister. A visited set keyed by folder id terminates the walk on cycles and
// deduplicates shared subtrees.
func (r *taskRun) expandFolder(ctx context.Context, root *domain.DownloadableItem, prefix string) ([]resolvedFile, []string, error) {
	type frame struct {
		id     string
		prefix string
	}

	visited := make(map[string]struct{})
	queue := []frame{{id: root.ID, prefix: prefix}}
	dirs := []string{prefix}
	var files []resolvedFile

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, seen := visited[cur.id]; seen {
			continue
		}
		visited[cur.id] = struct{}{}

		offset := 0
		for {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			page, err := r.s.lister.ListChildren(ctx, cur.id, r.task.WorkspaceID, offset, r.s.cfg.PageSize)
			if err != nil {
				return nil, nil, err
			}
			for _, child := range page.Items {
				if child.IsFolder {
					sub := cur.prefix + child.Name + "/"
					queue = append(queue, frame{id: child.ID, prefix: sub})
					dirs = append(dirs, sub)
				} else {
					files = append(files, resolvedFile{item: child, path: cur.prefix + child.DisplayName()})
				}
			}
			if !page.More || len(page.Items) == 0 {
				break
			}
			offset = page.NextOffset
		}
	}
	return files, dirs, nil
}

// forEach runs fn(i) for i in [0, n) over the bounded worker pool.
func (r *taskRun) forEach(ctx context.Context, n int, fn func(i int)) {
	workers := r.s.cfg.Concurrency
	if workers > n {
		workers = n
	}

	tasks := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				fn(i)
			}
		}()
	}

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			// Stop issuing new item downloads; in-flight ones observe ctx.
			close(tasks)
			wg.Wait()
			return
		case tasks <- i:
		}
	}
	close(tasks)
	wg.Wait()
}
