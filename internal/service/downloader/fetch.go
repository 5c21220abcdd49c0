package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/windrift/drivefetch/internal/domain"
	"github.com/windrift/drivefetch/internal/port"
)

// downloadFile handles a single-file task: the stream lands in the save sink
// as-is, no archive.
func (r *taskRun) downloadFile(ctx context.Context) error {
	item := &r.task.Items[0]

	target, err := r.s.saver.Create(r.task.ArchiveName)
	if err != nil {
		return fmt.Errorf("failed to create save target: %w", err)
	}
	r.s.setStatus(r.task, domain.TaskStatusInProgress)

	err = r.streamFile(ctx, item, target, r.progress, r.bytes.add)
	if err != nil {
		_ = target.Discard()
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		r.task.RecordFailure(*item)
		return fmt.Errorf("download failed for %s: %w", item.DisplayName(), err)
	}
	if ctx.Err() != nil {
		_ = target.Discard()
		return context.Cause(ctx)
	}
	if err := target.Close(); err != nil {
		return fmt.Errorf("failed to deliver %s: %w", item.DisplayName(), err)
	}
	return nil
}

// streamFile writes one file's plaintext bytes to w, serving from cache when
// the entry is fresh and falling back to the network otherwise. Successful
// network fetches below the eligibility threshold populate the cache.
func (r *taskRun) streamFile(ctx context.Context, item *domain.DownloadableItem, w io.Writer, onProgress port.ProgressFunc, onBytes port.ByteProgressFunc) error {
	// Zero-size files never touch the network: an empty stream is produced
	// directly.
	if item.Size == 0 {
		if onProgress != nil {
			onProgress(1)
		}
		return nil
	}

	if entry, ok := r.s.cache.Get(ctx, item.ID); ok && !entry.Stale(item.UpdatedAt) {
		if _, err := w.Write(entry.Content); err != nil {
			return fmt.Errorf("failed to write cached content: %w", err)
		}
		if onProgress != nil {
			onProgress(1)
		}
		r.s.log.Debug("served from cache",
			zap.String("item_id", item.ID),
			zap.Int64("size", entry.Size))
		return nil
	}

	body, total, err := r.s.drive.Fetch(ctx, item.BucketID, item.FileID, r.task.Credentials, nil)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	defer body.Close()
	if total <= 0 {
		total = item.Size
	}

	pr := &progressReader{
		reader:     body,
		total:      total,
		onProgress: onProgress,
		onBytes:    onBytes,
		wd:         r.wd,
	}

	var src io.Reader = pr
	var buf *bytes.Buffer
	eligible := item.Size < r.s.cfg.CacheEligibleLimit
	if eligible {
		buf = bytes.NewBuffer(make([]byte, 0, item.Size))
		src = io.TeeReader(pr, buf)
	}

	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("stream copy failed: %w", err)
	}
	if onProgress != nil {
		onProgress(1)
	}

	if eligible {
		content := buf.Bytes()
		entry := &domain.CacheEntry{
			ItemID:    item.ID,
			ParentID:  item.ParentID,
			Content:   content,
			Size:      int64(len(content)),
			UpdatedAt: item.UpdatedAt,
		}
		if err := r.s.cache.Set(ctx, entry); err != nil && !errors.Is(err, domain.ErrEntryTooLarge) {
			r.s.log.Warn("failed to cache downloaded content",
				zap.String("item_id", item.ID),
				zap.Error(err))
		}
	}
	return nil
}

// archiveFile fetches one resolved file and appends it to the shared archive
// writer. The fetch fills a pipe concurrently; the archive append consumes
// it serialized.
func (r *taskRun) archiveFile(ctx context.Context, f resolvedFile, aw archiveAppender, onProgress port.ProgressFunc, onBytes port.ByteProgressFunc) error {
	pr, pw := io.Pipe()
	fetchErr := make(chan error, 1)
	go func() {
		err := r.streamFile(ctx, &f.item, pw, onProgress, onBytes)
		pw.CloseWithError(err)
		fetchErr <- err
	}()

	addErr := aw.AddFile(f.path, pr)
	// Unblock the fetch goroutine if the writer stopped consuming early.
	_ = pr.CloseWithError(io.ErrClosedPipe)
	err := <-fetchErr

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if err != nil {
		return err
	}
	if addErr != nil {
		return fmt.Errorf("archive append failed for %s: %w", f.path, addErr)
	}
	return nil
}

// archiveAppender is the slice of the archive writer the fetch paths need.
type archiveAppender interface {
	AddFile(name string, r io.Reader) error
	AddDir(name string) error
}
