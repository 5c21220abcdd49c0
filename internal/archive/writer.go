// Package archive provides a streaming zip writer that appends named byte
// streams to a single output stream without buffering whole files.
package archive

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zip"
)

// ErrAborted is returned by Read when the writer was aborted mid-entry.
var ErrAborted = errors.New("archive aborted")

const copyBufferSize = 64 * 1024

// Writer appends entries to a zip stream. AddFile calls are serialized
// internally: the archive format is one linear byte stream, so content may be
// fetched concurrently but written one entry at a time. Abort is cooperative
// and makes later AddFile calls no-ops.
type Writer struct {
	mu      sync.Mutex
	zw      *zip.Writer
	dirs    map[string]struct{}
	aborted atomic.Bool
	closed  bool
}

// NewWriter creates a Writer emitting to out.
func NewWriter(out io.Writer) *Writer {
	return &Writer{
		zw:   zip.NewWriter(out),
		dirs: make(map[string]struct{}),
	}
}

// AddFile appends one entry, consuming r incrementally. Entry names use
// forward slashes; parent directory entries are emitted the first time a
// prefix is seen. Duplicate-name disambiguation is the caller's concern.
func (w *Writer) AddFile(name string, r io.Reader) error {
	if w.aborted.Load() {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.aborted.Load() || w.closed {
		return nil
	}

	// First chunk is read before the entry exists, so a stream that fails
	// on its first read leaves no empty entry behind.
	src := &abortReader{r: r, w: w}
	buf := make([]byte, copyBufferSize)
	n, rerr := src.Read(buf)
	if rerr != nil && rerr != io.EOF {
		return fmt.Errorf("failed to write archive entry %s: %w", name, rerr)
	}

	w.ensureDirsLocked(name)
	fw, err := w.zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create archive entry %s: %w", name, err)
	}
	if n > 0 {
		if _, err := fw.Write(buf[:n]); err != nil {
			return fmt.Errorf("failed to write archive entry %s: %w", name, err)
		}
	}
	if rerr == io.EOF {
		return nil
	}
	if _, err := io.CopyBuffer(fw, src, buf); err != nil {
		return fmt.Errorf("failed to write archive entry %s: %w", name, err)
	}
	return nil
}

// AddDir appends an explicit directory entry so empty folders survive in the
// archive.
func (w *Writer) AddDir(name string) error {
	if w.aborted.Load() {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.aborted.Load() || w.closed {
		return nil
	}
	return w.addDirLocked(name)
}

// Abort marks the writer as aborted. In-flight copies stop at their next
// read; subsequent AddFile calls become no-ops. Close must still be called.
func (w *Writer) Abort() {
	w.aborted.Store(true)
}

// Close finalizes the central directory and flushes the stream. Safe after
// Abort: the result is a truncated but properly closed stream. Close is
// idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

func (w *Writer) ensureDirsLocked(name string) {
	dir := path.Dir(name)
	if dir == "." || dir == "/" {
		return
	}
	parts := strings.Split(dir, "/")
	prefix := ""
	for _, p := range parts {
		prefix += p + "/"
		_ = w.addDirLocked(prefix)
	}
}

func (w *Writer) addDirLocked(name string) error {
	if !strings.HasSuffix(name, "/") {
		name += "/"
	}
	if _, ok := w.dirs[name]; ok {
		return nil
	}
	w.dirs[name] = struct{}{}
	if _, err := w.zw.CreateHeader(&zip.FileHeader{Name: name}); err != nil {
		return fmt.Errorf("failed to create archive dir %s: %w", name, err)
	}
	return nil
}

// abortReader stops a copy loop when the writer is aborted, so a cancelled
// task does not keep draining a network stream into the archive.
type abortReader struct {
	r io.Reader
	w *Writer
}

func (a *abortReader) Read(p []byte) (int, error) {
	if a.w.aborted.Load() {
		return 0, ErrAborted
	}
	return a.r.Read(p)
}
