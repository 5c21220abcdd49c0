// Package filesystem implements the disk save sink: final single-file or
// archive streams land as files under an output directory, written to a
// temporary path and renamed into place on delivery.
package filesystem

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/windrift/drivefetch/internal/port"
)

// Sink writes delivered streams to a local directory.
type Sink struct {
	outDir     string
	bufferSize int
}

// Ensure Sink implements port.SaveSink
var _ port.SaveSink = (*Sink)(nil)

// NewSink creates a new disk save sink rooted at outDir.
func NewSink(outDir string) (*Sink, error) {
	return NewSinkWithBufferSize(outDir, 8*1024*1024)
}

// NewSinkWithBufferSize creates a sink with a custom write buffer size.
func NewSinkWithBufferSize(outDir string, bufferSize int) (*Sink, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	if bufferSize <= 0 {
		bufferSize = 8 * 1024 * 1024
	}
	return &Sink{outDir: outDir, bufferSize: bufferSize}, nil
}

// Create opens a save target for one artifact. Bytes go to a .partial file;
// Close flushes and renames it into place, Discard removes it.
func (s *Sink) Create(name string) (port.SaveTarget, error) {
	finalPath := filepath.Join(s.outDir, filepath.Base(name))
	tempPath := finalPath + ".partial"

	f, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	return &target{
		file:      f,
		buf:       bufio.NewWriterSize(f, s.bufferSize),
		tempPath:  tempPath,
		finalPath: finalPath,
	}, nil
}

type target struct {
	file      *os.File
	buf       *bufio.Writer
	tempPath  string
	finalPath string
	done      bool
}

func (t *target) Write(p []byte) (int, error) {
	return t.buf.Write(p)
}

// Close delivers the artifact: flush, sync, rename to the final path.
func (t *target) Close() error {
	if t.done {
		return nil
	}
	t.done = true

	if err := t.buf.Flush(); err != nil {
		t.file.Close()
		return fmt.Errorf("failed to flush: %w", err)
	}
	if err := t.file.Sync(); err != nil {
		t.file.Close()
		return fmt.Errorf("failed to sync: %w", err)
	}
	if err := t.file.Close(); err != nil {
		return fmt.Errorf("failed to close: %w", err)
	}
	if err := os.Rename(t.tempPath, t.finalPath); err != nil {
		return fmt.Errorf("failed to finalize file: %w", err)
	}
	return nil
}

// Discard abandons the artifact and removes the temp file.
func (t *target) Discard() error {
	if !t.done {
		t.done = true
		t.file.Close()
	}
	if err := os.Remove(t.tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temp file: %w", err)
	}
	return nil
}

// Path returns where a delivered artifact with the given name ends up.
func (s *Sink) Path(name string) string {
	return filepath.Join(s.outDir, filepath.Base(name))
}
