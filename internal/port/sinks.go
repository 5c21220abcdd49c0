package port

import (
	"io"

	"github.com/windrift/drivefetch/internal/domain"
)

// ProgressFunc reports fractional progress in [0, 1].
type ProgressFunc func(fraction float64)

// ByteProgressFunc reports a delta of newly transferred bytes. Cache hits do
// not report; the counter feeds throughput display only.
type ByteProgressFunc func(delta int64)

// ItemCountFunc reports how many files a folder expansion resolved to.
type ItemCountFunc func(count int)

// TaskSink observes task lifecycle transitions and progress. It never
// influences control flow.
type TaskSink interface {
	TaskCreated(task *domain.DownloadTask)
	TaskStatus(taskID string, status domain.TaskStatus)
	TaskProgress(taskID string, fraction float64)
}

// SaveTarget receives one output artifact. Close delivers it; Discard drops
// it without delivering (used when a task fails fatally or is cancelled).
type SaveTarget interface {
	io.WriteCloser

	// Discard abandons the artifact. Safe to call after a failed Close.
	Discard() error
}

// SaveSink produces targets for final byte streams, single files and archives
// alike. How a target persists its bytes is out of scope here.
type SaveSink interface {
	Create(name string) (SaveTarget, error)
}

// ErrorReporter receives non-fatal errors the core swallows, such as cache
// persistence failures that are resolved by falling back to the network.
type ErrorReporter interface {
	Report(op string, err error)
}

// LinkStatus is the process connectivity signal.
type LinkStatus int

// Link states
const (
	LinkUnknown LinkStatus = iota
	LinkOnline
	LinkOffline
)

// Connectivity exposes the host environment's connectivity signal to the
// download watchdog. Unknown means the signal has not been confirmed yet.
type Connectivity interface {
	Status() LinkStatus
}
