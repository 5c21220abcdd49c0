package domain

import (
	"sync"
	"time"
)

// TaskStatus is the lifecycle state of a download task.
type TaskStatus string

// Task status constants
const (
	TaskStatusPending         TaskStatus = "pending"
	TaskStatusPreparing       TaskStatus = "preparing"
	TaskStatusInProgress      TaskStatus = "in_progress"
	TaskStatusCompleted       TaskStatus = "completed"
	TaskStatusPartiallyFailed TaskStatus = "partially_failed"
	TaskStatusFailed          TaskStatus = "failed"
	TaskStatusCancelled       TaskStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusPartiallyFailed, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// DownloadTask is one user-initiated download operation tracked end to end.
// The orchestrator mutates it as progress and failure events occur; it is
// discarded once a terminal status has been delivered to the task sink.
type DownloadTask struct {
	ID          string
	Items       []DownloadableItem
	Credentials Credentials
	ArchiveName string

	// Options
	TreatAsShared bool
	ReportErrors  bool
	WorkspaceID   string

	Status    TaskStatus
	CreatedAt time.Time

	mu     sync.Mutex
	failed []DownloadableItem
}

// RecordFailure appends an item to the failed list. Safe for concurrent use
// by in-flight item downloads.
func (t *DownloadTask) RecordFailure(item DownloadableItem) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = append(t.failed, item)
}

// FailedItems returns a copy of the items that failed so far.
func (t *DownloadTask) FailedItems() []DownloadableItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]DownloadableItem, len(t.failed))
	copy(out, t.failed)
	return out
}

// AllFailed reports whether every distinct item in the task has failed.
// Distinctness is by ItemKey, so duplicate selections of the same item do
// not skew the comparison.
func (t *DownloadTask) AllFailed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.failed) == 0 {
		return false
	}
	want := make(map[ItemKey]struct{}, len(t.Items))
	for i := range t.Items {
		want[t.Items[i].Key()] = struct{}{}
	}
	got := make(map[ItemKey]struct{}, len(t.failed))
	for i := range t.failed {
		got[t.failed[i].Key()] = struct{}{}
	}
	if len(got) < len(want) {
		return false
	}
	for k := range want {
		if _, ok := got[k]; !ok {
			return false
		}
	}
	return true
}
