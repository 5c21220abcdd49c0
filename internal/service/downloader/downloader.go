// Package downloader orchestrates user-initiated downloads: it turns a
// selection of drive items into a tracked task, decides between cache and
// network per file, fans out item downloads over a bounded worker pool and
// assembles multi-item results into a streamed archive.
package downloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/windrift/drivefetch/internal/cache"
	"github.com/windrift/drivefetch/internal/domain"
	"github.com/windrift/drivefetch/internal/port"
)

// Config contains downloader configuration
type Config struct {
	Concurrency        int
	CacheEligibleLimit int64
	WatchdogTimeout    time.Duration
	WatchdogPoll       time.Duration
	PageSize           int
}

// DefaultConfig returns default downloader configuration
func DefaultConfig() *Config {
	return &Config{
		Concurrency:        3,
		CacheEligibleLimit: 50 * 1024 * 1024, // 50 MiB, strictly less-than
		WatchdogTimeout:    5 * time.Second,
		WatchdogPoll:       500 * time.Millisecond,
		PageSize:           50,
	}
}

// Callbacks carry the caller's progress observers for one task execution.
// Any of them may be nil.
type Callbacks struct {
	OnProgress  port.ProgressFunc
	OnBytes     port.ByteProgressFunc
	OnItemCount port.ItemCountFunc
}

// Service is the download orchestrator.
type Service struct {
	cfg    *Config
	cache  *cache.BlobCache
	drive  port.DriveClient
	lister port.DriveLister
	creds  port.CredentialSource
	sink   port.TaskSink
	saver  port.SaveSink
	conn   port.Connectivity
	log    *zap.Logger

	mu     sync.Mutex
	active map[string]context.CancelCauseFunc
}

// New creates a Service. conn may be nil when the host environment has no
// connectivity signal; the watchdog is then disabled.
func New(
	cfg *Config,
	blobCache *cache.BlobCache,
	drive port.DriveClient,
	lister port.DriveLister,
	creds port.CredentialSource,
	sink port.TaskSink,
	saver port.SaveSink,
	conn port.Connectivity,
	log *zap.Logger,
) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.WatchdogPoll <= 0 {
		cfg.WatchdogPoll = 500 * time.Millisecond
	}
	return &Service{
		cfg:    cfg,
		cache:  blobCache,
		drive:  drive,
		lister: lister,
		creds:  creds,
		sink:   sink,
		saver:  saver,
		conn:   conn,
		log:    log,
		active: make(map[string]context.CancelCauseFunc),
	}
}

// Execute runs a task to its terminal state. Item-level failures are
// recorded on the task and do not abort it; only all-items-failed,
// connection loss and save-sink errors are fatal. Cancellation (via ctx or
// Cancel) is terminal but returns nil.
func (s *Service) Execute(ctx context.Context, task *domain.DownloadTask, cb *Callbacks) error {
	if task == nil {
		return domain.ErrInvalidInput
	}
	if cb == nil {
		cb = &Callbacks{}
	}

	ctx, cancel := context.WithCancelCause(ctx)
	s.register(task.ID, cancel)
	defer s.unregister(task.ID)
	defer cancel(nil)

	wd := newWatchdog(s.conn, s.cfg.WatchdogTimeout, s.cfg.WatchdogPoll, func() {
		cancel(domain.ErrConnectionLost)
	})
	wd.start()
	defer wd.stop()

	s.setStatus(task, domain.TaskStatusPreparing)

	run := &taskRun{
		s:      s,
		task:   task,
		cb:     cb,
		wd:     wd,
		cancel: cancel,
		bytes:  &byteCounter{emit: cb.OnBytes},
	}
	err := run.dispatch(ctx)

	status, terminalErr := s.resolveTerminal(ctx, task, err)
	s.setStatus(task, status)
	if terminalErr != nil {
		s.log.Error("download task failed",
			zap.String("task_id", task.ID),
			zap.String("status", string(status)),
			zap.Int("failed_items", len(task.FailedItems())),
			zap.Error(terminalErr))
	} else {
		s.log.Info("download task finished",
			zap.String("task_id", task.ID),
			zap.String("status", string(status)),
			zap.Int("failed_items", len(task.FailedItems())),
			zap.Int64("network_bytes", run.bytes.sum()))
	}
	return terminalErr
}

// Cancel requests cooperative cancellation of a running task. Returns false
// if no such task is active.
func (s *Service) Cancel(taskID string) bool {
	s.mu.Lock()
	cancel, ok := s.active[taskID]
	s.mu.Unlock()
	if ok {
		cancel(context.Canceled)
	}
	return ok
}

// resolveTerminal maps the run outcome onto a terminal status and the error
// to surface. Cancellation surfaces no error; connection loss overrides
// whatever partial results accumulated.
func (s *Service) resolveTerminal(ctx context.Context, task *domain.DownloadTask, err error) (domain.TaskStatus, error) {
	if cause := context.Cause(ctx); cause != nil {
		if domain.IsConnectionLost(cause) {
			return domain.TaskStatusFailed, domain.ErrConnectionLost
		}
		if domain.IsCancelled(cause) {
			return domain.TaskStatusCancelled, nil
		}
	}
	if err != nil {
		if domain.IsCancelled(err) {
			return domain.TaskStatusCancelled, nil
		}
		if domain.IsConnectionLost(err) {
			return domain.TaskStatusFailed, domain.ErrConnectionLost
		}
		return domain.TaskStatusFailed, err
	}
	if len(task.FailedItems()) > 0 {
		return domain.TaskStatusPartiallyFailed, nil
	}
	return domain.TaskStatusCompleted, nil
}

func (s *Service) setStatus(task *domain.DownloadTask, status domain.TaskStatus) {
	task.Status = status
	if s.sink != nil {
		s.sink.TaskStatus(task.ID, status)
	}
}

func (s *Service) register(taskID string, cancel context.CancelCauseFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[taskID] = cancel
}

func (s *Service) unregister(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, taskID)
}

// taskRun carries one task execution's state so it is passed explicitly
// rather than captured in closures.
type taskRun struct {
	s      *Service
	task   *domain.DownloadTask
	cb     *Callbacks
	wd     *watchdog
	cancel context.CancelCauseFunc
	bytes  *byteCounter
}

func (r *taskRun) dispatch(ctx context.Context) error {
	if len(r.task.Items) == 0 {
		return fmt.Errorf("task %s: %w", r.task.ID, domain.ErrEmptySelection)
	}
	if len(r.task.Items) == 1 {
		if r.task.Items[0].IsFolder {
			return r.downloadFolderTask(ctx)
		}
		return r.downloadFile(ctx)
	}
	return r.downloadItems(ctx)
}

func (r *taskRun) progress(f float64) {
	if r.s.sink != nil {
		r.s.sink.TaskProgress(r.task.ID, f)
	}
	if r.cb.OnProgress != nil {
		r.cb.OnProgress(f)
	}
}
