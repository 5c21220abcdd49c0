package downloader

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/windrift/drivefetch/internal/domain"
)

// TaskOptions customize task generation.
type TaskOptions struct {
	// TaskID reuses an existing tracked task (a visible progress row being
	// retried/resumed) instead of registering a new one.
	TaskID string

	// Credentials override the resolved workspace/user credentials.
	Credentials *domain.Credentials

	TreatAsShared bool
	ReportErrors  bool
	WorkspaceID   string
}

// GenerateTask converts a selection into a download task. An empty selection
// yields no task, not an error. Credentials resolve in order: explicit
// caller-supplied, workspace (when a workspace context is active), then the
// signed-in user's own.
func (s *Service) GenerateTask(selection []domain.DownloadableItem, opts TaskOptions) *domain.DownloadTask {
	if len(selection) == 0 {
		return nil
	}

	creds := s.resolveCredentials(opts.Credentials)

	task := &domain.DownloadTask{
		ID:            opts.TaskID,
		Items:         selection,
		Credentials:   creds,
		ArchiveName:   archiveName(selection),
		TreatAsShared: opts.TreatAsShared,
		ReportErrors:  opts.ReportErrors,
		WorkspaceID:   opts.WorkspaceID,
		Status:        domain.TaskStatusPending,
		CreatedAt:     time.Now(),
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
		if s.sink != nil {
			s.sink.TaskCreated(task)
		}
	} else if s.sink != nil {
		// Resuming a visible row: update its status in place.
		s.sink.TaskStatus(task.ID, domain.TaskStatusPending)
	}

	s.log.Debug("generated download task",
		zap.String("task_id", task.ID),
		zap.Int("items", len(selection)),
		zap.String("name", task.ArchiveName))
	return task
}

func (s *Service) resolveCredentials(explicit *domain.Credentials) domain.Credentials {
	if explicit != nil && !explicit.IsZero() {
		return *explicit
	}
	if s.creds == nil {
		return domain.Credentials{}
	}
	if ws, ok := s.creds.WorkspaceCredentials(); ok {
		return ws
	}
	return s.creds.UserCredentials()
}

// archiveName applies the save-name policy: a single file keeps its own
// name.extension, a single folder keeps the folder name (it is still
// zipped), and a mixed selection gets a timestamped default.
func archiveName(selection []domain.DownloadableItem) string {
	if len(selection) == 1 {
		return selection[0].DisplayName()
	}
	return fmt.Sprintf("Archive (%s)", time.Now().Format("2006-01-02 15_04_05"))
}
