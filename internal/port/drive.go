package port

import (
	"context"
	"io"

	"github.com/windrift/drivefetch/internal/domain"
)

// FetchOptions contains options for a single file fetch.
type FetchOptions struct {
	// RangeStart requests the byte range [RangeStart, end) when >= 0.
	RangeStart int64
}

// DriveClient downloads file content from remote storage. The returned reader
// is lazy: bytes are transferred as it is consumed, already decrypted by the
// transport layer.
type DriveClient interface {
	// Fetch opens a plaintext byte stream for the given bucket/file.
	// Returns: body, total content length, error. The body observes ctx and
	// aborts the transfer when it is cancelled.
	Fetch(ctx context.Context, bucketID, fileID string, creds domain.Credentials, opts *FetchOptions) (io.ReadCloser, int64, error)
}

// ChildPage is one page of a folder's children.
type ChildPage struct {
	Items      []domain.DownloadableItem
	NextOffset int
	More       bool
}

// DriveLister enumerates a folder's children, one page at a time. Pagination
// is restartable per folder and finite: a page with More == false terminates
// the walk. workspaceID is empty outside a shared/business workspace context.
type DriveLister interface {
	ListChildren(ctx context.Context, folderID, workspaceID string, offset, limit int) (*ChildPage, error)

	// GetItem resolves a single item's metadata by identifier.
	GetItem(ctx context.Context, itemID string) (*domain.DownloadableItem, error)
}

// CredentialSource resolves the credentials a task should run with when the
// caller supplies none: workspace credentials first if a workspace context is
// active, the signed-in user's own credentials otherwise.
type CredentialSource interface {
	WorkspaceCredentials() (domain.Credentials, bool)
	UserCredentials() domain.Credentials
}
