package domain

import (
	"time"
)

// DownloadableItem is a file or folder reference as selected by the user.
// Files carry the remote file/bucket identifiers needed by the drive client;
// folders never do.
type DownloadableItem struct {
	ID        string
	ParentID  string
	IsFolder  bool
	Name      string
	Type      string // file extension, empty for folders
	Size      int64
	UpdatedAt time.Time

	// Remote addressing, files only
	FileID   string
	BucketID string
}

// DisplayName returns the user-facing name: "name.ext" for files,
// the bare name for folders.
func (i *DownloadableItem) DisplayName() string {
	if i.IsFolder || i.Type == "" {
		return i.Name
	}
	return i.Name + "." + i.Type
}

// Key returns the identity used to compare items within a task. The id alone
// is ambiguous when the same item appears twice in a selection under different
// fetch contexts (owned vs shared), so identity is the (id, isFolder) pair.
func (i *DownloadableItem) Key() ItemKey {
	return ItemKey{ID: i.ID, IsFolder: i.IsFolder}
}

// ItemKey identifies an item within a task.
type ItemKey struct {
	ID       string
	IsFolder bool
}

// Credentials are the secrets handed to the drive client for a fetch.
type Credentials struct {
	Token    string
	Mnemonic string
}

// IsZero reports whether no credentials are set.
func (c Credentials) IsZero() bool {
	return c.Token == "" && c.Mnemonic == ""
}
