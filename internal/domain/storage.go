package domain

import (
	"context"
	"time"
)

// RemoteObject is the store's view of an uploaded archive.
type RemoteObject struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore is the capability set the backup procedures need from a remote
// store. Any failure, including a missing bucket, comes back as an error for
// the calling procedure to fold into its BackupResult.
type ObjectStore interface {
	// Exists reports whether key is present and, if so, its size in bytes.
	Exists(ctx context.Context, key string) (bool, int64, error)
	Upload(ctx context.Context, localPath string, key string) error
	// ListByPrefix returns objects under prefix sorted by modification time,
	// oldest first. An empty prefix lists everything.
	ListByPrefix(ctx context.Context, prefix string) ([]RemoteObject, error)
	Download(ctx context.Context, key string, localPath string) error
}
