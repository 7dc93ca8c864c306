// Package storage is the remote-storage capability the mirror talks through.
// Implementations exist for Google Drive and GCS; the mirror never sees
// provider-specific types and never lets provider errors escape past it.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Folder is a remote folder as seen by ListFolders.
type Folder struct {
	ID          string
	Name        string
	CreatedTime time.Time
}

// RemoteStorage is the capability set the core needs from a storage provider.
type RemoteStorage interface {
	// ListFolders returns the folders named exactly name under parentID.
	ListFolders(ctx context.Context, parentID, name string) ([]Folder, error)
	// CreateFolder creates a folder under parentID and returns its id.
	CreateFolder(ctx context.Context, parentID, name string) (string, error)
	// UploadFile uploads the local file into parentID under filename and
	// returns the remote file id.
	UploadFile(ctx context.Context, parentID, localPath, filename string) (string, error)
}

// Config carries everything needed to build a client for one tenant.
type Config struct {
	Provider        string
	Bucket          string
	CredentialsJSON string
}

// ConnectFunc builds a RemoteStorage client for a tenant's stored config.
// The mirror holds one of these so tests can swap in a fake.
type ConnectFunc func(ctx context.Context, cfg Config) (RemoteStorage, error)

// Connect is the production ConnectFunc.
func Connect(ctx context.Context, cfg Config) (RemoteStorage, error) {
	switch cfg.Provider {
	case "gcs":
		return newGCSClient(ctx, cfg)
	case "", "drive":
		return newDriveClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}
