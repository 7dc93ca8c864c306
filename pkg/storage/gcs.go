package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// gcsClient emulates the folder tree on a flat bucket: a "folder id" is an
// object-name prefix ending in "/", marked by a zero-byte object so it can be
// found again by name.
type gcsClient struct {
	client *gcs.Client
	bucket string
}

func newGCSClient(ctx context.Context, cfg Config) (RemoteStorage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs provider requires a bucket")
	}

	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("build gcs client: %w", err)
	}
	return &gcsClient{client: client, bucket: cfg.Bucket}, nil
}

func folderPrefix(parentID, name string) string {
	parent := strings.TrimSuffix(parentID, "/")
	if parent == "" {
		return name + "/"
	}
	return parent + "/" + name + "/"
}

func (c *gcsClient) ListFolders(ctx context.Context, parentID, name string) ([]Folder, error) {
	prefix := folderPrefix(parentID, name)
	attrs, err := c.client.Bucket(c.bucket).Object(prefix).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []Folder{{ID: prefix, Name: name, CreatedTime: attrs.Created}}, nil
}

func (c *gcsClient) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	prefix := folderPrefix(parentID, name)
	w := c.client.Bucket(c.bucket).Object(prefix).NewWriter(ctx)
	w.ContentType = "application/x-directory"
	if err := w.Close(); err != nil {
		return "", err
	}
	return prefix, nil
}

func (c *gcsClient) UploadFile(ctx context.Context, parentID, localPath, filename string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	object := strings.TrimSuffix(parentID, "/") + "/" + filename
	w := c.client.Bucket(c.bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return object, nil
}
