package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

type driveClient struct {
	srv *drive.Service
}

// authorizedUser is the shape of the per-tenant stored OAuth credential blob.
type authorizedUser struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
}

func newDriveClient(ctx context.Context, cfg Config) (RemoteStorage, error) {
	var creds authorizedUser
	if err := json.Unmarshal([]byte(cfg.CredentialsJSON), &creds); err != nil {
		return nil, fmt.Errorf("parse drive credentials: %w", err)
	}

	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: creds.TokenURI},
		Scopes:       creds.Scopes,
	}
	// Expired on purpose so the token source refreshes on first use.
	tok := &oauth2.Token{
		AccessToken:  creds.Token,
		RefreshToken: creds.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}

	srv, err := drive.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("build drive service: %w", err)
	}
	return &driveClient{srv: srv}, nil
}

func (c *driveClient) ListFolders(ctx context.Context, parentID, name string) ([]Folder, error) {
	query := fmt.Sprintf(
		"mimeType='%s' and name='%s' and '%s' in parents and trashed=false",
		folderMimeType, escapeQueryValue(name), parentID,
	)
	list, err := c.srv.Files.List().
		Context(ctx).
		Q(query).
		Fields("files(id, name, createdTime)").
		Do()
	if err != nil {
		return nil, err
	}

	folders := make([]Folder, 0, len(list.Files))
	for _, f := range list.Files {
		created, _ := time.Parse(time.RFC3339, f.CreatedTime)
		folders = append(folders, Folder{ID: f.Id, Name: f.Name, CreatedTime: created})
	}
	return folders, nil
}

func (c *driveClient) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	folder, err := c.srv.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).Context(ctx).Fields("id").Do()
	if err != nil {
		return "", err
	}
	return folder.Id, nil
}

func (c *driveClient) UploadFile(ctx context.Context, parentID, localPath, filename string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	created, err := c.srv.Files.Create(&drive.File{
		Name:    filename,
		Parents: []string{parentID},
	}).Context(ctx).Media(f).Fields("id").Do()
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

// escapeQueryValue escapes single quotes and backslashes for a Drive query
// string literal.
func escapeQueryValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
