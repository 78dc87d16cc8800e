package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	appconfig "github.com/adomasb/backstop/internal/config"
	"github.com/adomasb/backstop/internal/domain"
)

// DriveStore keeps archives as name-keyed files inside a single Drive
// folder. Auth uses a pre-provisioned service-account credentials file.
type DriveStore struct {
	service  *drive.Service
	folderID string
}

func NewDrive(cfg *appconfig.StoreConfig) (*DriveStore, error) {
	service, err := drive.NewService(context.Background(),
		option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &DriveStore{
		service:  service,
		folderID: cfg.FolderID,
	}, nil
}

func (g *DriveStore) findByName(ctx context.Context, name string) (*drive.File, error) {
	query := fmt.Sprintf("'%s' in parents and name='%s' and trashed=false", g.folderID, name)

	fileList, err := g.service.Files.List().
		Q(query).
		Fields("files(id, name, size, modifiedTime)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to query drive: %w", err)
	}

	if len(fileList.Files) == 0 {
		return nil, nil
	}
	return fileList.Files[0], nil
}

func (g *DriveStore) Exists(ctx context.Context, key string) (bool, int64, error) {
	file, err := g.findByName(ctx, key)
	if err != nil {
		return false, 0, err
	}
	if file == nil {
		return false, 0, nil
	}
	return true, file.Size, nil
}

func (g *DriveStore) Upload(ctx context.Context, localPath string, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	meta := &drive.File{
		Name:    key,
		Parents: []string{g.folderID},
	}

	_, err = g.service.Files.Create(meta).
		Media(file).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to upload to drive: %w", err)
	}

	return nil
}

func (g *DriveStore) ListByPrefix(ctx context.Context, prefix string) ([]domain.RemoteObject, error) {
	query := fmt.Sprintf("'%s' in parents and trashed=false", g.folderID)

	fileList, err := g.service.Files.List().
		Q(query).
		Fields("files(id, name, size, modifiedTime)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list drive files: %w", err)
	}

	var objects []domain.RemoteObject
	for _, file := range fileList.Files {
		if prefix != "" && !strings.HasPrefix(file.Name, prefix) {
			continue
		}
		modified, err := time.Parse(time.RFC3339, file.ModifiedTime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse modifiedTime for %s: %w", file.Name, err)
		}
		objects = append(objects, domain.RemoteObject{
			Key:          file.Name,
			Size:         file.Size,
			LastModified: modified,
		})
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.Before(objects[j].LastModified)
	})

	return objects, nil
}

func (g *DriveStore) Download(ctx context.Context, key string, localPath string) error {
	file, err := g.findByName(ctx, key)
	if err != nil {
		return err
	}
	if file == nil {
		return fmt.Errorf("file not found: %s", key)
	}

	resp, err := g.service.Files.Get(file.Id).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("failed to download from drive: %w", err)
	}
	defer resp.Body.Close()

	dest, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, resp.Body); err != nil {
		return fmt.Errorf("failed to write download: %w", err)
	}

	return nil
}
