// Package drive выгружает готовые файлы в папку партнера в Google Drive.
package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Uploader - выгрузка одного файла в папку.
type Uploader interface {
	// Upload возвращает идентификатор созданного файла.
	Upload(ctx context.Context, folderID, name, contentType string, data []byte) (string, error)
}

// Client - Uploader поверх Drive API v3.
type Client struct {
	files  *gdrive.FilesService
	logger *zap.Logger
}

var _ Uploader = (*Client)(nil)

// New создает клиента. Пустой credentialsFile - Application Default Credentials.
func New(ctx context.Context, credentialsFile string, logger *zap.Logger, extra ...option.ClientOption) (*Client, error) {
	opts := []option.ClientOption{option.WithScopes(gdrive.DriveFileScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, extra...)

	srv, err := gdrive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &Client{files: srv.Files, logger: logger.Named("DriveUploader")}, nil
}

func (c *Client) Upload(ctx context.Context, folderID, name, contentType string, data []byte) (string, error) {
	if folderID == "" {
		return "", errors.New("drive: folder id is empty")
	}
	meta := &gdrive.File{
		Name:     name,
		Parents:  []string{folderID},
		MimeType: contentType,
	}
	file, err := c.files.Create(meta).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		SupportsAllDrives(true).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("drive upload %s: %w", name, err)
	}
	c.logger.Info("File uploaded to Drive",
		zap.String("folder_id", folderID),
		zap.String("name", name),
		zap.String("file_id", file.Id),
		zap.Int("size_bytes", len(data)),
	)
	return file.Id, nil
}
