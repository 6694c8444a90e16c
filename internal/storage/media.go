package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"chatlink/internal/config"
)

// FileInfo describes an uploaded media file.
type FileInfo struct {
	URL      string `json:"url"`
	Path     string `json:"path,omitempty"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	FileName string `json:"fileName"`
}

// MediaStorage is the media-upload collaborator: it accepts a file and
// returns a durable URL. The coordinator never inspects media content.
type MediaStorage interface {
	UploadFile(ctx context.Context, reader io.Reader, fileSize int64, fileName, mimeType string) (*FileInfo, error)
}

// LocalMediaStorage stores uploads on the local filesystem.
type LocalMediaStorage struct {
	basePath string
	baseURL  string
}

// NewLocalMediaStorage creates a MediaStorage backed by a local directory.
func NewLocalMediaStorage(cfg config.StorageConfig) (MediaStorage, error) {
	if err := os.MkdirAll(cfg.LocalPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating media directory %q: %w", cfg.LocalPath, err)
	}
	return &LocalMediaStorage{basePath: cfg.LocalPath, baseURL: cfg.BaseURL}, nil
}

// UploadFile saves the file under a unique name and returns its URL.
func (s *LocalMediaStorage) UploadFile(ctx context.Context, reader io.Reader, fileSize int64, fileName, mimeType string) (*FileInfo, error) {
	ext := filepath.Ext(fileName)
	if ext == "" {
		if extensions, _ := mime.ExtensionsByType(mimeType); len(extensions) > 0 {
			ext = extensions[0]
		}
	}
	uniqueName := uuid.New().String() + ext
	dstPath := filepath.Join(s.basePath, uniqueName)

	dst, err := os.Create(dstPath)
	if err != nil {
		return nil, fmt.Errorf("creating media file %q: %w", dstPath, err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, reader)
	if err != nil {
		os.Remove(dstPath)
		return nil, fmt.Errorf("writing media file: %w", err)
	}
	if written != fileSize {
		os.Remove(dstPath)
		return nil, fmt.Errorf("media size mismatch: expected %d, wrote %d", fileSize, written)
	}

	fileURL := strings.TrimSuffix(s.baseURL, "/") + "/" + url.PathEscape(uniqueName)
	return &FileInfo{
		URL:      fileURL,
		Path:     dstPath,
		Size:     fileSize,
		MimeType: mimeType,
		FileName: fileName,
	}, nil
}
