package blob

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemStore keeps objects under a root directory on local disk. Paths
// are interpreted relative to the root; traversal outside the root is
// rejected.
type FilesystemStore struct {
	root   string
	logger *slog.Logger
}

// NewFilesystemStore creates the root directory if needed and returns a store
// rooted at it.
func NewFilesystemStore(root string, logger *slog.Logger) (*FilesystemStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve blob root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &FilesystemStore{root: abs, logger: logger}, nil
}

func (s *FilesystemStore) resolve(path string) (string, error) {
	cleaned := filepath.Clean("/" + strings.TrimSpace(path))
	if cleaned == "/" {
		return "", fmt.Errorf("empty blob path")
	}
	return filepath.Join(s.root, cleaned), nil
}

// Get reads the object at path.
func (s *FilesystemStore) Get(ctx context.Context, path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Put writes the object at path, creating parent directories as needed, and
// returns the root-relative location. The content type is accepted for
// contract parity with remote stores; local files carry no content type.
func (s *FilesystemStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	full, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	rel, err := filepath.Rel(s.root, full)
	if err != nil {
		return "", fmt.Errorf("failed to relativize blob path: %w", err)
	}
	location := filepath.ToSlash(rel)

	s.logger.Debug("Blob written",
		slog.String("location", location),
		slog.Int("bytes", len(data)),
		slog.String("content_type", contentType),
	)
	return location, nil
}
