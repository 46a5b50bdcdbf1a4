package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage implements ObjectStorage on the local filesystem. Intended
// for development and single-node deployments; keys map to files under the
// base directory.
type LocalStorage struct {
	baseDir string
}

var _ ObjectStorage = (*LocalStorage)(nil)

// NewLocalStorage creates a filesystem-backed store rooted at baseDir.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./data/audio"
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// path resolves a key inside the base directory, rejecting traversal.
func (l *LocalStorage) path(key string) (string, error) {
	clean := filepath.Clean(filepath.Join(l.baseDir, key))
	if !strings.HasPrefix(clean, filepath.Clean(l.baseDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return clean, nil
}

// Upload writes the object to a file under the base directory.
func (l *LocalStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("failed to create object file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	return nil
}

// Download opens the object file for reading.
func (l *LocalStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}

// GetURL returns a file:// reference for an object.
func (l *LocalStorage) GetURL(key string) string {
	p, err := l.path(key)
	if err != nil {
		return ""
	}
	return "file://" + p
}

// Delete removes the object file. Missing objects are not an error.
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Exists checks if the object file exists.
func (l *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	p, err := l.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}
