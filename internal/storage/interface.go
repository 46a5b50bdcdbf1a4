package storage

import (
	"context"
	"io"
)

// ObjectStorage is the durable home for raw audio blobs. The workflow only
// needs "persist bytes, get back a key, read them later"; everything else
// about the backing store is configuration.
type ObjectStorage interface {
	// Upload persists an object under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object for reading. Caller closes.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns an access reference for an object.
	GetURL(key string) string

	// Delete removes an object.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)
}
