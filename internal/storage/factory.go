package storage

import (
	"fmt"
	"strings"

	"github.com/calebwren/rapport/internal/config"
)

// NewStorage creates an ObjectStorage instance for the configured backend.
// Parameters:
//   - cfg: storage configuration section.
// Returns:
//   - ObjectStorage: initialized storage implementation.
//   - error: non-nil if the backend is unknown or cannot be created.
func NewStorage(cfg *config.StorageConfig) (ObjectStorage, error) {
	switch strings.ToLower(cfg.Backend) {
	case "s3":
		return NewS3Storage(&S3Options{
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    true,
		})
	case "minio":
		// MinIO speaks the S3 API; a custom endpoint switches the client
		// to path-style addressing.
		return NewS3Storage(&S3Options{
			Bucket:    cfg.MinIO.Bucket,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Endpoint:  cfg.MinIO.Endpoint,
			UseSSL:    cfg.MinIO.UseSSL,
		})
	case "local", "":
		return NewLocalStorage(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}
