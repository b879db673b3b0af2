package client

import (
	"context"
	"fmt"

	"github.com/gridshorts/pipeline/internal/config"
)

// StorageClient defines the interface for the upload collaborator.
// UploadFile stores the file remotely and returns the remote identifier
// (object URL or file id depending on backend).
type StorageClient interface {
	UploadFile(ctx context.Context, path string) (string, error)
	IsConfigured() bool
}

// NewStorageClient selects the upload backend from configuration.
func NewStorageClient(cfg *config.StorageConfig) (StorageClient, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3Client(&cfg.S3)
	case "drive":
		return NewDriveClient(&cfg.Drive)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
