// Package storage keeps uploads and conversion results in an object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/feichai0017/document-converter/config"
	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/storage/minio"
	"github.com/feichai0017/document-converter/pkg/storage/s3"
)

type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// ErrDisabled is returned when no storage type is configured.
var ErrDisabled = errors.New("storage is disabled")

type Storage interface {
	// Store writes reader under key and returns the key it was stored at.
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// CleanupBefore deletes every object last modified before threshold.
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

// NewStorage builds the backend selected by cfg.Type.
func NewStorage(ctx context.Context, cfg *config.StorageConfig, log logger.Logger) (Storage, error) {
	switch StorageType(cfg.Type) {
	case "":
		return nil, ErrDisabled
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, config.GetS3Config(), log.Named("s3"))
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, config.GetMinioConfig(), log.Named("minio"))
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
