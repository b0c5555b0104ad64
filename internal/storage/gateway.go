// Package storage puts and removes file blobs in an object store.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/filevault/internal/config"
)

// Gateway is the object store the file registry writes to. Put returns the
// public URL of the stored blob.
type Gateway interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// NewKey builds a collision-free blob key "<userId>/<uuid>.<ext>".
func NewKey(userID, contentType string) string {
	return fmt.Sprintf("%s/%s.%s", userID, uuid.NewString(), extensionFor(contentType))
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(contentType)
	}
	if m := mimetype.Lookup(strings.ToLower(mediaType)); m != nil {
		if ext := strings.TrimPrefix(m.Extension(), "."); ext != "" {
			return ext
		}
	}
	return "bin"
}

// New 根据配置创建存储网关
func New(ctx context.Context, cfg config.StorageConfig) (Gateway, error) {
	switch cfg.Type {
	case "minio":
		return NewMinioGateway(ctx, cfg.MinIO)
	case "s3":
		return NewS3Gateway(ctx, cfg.S3)
	case "local":
		return NewLocalGateway(cfg.Local)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
