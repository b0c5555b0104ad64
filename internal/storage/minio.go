package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/filevault/internal/config"
)

// MinioGateway stores blobs in a single MinIO bucket.
type MinioGateway struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func NewMinioGateway(ctx context.Context, cfg config.MinIOConfig) (*MinioGateway, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.BucketName)
	}

	g := &MinioGateway{
		client:    client,
		bucket:    cfg.BucketName,
		publicURL: publicURL,
	}
	if err := g.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *MinioGateway) ensureBucket(ctx context.Context) error {
	exists, err := g.client.BucketExists(ctx, g.bucket)
	if err != nil {
		return fmt.Errorf("check bucket exists: %w", err)
	}

	if !exists {
		if err := g.client.MakeBucket(ctx, g.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}

	return nil
}

func (g *MinioGateway) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := g.client.PutObject(ctx, g.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return g.URL(key), nil
}

func (g *MinioGateway) Delete(ctx context.Context, key string) error {
	if err := g.client.RemoveObject(ctx, g.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (g *MinioGateway) URL(key string) string {
	return joinURL(g.publicURL, key)
}
