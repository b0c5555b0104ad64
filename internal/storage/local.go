package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/filevault/internal/config"
)

var ErrInvalidKey = errors.New("invalid storage key")

// LocalGateway keeps blobs on the local filesystem, for development and tests.
type LocalGateway struct {
	root      string
	publicURL string
}

func NewLocalGateway(cfg config.LocalConfig) (*LocalGateway, error) {
	if err := os.MkdirAll(cfg.RootPath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = "/blobs"
	}
	return &LocalGateway{root: cfg.RootPath, publicURL: publicURL}, nil
}

// Root is the directory blobs are written under.
func (g *LocalGateway) Root() string {
	return g.root
}

func (g *LocalGateway) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	target, err := g.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}

	written, err := io.Copy(f, readerWithContext(ctx, r))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("short write: %d of %d bytes", written, size)
	}
	if err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("write blob: %w", err)
	}

	return g.URL(key), nil
}

// Delete removes a blob. A missing blob is not an error.
func (g *LocalGateway) Delete(ctx context.Context, key string) error {
	target, err := g.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func (g *LocalGateway) URL(key string) string {
	return joinURL(g.publicURL, key)
}

func (g *LocalGateway) resolve(key string) (string, error) {
	cleaned := path.Clean("/" + key)
	if key == "" || strings.Contains(key, "..") || cleaned == "/" {
		return "", ErrInvalidKey
	}
	return filepath.Join(g.root, filepath.FromSlash(strings.TrimPrefix(cleaned, "/"))), nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
