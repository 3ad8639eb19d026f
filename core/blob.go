package core

import (
	"context"
	"io"
)

// BlobStore is any store that can keep invoice attachments.
type BlobStore interface {
	Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	Download(ctx context.Context, path string) (io.ReadCloser, error)
	Remove(ctx context.Context, path string) error
}
