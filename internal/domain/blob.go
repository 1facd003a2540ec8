package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter writes objects to blob storage.
type BlobWriter interface {
	Write(ctx context.Context, key string, contentType string, body io.Reader) error
}

// BlobReader reads objects back from blob storage.
type BlobReader interface {
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Archiver exports aged rows to blob storage and prunes them from hot
// storage.
type Archiver interface {
	ArchiveBefore(ctx context.Context, cutoff time.Time) error
}
