package storage

import (
	"context"
	"io"
)

// Storage holds the binary assets the catalog references: cover images, their
// thumbnails, and the files behind downloadable titles. Paths are relative
// keys chosen by the caller.
type Storage interface {
	// Save writes content under path, replacing any existing file.
	Save(ctx context.Context, path string, content io.Reader) error

	// Get opens the file at path. The caller closes the returned reader.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the file at path.
	Delete(ctx context.Context, path string) error
}
