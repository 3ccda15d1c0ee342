// Package storage defines the interface snapshot files are persisted through.
// Implementations live in the local (output root on disk), gcs (bucket mirror)
// and memory (tests) subpackages.
package storage

import (
	"context"
	"io"
)

// BlobStore writes one object and returns a URI identifying it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
