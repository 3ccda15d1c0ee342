// Package gcs provides a BlobStore backed by Google Cloud Storage, used to
// mirror a prerendered tree into a bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name, e.g. "site/".
	Prefix       string
	CacheControl string
}

// BlobStore writes artifacts to a configured GCS bucket.
type BlobStore struct {
	client       *storage.Client
	bucket       string
	prefix       string
	cacheControl string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client:       client,
		bucket:       cfg.Bucket,
		prefix:       strings.Trim(cfg.Prefix, "/"),
		cacheControl: cfg.CacheControl,
	}, nil
}

// Open dials GCS with Application Default Credentials and checks the bucket is
// reachable before returning. The caller closes the returned client.
func Open(ctx context.Context, cfg Config) (*BlobStore, *storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create GCS client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		if cerr := client.Close(); cerr != nil {
			return nil, nil, fmt.Errorf("get bucket %q attributes: %w (close client: %v)", cfg.Bucket, err, cerr)
		}
		return nil, nil, fmt.Errorf("get bucket %q attributes: %w", cfg.Bucket, err)
	}
	store, err := New(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, client, nil
}

// URI returns the gs:// location of the mirror root.
func (s *BlobStore) URI() string {
	if s.prefix == "" {
		return "gs://" + s.bucket
	}
	return "gs://" + s.bucket + "/" + s.prefix
}

// ObjectName maps a relative snapshot path to its object name in the bucket.
func (s *BlobStore) ObjectName(rel string) string {
	rel = strings.TrimLeft(rel, "/")
	if s.prefix == "" {
		return rel
	}
	return path.Join(s.prefix, rel)
}

// PutObject uploads data to the configured bucket and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, rel string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", fmt.Errorf("path is required")
	}
	name := s.ObjectName(rel)
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if s.cacheControl != "" {
		writer.CacheControl = s.cacheControl
	}
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}
