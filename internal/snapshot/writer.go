package snapshot

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/prerender/internal/route"
	"github.com/JakeFAU/prerender/internal/storage"
)

// HTMLContentType is the content type snapshots are stored with.
const HTMLContentType = "text/html; charset=utf-8"

// OutputFile is a snapshot ready to persist: where it goes and what it holds.
type OutputFile struct {
	Route route.Route
	// Path is the absolute file path under the output root.
	Path string
	// RelPath is Path relative to the output root, slash separated.
	RelPath string
	Content []byte
	// URI is set once the file has been stored.
	URI string
}

// Build computes the output location for r and rewrites doc for its depth.
// The root route keeps doc byte for byte.
func Build(root string, r route.Route, doc string) OutputFile {
	content := doc
	if !r.IsRoot() {
		content = RewriteRootRelative(doc, r.Depth())
	}
	return OutputFile{
		Route:   r,
		Path:    r.OutputPath(root),
		RelPath: r.RelPath(),
		Content: []byte(content),
	}
}

// Writer persists snapshots into a blob store rooted at the output directory.
type Writer struct {
	root   string
	store  storage.BlobStore
	logger *zap.Logger
}

// NewWriter returns a Writer that reports absolute paths under root and
// stores content through store.
func NewWriter(root string, store storage.BlobStore, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{root: root, store: store, logger: logger}
}

// Write builds and stores the snapshot of doc for r, overwriting any
// previous file at the same location.
func (w *Writer) Write(ctx context.Context, r route.Route, doc string) (OutputFile, error) {
	out := Build(w.root, r, doc)
	uri, err := w.store.PutObject(ctx, out.RelPath, HTMLContentType, bytes.NewReader(out.Content))
	if err != nil {
		return out, fmt.Errorf("write snapshot %s: %w", out.RelPath, err)
	}
	out.URI = uri
	w.logger.Debug("snapshot stored",
		zap.String("route", r.Path()),
		zap.String("uri", uri),
		zap.Int("bytes", len(out.Content)),
	)
	return out, nil
}
