// Package local implements a local filesystem blob store.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrBaseDirMissing is returned by New when the base directory does not exist.
var ErrBaseDirMissing = errors.New("base directory does not exist")

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory objects are written below. It must exist.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// FileMode applies to written files; zero means 0o644.
	FileMode os.FileMode `mapstructure:"file_mode" yaml:"file_mode"`
}

// BlobStore writes objects below a base directory, replacing existing files atomically.
type BlobStore struct {
	baseDir  string
	fileMode os.FileMode
}

// New creates a blob store rooted at an existing, writable directory.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrBaseDirMissing, cfg.BaseDir)
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	// Check for write permissions.
	probe, err := os.CreateTemp(cfg.BaseDir, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := probe.Close(); err != nil {
		return nil, fmt.Errorf("failed to close probe file: %w", err)
	}
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("failed to clean up probe file: %w", err)
	}

	mode := cfg.FileMode
	if mode == 0 {
		mode = 0o644
	}
	return &BlobStore{
		baseDir:  filepath.Clean(cfg.BaseDir),
		fileMode: mode,
	}, nil
}

// PutObject streams data to path (slash separated, relative to the base
// directory) and returns a file:// URI. Parent directories are created as
// needed; an existing file is only replaced once the new content is complete.
func (s *BlobStore) PutObject(ctx context.Context, path string, _ string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}

	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(path))
	// Clean the path and verify it's within baseDir to prevent path traversal.
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil { // #nosec G301 -- output tree is served as a static site.
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fullPath)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, data); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Chmod(s.fileMode); err != nil {
		return "", fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		return "", fmt.Errorf("failed to replace %s: %w", fullPath, err)
	}
	committed = true

	return fmt.Sprintf("file://%s", fullPath), nil
}
