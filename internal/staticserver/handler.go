// Package staticserver serves a built site directory over HTTP for the
// duration of a prerender run, falling back to the root document for
// extensionless paths so client-side routing can take over.
package staticserver

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JakeFAU/prerender/internal/metrics"
)

// DefaultRootDocument is the document served for "/" and SPA fallbacks.
const DefaultRootDocument = "index.html"

var contentTypes = map[string]string{
	".html": "text/html",
	".js":   "application/javascript",
	".css":  "text/css",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
}

// ContentType maps a file name to the MIME type the server answers with.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

type handler struct {
	root    string
	rootDoc string
	logger  *zap.Logger
}

// NewHandler returns the router serving files below root. rootDoc is the
// file, relative to root, answered for "/" and for SPA deep links.
func NewHandler(root, rootDoc string, logger *zap.Logger) (http.Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rootDoc == "" {
		rootDoc = DefaultRootDocument
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	h := &handler{
		root:    abs,
		rootDoc: filepath.Join(abs, filepath.FromSlash(rootDoc)),
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Get("/*", h.serve)
	r.Head("/*", h.serve)
	return r, nil
}

func (h *handler) serve(w http.ResponseWriter, r *http.Request) {
	target, class, status := h.resolve(r.URL.Path)
	metrics.SetRequestClass(r.Context(), class)
	switch status {
	case http.StatusForbidden:
		h.logger.Warn("rejected path outside root", zap.String("path", r.URL.Path))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	case http.StatusNotFound:
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	f, err := os.Open(target) // #nosec G304 -- target is contained in h.root by resolve.
	if err != nil {
		h.logger.Error("open file failed", zap.String("file", target), zap.Error(err))
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			h.logger.Debug("close file failed", zap.String("file", target), zap.Error(cerr))
		}
	}()

	w.Header().Set("Content-Type", ContentType(target))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Debug("stream file interrupted", zap.String("file", target), zap.Error(err))
	}
}

// resolve maps a request path to a file under the root. It returns the file,
// its request class and http.StatusOK, or an empty path with 403 or 404.
func (h *handler) resolve(urlPath string) (string, string, int) {
	if urlPath == "" || urlPath == "/" {
		return h.rootDoc, metrics.ClassRoot, http.StatusOK
	}
	candidate := filepath.Join(h.root, filepath.FromSlash(urlPath))
	if !h.contains(candidate) {
		return "", metrics.ClassRejected, http.StatusForbidden
	}

	info, err := os.Stat(candidate)
	switch {
	case err == nil && !info.IsDir():
		resolved, evalErr := filepath.EvalSymlinks(candidate)
		if evalErr != nil || !h.contains(resolved) {
			return "", metrics.ClassRejected, http.StatusForbidden
		}
		return resolved, metrics.ClassAsset, http.StatusOK
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		h.logger.Debug("stat failed", zap.String("file", candidate), zap.Error(err))
	}

	if filepath.Ext(candidate) == "" {
		return h.rootDoc, metrics.ClassFallback, http.StatusOK
	}
	return "", metrics.ClassMissing, http.StatusNotFound
}

func (h *handler) contains(path string) bool {
	rel, err := filepath.Rel(h.root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
