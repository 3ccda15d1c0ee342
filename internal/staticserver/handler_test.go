package staticserver

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/prerender/internal/metrics"
)

const rootHTML = `<!DOCTYPE html><html><head><link href="/style.css" rel="stylesheet"></head><body><div id="root"></div></body></html>`

// newSite lays out parent/dist with a few assets and parent/secret.txt beside it.
func newSite(t *testing.T) string {
	t.Helper()
	parent := t.TempDir()
	root := filepath.Join(parent, "dist")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "assets"), 0o750))
	files := map[string]string{
		"index.html":       rootHTML,
		"style.css":        "body{}",
		"assets/app.js":    "console.log(1)",
		"assets/logo.svg":  "<svg/>",
		"assets/data.bin":  "\x00\x01",
		"manifest.json":    "{}",
		"assets/photo.JPG": "jpg",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, filepath.FromSlash(name)), []byte(body), 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("top secret"), 0o600))
	return root
}

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHandlerServesFilesWithContentType(t *testing.T) {
	t.Parallel()

	h, err := NewHandler(newSite(t), "", nil)
	require.NoError(t, err)

	tests := []struct {
		target string
		ct     string
		body   string
	}{
		{target: "/", ct: "text/html", body: rootHTML},
		{target: "/index.html", ct: "text/html", body: rootHTML},
		{target: "/style.css", ct: "text/css", body: "body{}"},
		{target: "/assets/app.js", ct: "application/javascript", body: "console.log(1)"},
		{target: "/assets/logo.svg", ct: "image/svg+xml", body: "<svg/>"},
		{target: "/manifest.json", ct: "application/json", body: "{}"},
		{target: "/assets/photo.JPG", ct: "image/jpeg", body: "jpg"},
		{target: "/assets/data.bin", ct: "application/octet-stream", body: "\x00\x01"},
	}
	for _, tt := range tests {
		rec := serve(t, h, http.MethodGet, tt.target)
		assert.Equal(t, http.StatusOK, rec.Code, tt.target)
		assert.Equal(t, tt.ct, rec.Header().Get("Content-Type"), tt.target)
		assert.Equal(t, tt.body, rec.Body.String(), tt.target)
	}
}

func TestHandlerSPAFallback(t *testing.T) {
	t.Parallel()

	h, err := NewHandler(newSite(t), "", nil)
	require.NoError(t, err)

	for _, target := range []string{"/about", "/products/tea", "/assets"} {
		rec := serve(t, h, http.MethodGet, target)
		assert.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "text/html", rec.Header().Get("Content-Type"), target)
		assert.Equal(t, rootHTML, rec.Body.String(), target)
	}
}

func TestHandlerMissingAssetIsNotFound(t *testing.T) {
	t.Parallel()

	h, err := NewHandler(newSite(t), "", nil)
	require.NoError(t, err)

	rec := serve(t, h, http.MethodGet, "/missing.js")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not Found")
}

func TestHandlerRejectsTraversal(t *testing.T) {
	t.Parallel()

	h, err := NewHandler(newSite(t), "", nil)
	require.NoError(t, err)

	for _, target := range []string{
		"/../secret.txt",
		"/assets/../../secret.txt",
		"/%2e%2e/secret.txt",
		"/..%2fsecret.txt",
		"/../",
	} {
		rec := serve(t, h, http.MethodGet, target)
		assert.Equal(t, http.StatusForbidden, rec.Code, target)
		assert.NotContains(t, rec.Body.String(), "top secret", target)
	}
}

func TestHandlerInnerDotDotStaysInside(t *testing.T) {
	t.Parallel()

	h, err := NewHandler(newSite(t), "", nil)
	require.NoError(t, err)

	rec := serve(t, h, http.MethodGet, "/assets/../style.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{}", rec.Body.String())
}

func TestHandlerRejectsSymlinkEscape(t *testing.T) {
	t.Parallel()

	root := newSite(t)
	if err := os.Symlink(filepath.Join(filepath.Dir(root), "secret.txt"), filepath.Join(root, "leak.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	h, err := NewHandler(root, "", nil)
	require.NoError(t, err)

	rec := serve(t, h, http.MethodGet, "/leak.txt")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerHeadOmitsBody(t *testing.T) {
	t.Parallel()

	h, err := NewHandler(newSite(t), "", nil)
	require.NoError(t, err)

	rec := serve(t, h, http.MethodHead, "/style.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/css", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Body.String())
}

func TestContentTypeTable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "image/png", ContentType("a.png"))
	assert.Equal(t, "image/x-icon", ContentType("favicon.ico"))
	assert.Equal(t, "image/jpeg", ContentType("a.jpeg"))
	assert.Equal(t, "application/octet-stream", ContentType("font.woff2"))
	assert.Equal(t, "application/octet-stream", ContentType("README"))
}

func TestResolveClassifiesRequests(t *testing.T) {
	t.Parallel()

	root, err := filepath.EvalSymlinks(newSite(t))
	require.NoError(t, err)
	h := &handler{root: root, rootDoc: filepath.Join(root, "index.html"), logger: zap.NewNop()}

	tests := []struct {
		path   string
		class  string
		status int
	}{
		{path: "/", class: metrics.ClassRoot, status: http.StatusOK},
		{path: "/about", class: metrics.ClassFallback, status: http.StatusOK},
		{path: "/assets", class: metrics.ClassFallback, status: http.StatusOK},
		{path: "/assets/app.js", class: metrics.ClassAsset, status: http.StatusOK},
		{path: "/missing.js", class: metrics.ClassMissing, status: http.StatusNotFound},
		{path: "/../secret.txt", class: metrics.ClassRejected, status: http.StatusForbidden},
	}
	for _, tt := range tests {
		_, class, status := h.resolve(tt.path)
		assert.Equal(t, tt.class, class, tt.path)
		assert.Equal(t, tt.status, status, tt.path)
	}
}
