package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestConfigWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.WithDefaults()
	assert.Equal(t, 30*time.Second, cfg.NavigationTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.IdleWindow)
	assert.Equal(t, 10*time.Second, cfg.ReadyTimeout)
	assert.Equal(t, 1920, cfg.ViewportWidth)
	assert.Equal(t, 1080, cfg.ViewportHeight)
	assert.Equal(t, 1, cfg.Workers)
	assert.Zero(t, cfg.SettleDelay, "zero settle delay is a valid choice")

	custom := Config{NavigationTimeout: time.Second, ViewportWidth: 800, SettleDelay: -time.Second}.WithDefaults()
	assert.Equal(t, time.Second, custom.NavigationTimeout)
	assert.Equal(t, 800, custom.ViewportWidth)
	assert.Zero(t, custom.SettleDelay)
}

func TestAllocatorOptionsSandboxFlags(t *testing.T) {
	t.Parallel()

	base := len(allocatorOptions(Config{}.WithDefaults()))
	withSandbox := len(allocatorOptions(Config{NoSandbox: true}.WithDefaults()))
	assert.Equal(t, base+2, withSandbox)

	full := len(allocatorOptions(Config{NoSandbox: true, ExecPath: "/usr/bin/chromium", UserAgent: "bot"}.WithDefaults()))
	assert.Equal(t, base+4, full)
}

func TestResponseMetaTracksDocumentStatus(t *testing.T) {
	t.Parallel()

	m := &responseMeta{}
	m.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500},
	})
	assert.Zero(t, m.status())

	m.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200},
	})
	assert.Equal(t, 200, m.status())

	m.reset()
	assert.Zero(t, m.status())
}

// chromePath prefers CHROME_PATH, then the usual binary names on PATH.
func chromePath(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser test")
	}
	if path := os.Getenv("CHROME_PATH"); path != "" {
		return path
	}
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "chrome-headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no chrome binary on PATH and CHROME_PATH unset")
	return ""
}

const spaShell = `<!DOCTYPE html><html><head><title>shell</title></head><body><div id="root"></div>
<script>
document.getElementById("root").textContent = "rendered " + location.pathname;
if (location.pathname !== "/never-ready") window.__PRERENDER_READY__ = true;
</script></body></html>`

// newSPAServer serves the shell for every path except /slow, which holds the
// response until the client goes away.
func newSPAServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, spaShell)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func openPage(t *testing.T, cfg Config) *Page {
	t.Helper()
	cfg.ExecPath = chromePath(t)
	cfg.NoSandbox = true
	if cfg.IdleWindow == 0 {
		cfg.IdleWindow = 100 * time.Millisecond
	}

	ctx := context.Background()
	b, err := Launch(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, b.Close()) })

	page, err := b.NewPage(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = page.Close() })
	return page
}

func TestCaptureRendersClientSideContent(t *testing.T) {
	srv := newSPAServer(t)
	page := openPage(t, Config{
		ReadyExpression: "window.__PRERENDER_READY__ === true",
		ReadyTimeout:    2 * time.Second,
	})

	doc, err := page.Capture(context.Background(), srv.URL+"/about")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc.HTML, "<!DOCTYPE html>"))
	assert.Contains(t, doc.HTML, "rendered /about")
	assert.True(t, doc.Ready)
	assert.Equal(t, 200, doc.StatusCode)
}

func TestCaptureReusesPageAcrossRoutes(t *testing.T) {
	srv := newSPAServer(t)
	page := openPage(t, Config{
		NavigationTimeout: 10 * time.Second,
		ReadyExpression:   "window.__PRERENDER_READY__ === true",
		ReadyTimeout:      2 * time.Second,
	})

	for _, path := range []string{"/", "/about", "/products/widgets"} {
		doc, err := page.Capture(context.Background(), srv.URL+path)
		require.NoError(t, err, path)
		assert.Contains(t, doc.HTML, "rendered "+path)
		assert.True(t, doc.Ready, path)
	}
}

func TestCaptureReadyTimeoutFallsBackToSettle(t *testing.T) {
	srv := newSPAServer(t)
	page := openPage(t, Config{
		NavigationTimeout: 10 * time.Second,
		ReadyExpression:   "window.__PRERENDER_READY__ === true",
		ReadyTimeout:      300 * time.Millisecond,
		SettleDelay:       200 * time.Millisecond,
	})

	doc, err := page.Capture(context.Background(), srv.URL+"/never-ready")
	require.NoError(t, err)
	assert.False(t, doc.Ready)
	assert.Contains(t, doc.HTML, "rendered /never-ready")
	assert.GreaterOrEqual(t, doc.Duration, 500*time.Millisecond)
}

func TestCaptureNavigationTimeoutThenRecovers(t *testing.T) {
	srv := newSPAServer(t)
	page := openPage(t, Config{NavigationTimeout: time.Second})

	_, err := page.Capture(context.Background(), srv.URL+"/slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	doc, err := page.Capture(context.Background(), srv.URL+"/contact")
	require.NoError(t, err)
	assert.Contains(t, doc.HTML, "rendered /contact")
}

func TestLaunchFailsWithBadExecutable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := Launch(ctx, Config{ExecPath: "/nonexistent/chrome"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLaunch))
}
