// Package browser drives a headless Chrome instance through chromedp and
// captures the rendered document of each navigated page.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrLaunch wraps any failure to start the browser process.
var ErrLaunch = errors.New("browser launch failed")

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultIdleWindow        = 500 * time.Millisecond
	defaultSettleDelay       = 2 * time.Second
	defaultReadyTimeout      = 10 * time.Second
	defaultViewportWidth     = 1920
	defaultViewportHeight    = 1080
)

// captureScript serializes the doctype followed by the root element.
const captureScript = `(() => {
	const dt = document.doctype;
	const head = dt ? new XMLSerializer().serializeToString(dt) : "";
	return head + document.documentElement.outerHTML;
})()`

// Config controls the browser process and per-page capture behavior.
type Config struct {
	ExecPath          string        `mapstructure:"exec_path"`
	NoSandbox         bool          `mapstructure:"no_sandbox"`
	UserAgent         string        `mapstructure:"user_agent"`
	ViewportWidth     int           `mapstructure:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"nav_timeout"`
	IdleWindow        time.Duration `mapstructure:"idle_window"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	// ReadyExpression is polled after network idle until it evaluates truthy.
	// Empty means use SettleDelay only.
	ReadyExpression string        `mapstructure:"ready_expression"`
	ReadyTimeout    time.Duration `mapstructure:"ready_timeout"`
	Workers         int           `mapstructure:"workers"`
}

// WithDefaults fills zero-valued durations and dimensions.
func (c Config) WithDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = defaultNavigationTimeout
	}
	if c.IdleWindow <= 0 {
		c.IdleWindow = defaultIdleWindow
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = defaultReadyTimeout
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = defaultViewportWidth
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = defaultViewportHeight
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return c
}

// Document is one captured page.
type Document struct {
	URL        string
	HTML       string
	StatusCode int
	Duration   time.Duration
	// Ready reports whether the ready expression resolved before its timeout.
	Ready bool
}

// Browser owns one headless Chrome process.
type Browser struct {
	cfg           Config
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closeOnce     sync.Once
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if cfg.NoSandbox {
		opts = append(opts,
			chromedp.NoSandbox,
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

// Launch starts the browser process and waits for it to accept commands.
// The process outlives ctx and must be released with Close.
func Launch(ctx context.Context, cfg Config, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.WithDefaults()

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(cfg)...)
	sugar := logger.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	stop := context.AfterFunc(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	stop()
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	if ctx.Err() != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %w", ErrLaunch, ctx.Err())
	}

	logger.Info("browser started",
		zap.Int("viewport_width", cfg.ViewportWidth),
		zap.Int("viewport_height", cfg.ViewportHeight),
		zap.Bool("no_sandbox", cfg.NoSandbox),
	)
	return &Browser{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (b *Browser) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if cerr := chromedp.Cancel(b.browserCtx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = fmt.Errorf("close browser: %w", cerr)
		}
		b.browserCancel()
		b.allocCancel()
		b.logger.Info("browser closed")
	})
	return err
}

// Page is a single browser tab. A Page is not safe for concurrent use.
type Page struct {
	cfg     Config
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	tracker *idleTracker
	meta    *responseMeta
	ready   readyWaiter
}

// NewPage opens a tab with the configured viewport and network tracking.
// The tab lives until Close, independent of ctx.
func (b *Browser) NewPage(ctx context.Context) (*Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	p := &Page{
		cfg:     b.cfg,
		logger:  b.logger,
		ctx:     tabCtx,
		cancel:  tabCancel,
		tracker: newIdleTracker(),
		meta:    &responseMeta{},
	}
	p.ready = readyWaiter{
		expression: b.cfg.ReadyExpression,
		timeout:    b.cfg.ReadyTimeout,
		settle:     b.cfg.SettleDelay,
		poll:       pollExpression,
		sleep:      sleepInPage,
		logger:     b.logger,
	}
	chromedp.ListenTarget(tabCtx, p.tracker.observe)
	chromedp.ListenTarget(tabCtx, p.meta.captureEvent)

	// The first Run attaches the target and binds its event loop to the
	// context it is given, so it must be tabCtx itself. Bounding it cancels
	// the tab, which is only acceptable on the failure path.
	timer := time.AfterFunc(b.cfg.NavigationTimeout, tabCancel)
	stop := context.AfterFunc(ctx, tabCancel)
	err := chromedp.Run(tabCtx)
	timer.Stop()
	stop()
	if err != nil {
		tabCancel()
		return nil, fmt.Errorf("open page: %w", err)
	}
	if ctx.Err() != nil {
		tabCancel()
		return nil, fmt.Errorf("open page: %w", ctx.Err())
	}

	setupCtx, cancel := context.WithTimeout(tabCtx, b.cfg.NavigationTimeout)
	defer cancel()
	stopSetup := context.AfterFunc(ctx, cancel)
	defer stopSetup()

	if err := chromedp.Run(setupCtx, p.setupAction()); err != nil {
		tabCancel()
		return nil, fmt.Errorf("open page: %w", err)
	}
	return p, nil
}

func (p *Page) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		err := emulation.SetDeviceMetricsOverride(int64(p.cfg.ViewportWidth), int64(p.cfg.ViewportHeight), 1, false).Do(ctx)
		if err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if p.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(p.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// Capture navigates to url, waits for the page to settle, and returns the
// serialized document. Cancelling ctx aborts the navigation.
func (p *Page) Capture(ctx context.Context, url string) (Document, error) {
	navCtx, cancel := context.WithTimeout(p.ctx, p.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	p.tracker.reset()
	p.meta.reset()

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return Document{}, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.tracker.waitIdle(navCtx, p.cfg.IdleWindow); err != nil {
		return Document{}, fmt.Errorf("wait for %s: %w", url, err)
	}

	ready, err := p.ready.wait(navCtx)
	if err != nil {
		return Document{}, fmt.Errorf("wait for %s: %w", url, err)
	}

	var html string
	if err := chromedp.Run(navCtx, chromedp.Evaluate(captureScript, &html)); err != nil {
		return Document{}, fmt.Errorf("capture %s: %w", url, err)
	}

	return Document{
		URL:        url,
		HTML:       html,
		StatusCode: p.meta.status(),
		Duration:   time.Since(start),
		Ready:      ready,
	}, nil
}

// Close closes the tab.
func (p *Page) Close() error {
	p.cancel()
	return nil
}

// responseMeta records the HTTP status of the main document response.
type responseMeta struct {
	mu   sync.RWMutex
	code int
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.code = int(resp.Response.Status)
	m.mu.Unlock()
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.code = 0
	m.mu.Unlock()
}

func (m *responseMeta) status() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.code
}
