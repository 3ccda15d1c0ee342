// Package pipeline runs one prerender pass: serve the output directory,
// capture every route through the browser, and write the snapshots back.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/prerender/internal/clock/system"
	"github.com/JakeFAU/prerender/internal/dispatcher"
	"github.com/JakeFAU/prerender/internal/hash/sha256"
	"github.com/JakeFAU/prerender/internal/id/uuid"
	"github.com/JakeFAU/prerender/internal/manifest"
	"github.com/JakeFAU/prerender/internal/publisher"
	"github.com/JakeFAU/prerender/internal/queue/memory"
	"github.com/JakeFAU/prerender/internal/route"
	"github.com/JakeFAU/prerender/internal/snapshot"
	"github.com/JakeFAU/prerender/internal/staticserver"
	"github.com/JakeFAU/prerender/internal/storage"
	"github.com/JakeFAU/prerender/internal/storage/local"
	"github.com/JakeFAU/prerender/internal/telemetry"
	"github.com/JakeFAU/prerender/internal/worker"
)

// ErrOutputDirMissing is returned before anything starts when the output
// directory does not exist.
var ErrOutputDirMissing = errors.New("output directory does not exist")

// ManifestObject is the object name the manifest is mirrored under.
const ManifestObject = "prerender-manifest.json"

const defaultShutdownTimeout = 5 * time.Second

// Page captures documents; each worker gets its own.
type Page interface {
	worker.Capturer
	Close() error
}

// Browser opens pages and is closed once per run.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// LaunchFunc starts a browser. It is only called when there are routes.
type LaunchFunc func(ctx context.Context) (Browser, error)

// Clock supplies run timestamps.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// IDGenerator supplies run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Config describes one run.
type Config struct {
	OutputDir       string
	RootDocument    string
	Host            string
	Port            int
	Routes          route.List
	Workers         int
	ManifestPath    string
	ShutdownTimeout time.Duration
}

// Runner executes prerender runs.
type Runner struct {
	cfg          Config
	launch       LaunchFunc
	mirror       storage.BlobStore
	mirrorPrefix string
	publisher    publisher.Publisher
	clock        Clock
	ids          IDGenerator
	logger       *zap.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithMirror copies every written snapshot and the manifest to store.
// prefix is reported in the completion event.
func WithMirror(store storage.BlobStore, prefix string) Option {
	return func(r *Runner) {
		r.mirror = store
		r.mirrorPrefix = prefix
	}
}

// WithPublisher announces finished runs.
func WithPublisher(p publisher.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Runner) { r.ids = g }
}

// New constructs a Runner.
func New(cfg Config, launch LaunchFunc, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	r := &Runner{
		cfg:    cfg,
		launch: launch,
		clock:  system.New(),
		ids:    uuid.New(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one prerender pass. Per-route failures are recorded in the
// returned manifest and do not produce an error; the error reports only
// failures that stopped the run. The server and browser are always released
// before Run returns.
func (r *Runner) Run(ctx context.Context) (*manifest.Manifest, error) {
	root, err := r.checkOutputDir()
	if err != nil {
		return nil, err
	}

	runID, err := r.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	logger := r.logger.With(zap.String("run_id", runID))
	m := manifest.New(runID, root, r.clock.Now())

	ctx, span := telemetry.Tracer().Start(ctx, "prerender.run")
	span.SetAttributes(attribute.String("run_id", runID), attribute.Int("routes", len(r.cfg.Routes)))
	defer span.End()

	session, err := staticserver.Start(ctx, staticserver.Config{
		Root:         root,
		RootDocument: r.cfg.RootDocument,
		Host:         r.cfg.Host,
		Port:         r.cfg.Port,
	}, logger.Named("server"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "server start")
		return nil, fmt.Errorf("start static server: %w", err)
	}
	defer r.closeServer(ctx, session, logger)
	m.BaseURL = session.BaseURL()

	var runErr error
	if len(r.cfg.Routes) == 0 {
		logger.Info("route list is empty, nothing to capture")
	} else {
		runErr = r.render(ctx, root, session.BaseURL(), m, logger)
	}

	m.Finish(r.clock.Now())
	r.report(ctx, m, logger)

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "run failed")
		return m, runErr
	}
	logger.Info("prerender finished",
		zap.Int("routes", m.Summary.Total),
		zap.Int("written", m.Summary.Written),
		zap.Int("failed", m.Summary.Failed),
		zap.Duration("elapsed", r.clock.Since(m.StartedAt)),
	)
	return m, nil
}

func (r *Runner) checkOutputDir() (string, error) {
	root, err := filepath.Abs(r.cfg.OutputDir)
	if err != nil {
		return "", fmt.Errorf("resolve output directory: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrOutputDirMissing, root)
		}
		return "", fmt.Errorf("stat output directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrOutputDirMissing, root)
	}
	return root, nil
}

func (r *Runner) render(ctx context.Context, root, baseURL string, m *manifest.Manifest, logger *zap.Logger) error {
	b, err := r.launch(ctx)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("browser close failed", zap.Error(err))
		}
	}()

	store, err := local.New(local.Config{BaseDir: root})
	if err != nil {
		return fmt.Errorf("open output store: %w", err)
	}
	writer := snapshot.NewWriter(root, store, logger.Named("snapshot"))
	hasher := sha256.New()

	workers := min(r.cfg.Workers, len(r.cfg.Routes))
	queue := memory.NewQueue(len(r.cfg.Routes))
	runners := make([]dispatcher.Runner, 0, workers)
	for i := range workers {
		page, err := b.NewPage(ctx)
		if err != nil {
			return fmt.Errorf("open page %d: %w", i, err)
		}
		defer page.Close()
		runners = append(runners, worker.New(i, queue, page, writer, r.mirror, m, hasher,
			worker.Config{BaseURL: baseURL}, logger.Named("worker")))
	}

	logger.Info("capturing routes", zap.Int("routes", len(r.cfg.Routes)), zap.Int("workers", workers))
	if err := dispatcher.New(queue, runners).Dispatch(ctx, r.cfg.Routes); err != nil {
		return err
	}
	return nil
}

func (r *Runner) closeServer(ctx context.Context, session *staticserver.Session, logger *zap.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ShutdownTimeout)
	defer cancel()
	if err := session.Close(shutdownCtx); err != nil {
		logger.Warn("static server close failed", zap.Error(err))
	}
}

// report writes, mirrors and announces the manifest. Failures here are
// logged and do not fail the run.
func (r *Runner) report(ctx context.Context, m *manifest.Manifest, logger *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	if r.cfg.ManifestPath != "" {
		if err := m.WriteFile(r.cfg.ManifestPath); err != nil {
			logger.Error("manifest write failed", zap.String("path", r.cfg.ManifestPath), zap.Error(err))
		} else {
			logger.Info("manifest written", zap.String("path", r.cfg.ManifestPath))
		}
	}
	if r.mirror != nil {
		data, err := m.Encode()
		if err == nil {
			_, err = r.mirror.PutObject(ctx, ManifestObject, "application/json", bytes.NewReader(data))
		}
		if err != nil {
			logger.Error("manifest mirror failed", zap.Error(err))
		}
	}
	if r.publisher != nil {
		id, err := r.publisher.Publish(ctx, publisher.NewCompletedEvent(m, r.mirrorPrefix))
		if err != nil {
			logger.Error("completion event publish failed", zap.Error(err))
		} else {
			logger.Info("completion event published", zap.String("message_id", id))
		}
	}
}
