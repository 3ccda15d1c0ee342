// Package app wires configuration into long-lived services and runs the
// prerender pipeline with them.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/prerender/internal/config"
	"github.com/JakeFAU/prerender/internal/manifest"
	"github.com/JakeFAU/prerender/internal/metrics"
	"github.com/JakeFAU/prerender/internal/pipeline"
	"github.com/JakeFAU/prerender/internal/publisher"
	pspub "github.com/JakeFAU/prerender/internal/publisher/pubsub"
	"github.com/JakeFAU/prerender/internal/storage/gcs"
	"github.com/JakeFAU/prerender/internal/telemetry"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// App holds the services shared by one CLI invocation.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	mirror    *gcs.BlobStore
	gcsClient *storage.Client
	publisher publisher.Publisher
	tracer    *sdktrace.TracerProvider
	launch    pipeline.LaunchFunc
}

// Option customizes an App.
type Option func(*App)

// WithLauncher replaces the headless Chrome launcher.
func WithLauncher(launch pipeline.LaunchFunc) Option {
	return func(a *App) { a.launch = launch }
}

// WithPublisher replaces the Pub/Sub publisher built from configuration.
func WithPublisher(p publisher.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// New initializes metrics, tracing and the optional cloud clients. It fails
// fast when a configured bucket or topic is unreachable.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	if a.launch == nil {
		a.launch = pipeline.ChromeLauncher(cfg.Browser, logger.Named("browser"))
	}

	metrics.Init()

	tp, err := telemetry.InitTracerProvider(ctx, "prerender", Version)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.tracer = tp

	if cfg.Publish.GCSBucket != "" {
		store, client, err := gcs.Open(ctx, gcs.Config{
			Bucket:       cfg.Publish.GCSBucket,
			Prefix:       cfg.Publish.GCSPrefix,
			CacheControl: cfg.Publish.CacheControl,
		})
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("open snapshot mirror: %w", err)
		}
		a.mirror, a.gcsClient = store, client
		logger.Info("mirroring snapshots", zap.String("uri", store.URI()))
	}

	if a.publisher == nil && cfg.Publish.PubSubTopic != "" {
		client, err := pubsub.NewClient(ctx, cfg.Publish.PubSubProject)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		pub, err := pspub.Open(ctx, client, cfg.Publish.PubSubTopic)
		if err != nil {
			_ = client.Close()
			a.Close(ctx)
			return nil, fmt.Errorf("open completion topic: %w", err)
		}
		a.publisher = pub
		logger.Info("publishing completion events", zap.String("topic", cfg.Publish.PubSubTopic))
	}
	return a, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Runner builds the pipeline runner for the configured routes.
func (a *App) Runner() (*pipeline.Runner, error) {
	routes, err := a.cfg.RouteList()
	if err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}
	var opts []pipeline.Option
	if a.mirror != nil {
		opts = append(opts, pipeline.WithMirror(a.mirror, a.mirror.URI()))
	}
	if a.publisher != nil {
		opts = append(opts, pipeline.WithPublisher(a.publisher))
	}
	return pipeline.New(pipeline.Config{
		OutputDir:       a.cfg.Output.Dir,
		RootDocument:    a.cfg.Output.RootDocument,
		Host:            a.cfg.Server.Host,
		Port:            a.cfg.Server.Port,
		Routes:          routes,
		Workers:         a.cfg.Browser.Workers,
		ManifestPath:    a.cfg.Manifest.Path,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	}, a.launch, a.logger, opts...), nil
}

// Run executes one prerender pass and pushes metrics when configured.
func (a *App) Run(ctx context.Context) (*manifest.Manifest, error) {
	runner, err := a.Runner()
	if err != nil {
		return nil, err
	}
	m, runErr := runner.Run(ctx)
	if errors.Is(runErr, pipeline.ErrOutputDirMissing) {
		return nil, runErr
	}
	if a.cfg.Metrics.PushgatewayURL != "" {
		if err := metrics.Push(context.WithoutCancel(ctx), a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job); err != nil {
			a.logger.Warn("metrics push failed", zap.Error(err))
		}
	}
	return m, runErr
}

// Close releases cloud clients and flushes tracing.
func (a *App) Close(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("error closing publisher", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("error closing storage client", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("error flushing traces", zap.Error(err))
		}
	}
}
