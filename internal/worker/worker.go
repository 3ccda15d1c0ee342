// Package worker captures and persists routes pulled from the task queue.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/prerender/internal/browser"
	"github.com/JakeFAU/prerender/internal/manifest"
	"github.com/JakeFAU/prerender/internal/metrics"
	"github.com/JakeFAU/prerender/internal/queue/memory"
	"github.com/JakeFAU/prerender/internal/route"
	"github.com/JakeFAU/prerender/internal/snapshot"
	"github.com/JakeFAU/prerender/internal/storage"
	"github.com/JakeFAU/prerender/internal/telemetry"
)

// Queue yields route tasks until closed.
type Queue interface {
	Dequeue(ctx context.Context) (route.Task, error)
}

// Capturer renders a URL into a document. Each worker owns one.
type Capturer interface {
	Capture(ctx context.Context, url string) (browser.Document, error)
}

// Recorder collects per-route outcomes.
type Recorder interface {
	Record(entry manifest.Entry)
}

// Hasher digests snapshot content.
type Hasher interface {
	Hash(data []byte) string
}

// Config controls Worker behavior.
type Config struct {
	// BaseURL is prefixed to every route path before navigation.
	BaseURL string
}

// Worker consumes route tasks and runs capture, rewrite and write for each.
type Worker struct {
	id       int
	queue    Queue
	page     Capturer
	writer   *snapshot.Writer
	mirror   storage.BlobStore
	recorder Recorder
	hasher   Hasher
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker. mirror may be nil.
func New(
	id int,
	queue Queue,
	page Capturer,
	writer *snapshot.Writer,
	mirror storage.BlobStore,
	recorder Recorder,
	hasher Hasher,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Worker{
		id:       id,
		queue:    queue,
		page:     page,
		writer:   writer,
		mirror:   mirror,
		recorder: recorder,
		hasher:   hasher,
		cfg:      cfg,
		logger:   logger.With(zap.Int("worker", id)),
	}
}

// Run processes tasks until the queue is closed and drained or ctx ends.
// Per-route failures are recorded, never returned.
func (w *Worker) Run(ctx context.Context) error {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, memory.ErrClosed) {
				return nil
			}
			if ctx.Err() != nil {
				return fmt.Errorf("worker %d: %w", w.id, ctx.Err())
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued route", zap.String("route", task.Route.Path()), zap.Int("seq", task.Seq))
		w.recorder.Record(w.process(ctx, task))
	}
}

func (w *Worker) process(ctx context.Context, task route.Task) manifest.Entry {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	path := task.Route.Path()
	ctx, span := telemetry.Tracer().Start(ctx, "prerender.route")
	span.SetAttributes(attribute.String("route", path), attribute.Int("seq", task.Seq))
	defer span.End()

	entry := manifest.Entry{Seq: task.Seq, Route: path}
	url := w.cfg.BaseURL + path

	doc, err := w.page.Capture(ctx, url)
	if err != nil {
		entry.Status = manifest.StatusCaptureFailed
		entry.Error = err.Error()
		w.finish(span, entry, 0, err)
		w.logger.Error("capture failed", zap.String("route", path), zap.String("url", url), zap.Error(err))
		return entry
	}
	entry.HTTPStatus = doc.StatusCode
	entry.Ready = doc.Ready
	entry.CaptureMS = doc.Duration.Milliseconds()
	if seo, err := manifest.ExtractSEO(doc.HTML); err != nil {
		w.logger.Warn("seo extraction failed", zap.String("route", path), zap.Error(err))
	} else {
		entry.SEO = seo
	}

	out, err := w.writer.Write(ctx, task.Route, doc.HTML)
	entry.OutputPath = out.Path
	if err != nil {
		entry.Status = manifest.StatusWriteFailed
		entry.Error = err.Error()
		w.finish(span, entry, doc.Duration, err)
		w.logger.Error("snapshot write failed", zap.String("route", path), zap.String("path", out.Path), zap.Error(err))
		return entry
	}

	entry.Status = manifest.StatusWritten
	entry.Bytes = len(out.Content)
	entry.SHA256 = w.hasher.Hash(out.Content)
	metrics.ObserveBytesWritten(entry.Bytes)

	if w.mirror != nil {
		uri, err := w.mirror.PutObject(ctx, out.RelPath, snapshot.HTMLContentType, bytes.NewReader(out.Content))
		if err != nil {
			entry.Error = fmt.Sprintf("mirror: %v", err)
			w.logger.Warn("snapshot mirror failed", zap.String("route", path), zap.Error(err))
		} else {
			entry.MirrorURI = uri
		}
	}

	w.finish(span, entry, doc.Duration, nil)
	w.logger.Info("route written",
		zap.String("route", path),
		zap.String("path", out.Path),
		zap.Int("bytes", entry.Bytes),
		zap.Duration("capture", doc.Duration),
		zap.Bool("ready", doc.Ready),
	)
	return entry
}

func (w *Worker) finish(span trace.Span, entry manifest.Entry, capture time.Duration, err error) {
	metrics.ObserveRoute(entry.Route, string(entry.Status), capture)
	span.SetAttributes(attribute.String("status", string(entry.Status)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(entry.Status))
	}
}
