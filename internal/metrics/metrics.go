// Package metrics exposes Prometheus collectors for a prerender run.
package metrics

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Route outcome labels.
const (
	StatusWritten       = "written"
	StatusCaptureFailed = "capture_failed"
	StatusWriteFailed   = "write_failed"
)

var (
	registry *prometheus.Registry

	routesTotal                *prometheus.CounterVec
	captureDurationSeconds     *prometheus.HistogramVec
	bytesWrittenTotal          prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		registry = prometheus.NewRegistry()
		factory := promauto.With(registry)

		routesTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prerender_routes_total",
				Help: "Routes processed, labeled by route and outcome.",
			},
			[]string{"route", "status"},
		)

		captureDurationSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prerender_capture_duration_seconds",
				Help:    "Time spent navigating, settling and serializing a route.",
				Buckets: []float64{0.5, 1, 2, 3, 5, 10, 20, 30, 60},
			},
			[]string{"route"},
		)

		bytesWrittenTotal = factory.NewCounter(
			prometheus.CounterOpts{
				Name: "prerender_bytes_written_total",
				Help: "Total bytes of snapshot HTML written to the output root.",
			},
		)

		httpRequestsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prerender_static_requests_total",
				Help: "Requests answered by the static asset server, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prerender_static_request_duration_seconds",
				Help:    "Latency of static asset server responses, labeled by method and request class.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "class"},
		)

		activeWorkers = factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "prerender_active_workers",
				Help: "Number of workers currently capturing a route.",
			},
		)
	})
}

// Registry returns the registry all prerender collectors are registered with.
func Registry() *prometheus.Registry {
	Init()
	return registry
}

// ObserveRoute records the outcome and capture latency of one route.
func ObserveRoute(route, status string, capture time.Duration) {
	Init()
	routesTotal.WithLabelValues(route, status).Inc()
	if capture > 0 {
		captureDurationSeconds.WithLabelValues(route).Observe(capture.Seconds())
	}
}

// ObserveBytesWritten adds n to the written bytes counter.
func ObserveBytesWritten(n int) {
	Init()
	if n > 0 {
		bytesWrittenTotal.Add(float64(n))
	}
}

// ObserveHTTPRequest increments the static server request metrics.
func ObserveHTTPRequest(method, class string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, class).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// Push sends the current registry contents to a Prometheus Pushgateway.
func Push(ctx context.Context, gatewayURL, job string) error {
	if err := push.New(gatewayURL, job).Gatherer(Registry()).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
