package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := Registry()
	Init()
	assert.Same(t, first, Registry())
}

func TestObserveRoute(t *testing.T) {
	Init()
	before := testutil.ToFloat64(routesTotal.WithLabelValues("/observe", StatusWritten))

	ObserveRoute("/observe", StatusWritten, 1500*time.Millisecond)
	ObserveRoute("/observe", StatusCaptureFailed, 0)

	assert.Equal(t, before+1, testutil.ToFloat64(routesTotal.WithLabelValues("/observe", StatusWritten)))
	assert.Equal(t, 1.0, testutil.ToFloat64(routesTotal.WithLabelValues("/observe", StatusCaptureFailed)))
	assert.Positive(t, testutil.CollectAndCount(captureDurationSeconds))
}

func TestObserveBytesWrittenIgnoresEmpty(t *testing.T) {
	Init()
	before := testutil.ToFloat64(bytesWrittenTotal)
	ObserveBytesWritten(0)
	ObserveBytesWritten(42)
	assert.Equal(t, before+42, testutil.ToFloat64(bytesWrittenTotal))
}

func TestActiveWorkersGauge(t *testing.T) {
	Init()
	before := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	assert.Equal(t, before+1, testutil.ToFloat64(activeWorkers))
	DecActiveWorkers()
	assert.Equal(t, before, testutil.ToFloat64(activeWorkers))
}

func TestPushSendsToGateway(t *testing.T) {
	Init()
	var hits atomic.Int32
	var body atomic.Value
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !strings.Contains(r.URL.Path, "/metrics/job/prerender") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(r.Body)
		body.Store(len(data))
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	require.NoError(t, Push(context.Background(), gateway.URL, "prerender"))
	assert.Equal(t, int32(1), hits.Load())
	assert.Positive(t, body.Load())
}

func TestPushReportsGatewayErrors(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gateway.Close()

	assert.Error(t, Push(context.Background(), gateway.URL, "prerender"))
}
