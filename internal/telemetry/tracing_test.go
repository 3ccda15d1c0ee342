package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Not parallel: installs global providers.
func TestInitTracerProviderRecordsSpansAndPropagates(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := InitTracerProvider(context.Background(), "prerender", "test",
		sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	defer func() { require.NoError(t, tp.Shutdown(context.Background())) }()

	ctx, span := Tracer().Start(context.Background(), "prerender.run")
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	span.End()

	assert.NotEmpty(t, carrier.Get("traceparent"))
	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "prerender.run", ended[0].Name())
}
