package publisher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/prerender/internal/manifest"
)

func TestNewCompletedEvent(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m := manifest.New("run-9", "/srv/dist", start)
	m.Record(manifest.Entry{Seq: 1, Route: "/about", Status: manifest.StatusCaptureFailed})
	m.Record(manifest.Entry{Seq: 0, Route: "/", Status: manifest.StatusWritten})
	m.Finish(start.Add(time.Second))

	ev := NewCompletedEvent(m, "gs://bucket/site")
	assert.Equal(t, EventType, ev.Type)
	assert.Equal(t, "run-9", ev.RunID)
	assert.Equal(t, manifest.Summary{Total: 2, Written: 1, Failed: 1}, ev.Summary)
	assert.Equal(t, []string{"/about"}, ev.FailedRoutes)
	assert.Equal(t, "gs://bucket/site", ev.MirrorPrefix)
}
