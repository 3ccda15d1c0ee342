// Package publisher announces finished prerender runs to downstream systems.
package publisher

import (
	"context"
	"time"

	"github.com/JakeFAU/prerender/internal/manifest"
)

// EventType identifies run completion events.
const EventType = "prerender.completed"

// Publisher delivers run events.
type Publisher interface {
	Publish(ctx context.Context, event Event) (string, error)
	Close() error
}

// Event summarizes a finished run.
type Event struct {
	Type         string           `json:"type"`
	RunID        string           `json:"run_id"`
	OutputDir    string           `json:"output_dir"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	Summary      manifest.Summary `json:"summary"`
	FailedRoutes []string         `json:"failed_routes,omitempty"`
	MirrorPrefix string           `json:"mirror_prefix,omitempty"`
}

// NewCompletedEvent builds the completion event for a finished manifest.
func NewCompletedEvent(m *manifest.Manifest, mirrorPrefix string) Event {
	ev := Event{
		Type:         EventType,
		RunID:        m.RunID,
		OutputDir:    m.OutputDir,
		StartedAt:    m.StartedAt,
		FinishedAt:   m.FinishedAt,
		Summary:      m.Summary,
		MirrorPrefix: mirrorPrefix,
	}
	for _, e := range m.Failed() {
		ev.FailedRoutes = append(ev.FailedRoutes, e.Route)
	}
	return ev
}
