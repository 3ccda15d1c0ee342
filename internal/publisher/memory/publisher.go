// Package memory contains an in-memory publisher for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/prerender/internal/publisher"
)

// Publisher stores published events for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []publisher.Event
	err    error
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes subsequent publishes return err.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Publish records the event and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, event publisher.Event) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return fmt.Sprintf("memory-%d", len(p.events)), nil
}

// Close is a no-op.
func (p *Publisher) Close() error { return nil }

// Events returns the recorded publishes.
func (p *Publisher) Events() []publisher.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]publisher.Event, len(p.events))
	copy(out, p.events)
	return out
}
