package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

// idleTracker counts in-flight network requests of one page and lets a
// caller wait until none have been active for a quiescence window.
type idleTracker struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	changed  chan struct{}
}

func newIdleTracker() *idleTracker {
	return &idleTracker{
		inflight: make(map[network.RequestID]struct{}),
		changed:  make(chan struct{}),
	}
}

// observe is registered with chromedp.ListenTarget. It must not block.
func (t *idleTracker) observe(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.start(e.RequestID)
	case *network.EventLoadingFinished:
		t.finish(e.RequestID)
	case *network.EventLoadingFailed:
		t.finish(e.RequestID)
	}
}

func (t *idleTracker) start(id network.RequestID) {
	t.mu.Lock()
	t.inflight[id] = struct{}{}
	t.signalLocked()
	t.mu.Unlock()
}

func (t *idleTracker) finish(id network.RequestID) {
	t.mu.Lock()
	delete(t.inflight, id)
	t.signalLocked()
	t.mu.Unlock()
}

// reset forgets requests left over from a previous navigation.
func (t *idleTracker) reset() {
	t.mu.Lock()
	clear(t.inflight)
	t.signalLocked()
	t.mu.Unlock()
}

func (t *idleTracker) signalLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}

func (t *idleTracker) pending() (int, <-chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight), t.changed
}

// waitIdle blocks until no request has started or finished for window while
// none are in flight, or until ctx ends.
func (t *idleTracker) waitIdle(ctx context.Context, window time.Duration) error {
	for {
		n, changed := t.pending()
		if n > 0 {
			select {
			case <-changed:
				continue
			case <-ctx.Done():
				return fmt.Errorf("network idle wait with %d requests in flight: %w", n, ctx.Err())
			}
		}
		timer := time.NewTimer(window)
		select {
		case <-timer.C:
			return nil
		case <-changed:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("network idle wait: %w", ctx.Err())
		}
	}
}
