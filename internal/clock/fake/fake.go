// Package fake provides a manually advanced clock for tests.
package fake

import (
	"sync"
	"time"
)

// Clock returns a fixed time until advanced.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// New returns a Clock stopped at start.
func New(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the fake time elapsed since t.
func (c *Clock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
