// Package memory provides the in-process route task queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/prerender/internal/route"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained,
// and by Enqueue after Close.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded FIFO of route tasks with context-aware operations.
type Queue struct {
	ch      chan route.Task
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan route.Task, capacity),
	}
}

// Enqueue pushes a task into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, task route.Task) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task in FIFO order, respecting context cancellation.
// Tasks enqueued before Close are still delivered.
func (q *Queue) Dequeue(ctx context.Context) (route.Task, error) {
	if err := ctx.Err(); err != nil {
		return route.Task{}, fmt.Errorf("dequeue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return route.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return route.Task{}, ErrClosed
		}
		return task, nil
	}
}

// Close stops accepting tasks. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
