// Package dispatcher fans route tasks out to a pool of workers.
package dispatcher

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/prerender/internal/route"
)

// Queue is the task source shared by the workers.
type Queue interface {
	Enqueue(ctx context.Context, task route.Task) error
	Close()
}

// Runner drains tasks until the queue is closed.
type Runner interface {
	Run(ctx context.Context) error
}

// Dispatcher feeds a queue and runs workers over it.
type Dispatcher struct {
	queue   Queue
	workers []Runner
}

// New creates a Dispatcher.
func New(queue Queue, workers []Runner) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Dispatch enqueues every route in order, closes the queue, and blocks until
// all workers have drained it. The queue must have room for every route.
// It returns the first worker error.
func (d *Dispatcher) Dispatch(ctx context.Context, routes route.List) error {
	for i, r := range routes {
		if err := d.Enqueue(ctx, route.Task{Seq: i, Route: r}); err != nil {
			d.queue.Close()
			return err
		}
	}
	d.queue.Close()
	return d.Run(ctx)
}

// Run starts all workers and blocks until every one returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range d.workers {
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return nil
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, task route.Task) error {
	if err := d.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
