package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/prerender/internal/route"
)

func task(seq int, path string) route.Task {
	return route.Task{Seq: seq, Route: route.MustParse(path)}
}

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan route.Task, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	if err := q.Enqueue(context.Background(), task(0, "/about")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.Route.Path() != "/about" {
			t.Fatalf("expected /about, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return task")
	}
}

func TestQueuePreservesOrder(t *testing.T) {
	t.Parallel()

	paths := []string{"/", "/about", "/products", "/contact"}
	q := NewQueue(len(paths))
	for i, p := range paths {
		if err := q.Enqueue(context.Background(), task(i, p)); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", p, err)
		}
	}
	q.Close()

	for i, want := range paths {
		got, err := q.Dequeue(context.Background())
		if err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
		if got.Seq != i || got.Route.Path() != want {
			t.Fatalf("position %d: got %d %s, want %s", i, got.Seq, got.Route.Path(), want)
		}
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after drain, got %v", err)
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := NewQueue(1)
	if err := qEnqueue.Enqueue(context.Background(), task(0, "/")); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, task(1, "/about")); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected queue closed error, got %v", err)
	}
	if err := q.Enqueue(context.Background(), task(0, "/")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected enqueue after close to fail, got %v", err)
	}
	// Closing twice should be safe.
	q.Close()
}
