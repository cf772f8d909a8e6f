// Package task runs one cancellable background computation at a time.
//
// The interruption flag is the context handed to the task function: a
// well-behaved function polls ctx.Err() in its long loops and returns it
// unchanged once it is set.
package task

import (
	"context"
	"errors"
	"sync"
)

// ErrRunning is returned by Start when the previous task has not been
// joined yet.
var ErrRunning = errors.New("task: already running")

// Func is the body of a background task.
type Func func(ctx context.Context) error

// Handle owns at most one goroutine. The zero value is ready to use.
type Handle struct {
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
	running  bool
	finished bool
}

// Start launches fn in a new goroutine with a context derived from ctx.
// The previous task must have been joined.
func (h *Handle) Start(ctx context.Context, fn Func) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	h.cancel = cancel
	h.done = done
	h.err = nil
	h.running = true
	h.finished = false

	go func() {
		defer close(done)
		defer cancel()

		err := fn(ctx)

		h.mu.Lock()
		h.err = err
		h.finished = true
		h.mu.Unlock()
	}()
	return nil
}

// Cancel sets the interruption flag of the running task, if any. It does
// not wait.
func (h *Handle) Cancel() {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Join blocks until the running task returns and releases the handle for
// the next Start. Joining an idle handle returns immediately.
func (h *Handle) Join() {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	if done == nil {
		return
	}
	<-done

	h.mu.Lock()
	if h.done == done {
		h.running = false
		h.cancel = nil
		h.done = nil
	}
	h.mu.Unlock()
}

// Running reports whether a task was started and not joined yet.
func (h *Handle) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running && !h.finished
}

// Finished reports whether the last started task has returned.
func (h *Handle) Finished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished
}

// Err returns the error of the last finished task.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}
