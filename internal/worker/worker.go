// Package worker implements a FIFO mailbox of deferred calls serviced by its
// owning goroutine, with an open/closed lifecycle. It is the mailbox half of
// the thread-with-mailbox design; package threadworker binds one to a
// dedicated goroutine plus an idle routine.
package worker

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Call when the Worker has already been closed.
var ErrClosed = errors.New("worker: call on closed worker")

// job is the deferred call enqueued by Call. Go closures make a type-erased
// callable holder unnecessary — every job is simply a func().
type job func()

// Worker is an ordered mailbox of deferred calls. Call enqueues from any
// goroutine; Process, invoked only by the owning goroutine, drains the
// mailbox in FIFO order. Close stops further enqueues; it is idempotent.
type Worker struct {
	name string

	mu     sync.Mutex
	jobs   []job
	closed bool
}

// New constructs a Worker in the open state with an empty mailbox.
func New(name string) *Worker {
	return &Worker{name: name}
}

// Name returns the name this Worker was constructed with, used only for
// diagnostics.
func (w *Worker) Name() string { return w.name }

// Call enqueues f to run on the owning goroutine's next Process call. FIFO
// order is preserved across every goroutine that calls Call; Call never
// blocks on the current execution of another job.
func (w *Worker) Call(f func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	w.jobs = append(w.jobs, job(f))
	return nil
}

// Process drains the mailbox in FIFO order, invoking each call on the
// current goroutine, and returns once the mailbox is empty. A job that
// panics is logged and does not stop the drain or escape to the caller of
// Process — a single bad call must not take down the owning goroutine.
func (w *Worker) Process() {
	for {
		batch := w.swap()
		if len(batch) == 0 {
			return
		}
		for _, j := range batch {
			runJob(w.name, j)
		}
	}
}

func (w *Worker) swap() []job {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.jobs) == 0 {
		return nil
	}
	batch := w.jobs
	w.jobs = nil
	return batch
}

func runJob(name string, j job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker: call panicked", "worker", name, "err", r)
		}
	}()
	j()
}

// Close transitions the Worker to closed; subsequent Call attempts fail with
// ErrClosed. Idempotent.
func (w *Worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

// Closed reports whether Close has been called.
func (w *Worker) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Len reports the number of calls currently queued, for diagnostics.
func (w *Worker) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.jobs)
}
