// Package kernel is the embeddable facade over the runtime primitives in
// internal/pagepool, internal/slab, internal/interrupt, internal/worker, and
// internal/threadworker. It wires them into one Runtime handle; nothing in
// this package is itself novel — it is composition.
package kernel

import (
	"time"
	"unsafe"

	"go.uber.org/multierr"

	"github.com/tuannm99/novakernel/internal/config"
	"github.com/tuannm99/novakernel/internal/interrupt"
	"github.com/tuannm99/novakernel/internal/pagepool"
	"github.com/tuannm99/novakernel/internal/slab"
	"github.com/tuannm99/novakernel/internal/threadworker"
	"github.com/tuannm99/novakernel/internal/ticker"
	"github.com/tuannm99/novakernel/internal/worker"
)

// Re-exported error values and types so callers can match these errors
// without importing the internal packages directly.
var (
	ErrExhausted       = pagepool.ErrExhausted
	ErrOutOfMemory     = pagepool.ErrOutOfMemory
	ErrRequestTooLarge = slab.ErrRequestTooLarge
	ErrClosed          = worker.ErrClosed
)

// ContractViolation is panicked by misuses treated as fatal bugs rather
// than recoverable errors: double Start, or Stop(wait=true) from a
// worker's own goroutine.
type ContractViolation = threadworker.ContractViolation

// Strategy selects which interruption signaling discipline a new Worker
// uses.
type Strategy int

const (
	// PollingBased: InterruptionPoint and Wait report interruption as a
	// plain bool; the caller is expected to check it.
	PollingBased Strategy = iota
	// ExceptionBased: a positive observation panics with a private signal
	// type that only the run loop recovers.
	ExceptionBased
)

// Runtime is one instance of the kernel: a PagePool, a SlabAllocator over
// it, and the ticker the PagePool swaps its hot/cold generations against.
// It also constructs named Workers, each optionally bound to its own
// ThreadWorker, but does not keep track of them.
type Runtime struct {
	pages  *pagepool.PagePool
	slab   *slab.SlabAllocator
	ticker *ticker.Process

	waitTimeout time.Duration
}

// New constructs a Runtime from cfg. Pass config.Default() for the built-in
// defaults. The Runtime owns one ticker.Process for its own lifetime and
// passes it explicitly into the PagePool it constructs — two Runtimes never
// share a clock.
func New(cfg *config.KernelConfig) *Runtime {
	t := ticker.New(ticker.DefaultInterval)
	pool := pagepool.New(cfg.PagePool.PageBytes, cfg.PagePool.HardCapMegaBytes, t)
	return &Runtime{
		pages:       pool,
		slab:        slab.New(pool),
		ticker:      t,
		waitTimeout: cfg.WaitTimeout(),
	}
}

// PageBytesAvailable returns the usable payload per page — the ceiling on a
// single Allocate call.
func (r *Runtime) PageBytesAvailable() int { return r.pages.PageBytesAvailable() }

// SlabToken registers a new logical allocator caller (conventionally one
// goroutine) and returns the token it must present to Allocate.
func (r *Runtime) SlabToken() slab.CallerToken { return r.slab.Token() }

// RetireSlabToken releases tok's active page. Call it when the registering
// goroutine is about to exit.
func (r *Runtime) RetireSlabToken(tok slab.CallerToken) { r.slab.Retire(tok) }

// Allocate returns an aligned pointer to n bytes via the shared
// SlabAllocator, bump-allocated from tok's active page.
func (r *Runtime) Allocate(tok slab.CallerToken, n int) (unsafe.Pointer, error) {
	return r.slab.Allocate(tok, n)
}

// Deallocate releases an allocation made through Allocate. May be called
// from any goroutine.
func (r *Runtime) Deallocate(p unsafe.Pointer) { r.slab.Deallocate(p) }

// NewWorker constructs a named, open Worker with no dedicated goroutine of
// its own. Use NewThreadWorker to additionally bind one.
func (r *Runtime) NewWorker(name string) *worker.Worker { return worker.New(name) }

// NewThreadWorker binds w to a fresh background goroutine using the given
// interruption strategy. The wait timeout configured on the Runtime (or
// interrupt.DefaultWaitTimeout if unset) governs how long the run loop's
// Wait step blocks with no activity.
func (r *Runtime) NewThreadWorker(w *worker.Worker, strategy Strategy) *threadworker.ThreadWorker {
	var s interrupt.Strategy
	switch strategy {
	case ExceptionBased:
		s = interrupt.NewException(r.waitTimeout)
	default:
		s = interrupt.NewPolling(r.waitTimeout)
	}
	return threadworker.New(w, s)
}

// Close tears down the Runtime's PagePool, deregistering it from its
// ticker, then stops that ticker's own goroutine. It does not touch any
// Worker or ThreadWorker created from this Runtime — callers own those
// lifecycles and must Stop them first.
func (r *Runtime) Close() error {
	var errs error
	errs = multierr.Append(errs, r.pages.Close())
	errs = multierr.Append(errs, r.ticker.Close())
	return errs
}
