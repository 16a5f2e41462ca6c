package pagepool

import (
	"errors"
	"log/slog"
	"unsafe"

	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/tuannm99/novakernel/internal/ticker"
)

var (
	// ErrExhausted is returned when the hard cap on ever-allocated pages has
	// been reached and no fresh page is available.
	ErrExhausted = errors.New("pagepool: hard cap reached, no pages available")

	// ErrOutOfMemory is returned when the underlying system allocator
	// refuses a request. On the Go runtime this only surfaces via panic
	// recovery, since make([]byte, n) does not itself return an error.
	ErrOutOfMemory = errors.New("pagepool: system allocator refused")
)

// DefaultHardCapMegaBytes bounds the total physical memory a PagePool may
// ever hand out, expressed as megabytes of pages. It is a construction
// parameter, not a hard-coded constant.
const DefaultHardCapMegaBytes = 1024

const bytesPerMegabyte = 1024 * 1024

// pool is a pair of intrusive LIFO stacks. A PagePool owns two of these,
// "hot" and "cold"; the ticker swaps which is which once per second.
type pool struct {
	fresh   *stack
	garbage *stack
}

func newPool() *pool {
	return &pool{fresh: &stack{}, garbage: &stack{}}
}

// PagePool is a process-wide source of fixed-size raw pages. allocate pops
// from the hot pool's fresh list (or mints a new page against the hard cap);
// deallocate pushes onto the hot pool's garbage list. A page recycled via
// deallocate spends at least one full ticker cycle in the cold pool before
// it can be handed out again.
type PagePool struct {
	pageBytes          int
	pageBytesAvailable int

	hot  atomic.Pointer[pool]
	cold atomic.Pointer[pool]

	pagesRemaining atomic.Int64

	tickerHandle ticker.Handle
}

// New constructs a PagePool with a fixed page size and a hard cap on total
// pages it will ever mint, expressed in megabytes. A hardCapMegaBytes of 0
// selects DefaultHardCapMegaBytes. t is the explicit ticker this pool
// registers its hot/cold swap against; the caller owns t's lifetime (a
// Runtime constructs one and passes it to every PagePool it owns). The pool
// must be closed with Close to deregister from t.
func New(pageBytes int, hardCapMegaBytes int, t *ticker.Process) *PagePool {
	if hardCapMegaBytes <= 0 {
		hardCapMegaBytes = DefaultHardCapMegaBytes
	}

	pp := &PagePool{
		pageBytes:          pageBytes,
		pageBytesAvailable: pageBytes - int(headerAdjustedSize(unsafe.Sizeof(Page{}))),
	}
	pp.pagesRemaining.Store(int64(hardCapMegaBytes) * bytesPerMegabyte / int64(pageBytes))

	pp.hot.Store(newPool())
	pp.cold.Store(newPool())

	pp.tickerHandle = t.Register(pp.tick)

	return pp
}

// PageBytes returns the fixed page size this pool was constructed with.
func (pp *PagePool) PageBytes() int { return pp.pageBytes }

// PageBytesAvailable returns the usable payload per page, after subtracting
// the page header's aligned size.
func (pp *PagePool) PageBytesAvailable() int { return pp.pageBytesAvailable }

// Allocate returns a fresh Page, minting a new one from the system allocator
// if the hot pool's fresh list is empty and the hard cap has not been hit.
func (pp *PagePool) Allocate() (page *Page, err error) {
	hot := pp.hot.Load()

	if p := hot.fresh.pop(); p != nil {
		return p, nil
	}

	if pp.pagesRemaining.Add(-1) < 0 {
		pp.pagesRemaining.Add(1)
		return nil, ErrExhausted
	}

	defer func() {
		if r := recover(); r != nil {
			pp.pagesRemaining.Add(1)
			slog.Error("pagepool: allocation panicked", "err", r)
			page, err = nil, ErrOutOfMemory
		}
	}()

	return newPage(pp), nil
}

// Deallocate returns a page to its owning pool. It routes via the page's
// back-reference, so it is safe to call even when the caller no longer
// remembers which PagePool minted the page. Deallocate never fails.
func Deallocate(p *Page) {
	p.pool.hot.Load().garbage.push(p)
}

// Deallocate returns a page previously obtained from this pool. Provided as
// a method for symmetry with Allocate; routes to the package-level
// Deallocate, which is the one cross-pool-safe entry point.
func (pp *PagePool) Deallocate(p *Page) {
	Deallocate(p)
}

// tick runs once per second, driven by the process-wide ticker:
//  1. swap the cold pool's fresh and garbage lists (yesterday's garbage
//     becomes today's reserve),
//  2. free one page from the cold pool's now-stale fresh list (gradual
//     shrinkage of whatever sat unclaimed through an entire cycle),
//  3. atomically swap which pool is hot and which is cold.
//
// The swap must happen before the stale-page drop: dropping first would
// bleed from the garbage a caller just freed, on its way to becoming the
// new reserve, instead of from pages that already sat unclaimed.
func (pp *PagePool) tick() {
	cold := pp.cold.Load()

	cold.fresh, cold.garbage = cold.garbage, cold.fresh

	if stale := cold.garbage.pop(); stale != nil {
		// let GC reclaim; nothing else references it once popped.
		_ = stale
	}

	hot := pp.hot.Load()
	pp.hot.Store(cold)
	pp.cold.Store(hot)
}

// Close deregisters the pool from the ticker it was constructed with. Any
// pages still outstanding are simply dropped for GC; PagePool holds no
// finalizer-requiring resources of its own.
func (pp *PagePool) Close() error {
	var errs error
	if pp.tickerHandle != nil {
		errs = multierr.Append(errs, pp.tickerHandle.Unregister())
	}
	return errs
}
