// Package slab implements a per-instance bump allocator that distributes
// pages from a pagepool.PagePool to registered callers and lets any caller
// free an allocation made by any other.
//
// Go has no addressable notion of "the calling OS thread" the way the design
// this was ported from does, so where the original keys its per-thread slab
// by thread ID, this port keys it by an explicit CallerToken the caller
// obtains once (typically per goroutine) via SlabAllocator.Token.
package slab

import (
	"errors"
	"sync"
	"unsafe"

	"go.uber.org/atomic"

	"github.com/tuannm99/novakernel/internal/pagepool"
)

// ErrRequestTooLarge is returned when a single allocation, plus its header,
// would not fit in one page.
var ErrRequestTooLarge = errors.New("slab: request too large for one page")

// header precedes every allocation made through a SlabAllocator, carrying a
// borrow-style back-reference to the page that satisfied it so a
// deallocation on any goroutine can find its way home.
type header struct {
	page *activePage
}

const headerSize = unsafe.Sizeof(header{})

// activePage pairs a pool page with the borrow count tracking who still
// needs it live: the slab's own active-slot reference (held from the
// moment the page becomes some caller's active page until that caller
// rotates off it or retires) plus one more for every allocation carved
// from it that hasn't been freed yet. borrows starts at one, for the
// active-slot reference; release reports whether it was the last borrower
// out, in which case the underlying pool page goes back to the PagePool.
type activePage struct {
	page    *pagepool.Page
	borrows atomic.Int32
	free    int // offset of the next free byte within page.Bytes()
}

func (ap *activePage) borrow() {
	ap.borrows.Add(1)
}

func (ap *activePage) release() bool {
	n := ap.borrows.Add(-1)
	if n < 0 {
		panic("slab: activePage borrow count went negative")
	}
	return n == 0
}

// CallerToken identifies one logical caller (conventionally one goroutine) to
// a SlabAllocator. Obtain one with SlabAllocator.Token and reuse it for the
// lifetime of the calling goroutine.
type CallerToken uint64

// perCallerSlab is one caller's bump-allocation cursor: a single currently
// active page, replaced whenever it fills up.
type perCallerSlab struct {
	mu     sync.Mutex
	active *activePage
}

// SlabAllocator distributes pages borrowed from a pagepool.PagePool to
// registered callers and bump-allocates from each caller's currently active
// page. Allocations may be freed from any goroutine, not just the one that
// made them.
type SlabAllocator struct {
	pool *pagepool.PagePool

	mu      sync.Mutex
	callers map[CallerToken]*perCallerSlab
	nextTok CallerToken
}

// New constructs a SlabAllocator borrowing pages from pool.
func New(pool *pagepool.PagePool) *SlabAllocator {
	return &SlabAllocator{
		pool:    pool,
		callers: make(map[CallerToken]*perCallerSlab),
	}
}

// Token registers a new logical caller and returns the token it must present
// to Allocate. Call once per goroutine that will allocate through this
// SlabAllocator.
func (a *SlabAllocator) Token() CallerToken {
	a.mu.Lock()
	defer a.mu.Unlock()

	tok := a.nextTok
	a.nextTok++
	a.callers[tok] = &perCallerSlab{}
	return tok
}

// Retire releases tok's active-page reference. Call it when the registering
// goroutine is about to exit; outstanding allocations made from its active
// page remain valid until their own Deallocate calls.
func (a *SlabAllocator) Retire(tok CallerToken) {
	a.mu.Lock()
	pc, ok := a.callers[tok]
	if ok {
		delete(a.callers, tok)
	}
	a.mu.Unlock()
	if !ok {
		return
	}

	pc.mu.Lock()
	active := pc.active
	pc.active = nil
	pc.mu.Unlock()

	if active != nil && active.release() {
		a.pool.Deallocate(active.page)
	}
}

func (a *SlabAllocator) callerSlab(tok CallerToken) *perCallerSlab {
	a.mu.Lock()
	defer a.mu.Unlock()
	pc, ok := a.callers[tok]
	if !ok {
		pc = &perCallerSlab{}
		a.callers[tok] = pc
	}
	return pc
}

// Allocate returns an aligned pointer to n bytes, bump-allocated from tok's
// active page. When the active page has no room left, the old page's
// active-slot reference is released (returning it to the pool if that was
// the last borrower) and a fresh page takes its place.
func (a *SlabAllocator) Allocate(tok CallerToken, n int) (unsafe.Pointer, error) {
	if n <= 0 {
		return nil, errors.New("slab: allocation size must be positive")
	}

	need := alignUp(int(headerSize)) + n
	if need > a.pool.PageBytesAvailable() {
		return nil, ErrRequestTooLarge
	}

	pc := a.callerSlab(tok)

	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.active == nil {
		ap, err := a.newActivePage()
		if err != nil {
			return nil, err
		}
		pc.active = ap
	}

	if p, ok := bump(pc.active, need); ok {
		pc.active.borrow()
		return writeHeader(pc.active, p), nil
	}

	if pc.active.release() {
		a.pool.Deallocate(pc.active.page)
	}

	ap, err := a.newActivePage()
	if err != nil {
		pc.active = nil
		return nil, err
	}
	pc.active = ap

	p, ok := bump(pc.active, need)
	if !ok {
		// Unreachable: need <= PageBytesAvailable was checked above.
		return nil, ErrRequestTooLarge
	}
	pc.active.borrow()
	return writeHeader(pc.active, p), nil
}

// Deallocate releases the allocation at p, which must have been returned by
// Allocate on this SlabAllocator. It may be called from any goroutine.
func (a *SlabAllocator) Deallocate(p unsafe.Pointer) {
	h := (*header)(unsafe.Pointer(uintptr(p) - uintptr(alignUp(int(headerSize)))))
	ap := h.page
	if ap.release() {
		a.pool.Deallocate(ap.page)
	}
}

func (a *SlabAllocator) newActivePage() (*activePage, error) {
	page, err := a.pool.Allocate()
	if err != nil {
		return nil, err
	}
	ap := &activePage{page: page}
	ap.borrows.Store(1)
	return ap, nil
}

// bump attempts to carve need bytes off ap's free cursor. It does not yet
// write the header or bump the refcount; the caller does both only once the
// attempt is known to succeed.
func bump(ap *activePage, need int) (unsafe.Pointer, bool) {
	buf := ap.page.Bytes()
	start := alignUp(ap.free)
	end := start + need
	if end > len(buf) {
		return nil, false
	}
	ap.free = end
	return unsafe.Pointer(&buf[start]), true
}

func writeHeader(ap *activePage, p unsafe.Pointer) unsafe.Pointer {
	h := (*header)(p)
	h.page = ap
	return unsafe.Pointer(uintptr(p) + uintptr(alignUp(int(headerSize))))
}

func alignUp(n int) int {
	const align = int(unsafe.Sizeof(uintptr(0)))
	if rem := n % align; rem != 0 {
		n += align - rem
	}
	return n
}
