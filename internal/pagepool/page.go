// Package pagepool implements a process-wide, fixed-size page allocator with
// deferred, epoch-style reclamation.
//
// A PagePool hands out fixed-size Pages and recycles them through a pair of
// pools ("hot" and "cold"). Freed pages sit in the hot pool's garbage list
// until the next tick, at which point the pools swap roles: yesterday's
// garbage becomes today's reserve. A page freed just before a tick is never
// handed back out in that same tick, which is what lets consumers treat a
// page they recently saw as genuinely gone for at least one full cycle.
package pagepool

import (
	"unsafe"

	"go.uber.org/atomic"
)

// alignment is the platform word size; headerAdjustedSize rounds a header
// size up to a multiple of it, mirroring Memory::sizeAdjustedForAlignment in
// the source this was ported from.
const alignment = unsafe.Sizeof(uintptr(0))

// Page is a contiguous, fixed-size byte region owned by exactly one PagePool.
// It carries a back-reference to that pool so a deallocation can be routed
// correctly even if the caller no longer remembers which pool produced it,
// and a next pointer so it can sit on an intrusive LIFO stack.
type Page struct {
	pool *PagePool
	next atomic.Pointer[Page]
	buf  []byte
}

func newPage(pool *PagePool) *Page {
	return &Page{
		pool: pool,
		buf:  make([]byte, pool.pageBytes),
	}
}

// Pool returns the PagePool this page belongs to.
func (p *Page) Pool() *PagePool { return p.pool }

// Bytes returns the page's full backing storage. Callers that prepend their
// own header (SlabAllocator does) are responsible for carving payload out of
// this themselves.
func (p *Page) Bytes() []byte { return p.buf }

func headerAdjustedSize(n uintptr) uintptr {
	if rem := n % uintptr(alignment); rem != 0 {
		n += uintptr(alignment) - rem
	}
	return n
}
