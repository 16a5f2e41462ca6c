package pagepool

import "go.uber.org/atomic"

// stack is an intrusive, lock-free LIFO of *Page built on Page.next, using a
// compare-and-swap head exactly as spec'd for PagePool's fresh/garbage lists.
// It never allocates beyond the Page nodes themselves.
type stack struct {
	head atomic.Pointer[Page]
}

func (s *stack) push(p *Page) {
	for {
		old := s.head.Load()
		p.next.Store(old)
		if s.head.CompareAndSwap(old, p) {
			return
		}
	}
}

func (s *stack) pop() *Page {
	for {
		old := s.head.Load()
		if old == nil {
			return nil
		}
		next := old.next.Load()
		if s.head.CompareAndSwap(old, next) {
			old.next.Store(nil)
			return old
		}
	}
}
