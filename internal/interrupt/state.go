// Package interrupt implements the four-state cooperative-cancellation
// coordinator shared between a worker goroutine and any goroutine that wants
// to interrupt it: Run, Interrupt, Wait, Return. Exactly one goroutine (the
// "owner") may call Wait/InterruptionPoint; any number of goroutines may call
// Interrupt.
//
// Return is carried in the state enum for fidelity to the design this was
// ported from, but — as that source's own live behavior shows, despite
// comments suggesting otherwise — nothing ever transitions into it as a
// resting state; Wait treats Run and Return as equivalent sources, and
// InterruptionPoint asserts against it purely as a bug check.
package interrupt

import (
	"fmt"
	"time"

	"go.uber.org/atomic"
)

type state int32

const (
	stateRun state = iota
	stateInterrupt
	stateWait
	stateReturn
)

func (s state) String() string {
	switch s {
	case stateRun:
		return "Run"
	case stateInterrupt:
		return "Interrupt"
	case stateWait:
		return "Wait"
	case stateReturn:
		return "Return"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// DefaultWaitTimeout bounds how long Wait blocks with no activity before
// re-checking on its own. It exists only to bound lost-wakeup risk;
// ordinary operation never relies on it firing.
const DefaultWaitTimeout = 30 * time.Second

// State is the atomic coordinator itself. The zero value is not usable; use
// New.
type State struct {
	word atomic.Int32

	mu      chan struct{} // binary semaphore guarding wake
	wake    chan struct{} // non-nil while the owner is parked in Wait
	timeout time.Duration
}

// New constructs a State in the Run state with the given wait timeout. A
// timeout of 0 selects DefaultWaitTimeout.
func New(timeout time.Duration) *State {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	s := &State{
		mu:      make(chan struct{}, 1),
		timeout: timeout,
	}
	s.mu <- struct{}{}
	s.word.Store(int32(stateRun))
	return s
}

func (s *State) lock()   { <-s.mu }
func (s *State) unlock() { s.mu <- struct{}{} }

func (s *State) load() state { return state(s.word.Load()) }

func (s *State) cas(from, to state) bool {
	return s.word.CompareAndSwap(int32(from), int32(to))
}

// Wait is called by the owner to block until interrupted, or until the
// construction timeout elapses with no interruption. It returns true if an
// interruption was observed — either already latched, or delivered while
// parked. A positive result must be fully consumed before the next Wait
// call; the state machine enforces this (a fresh interruption always starts
// back in Run).
func (s *State) Wait() bool {
	for {
		switch from := s.load(); from {
		case stateInterrupt:
			if s.cas(stateInterrupt, stateRun) {
				return true
			}
		case stateRun, stateReturn:
			s.lock()
			if s.cas(from, stateWait) {
				ch := make(chan struct{})
				s.wake = ch
				s.unlock()
				return s.parkOn(ch)
			}
			s.unlock()
		default:
			panic("interrupt: Wait called while owner is already Waiting")
		}
	}
}

// parkOn blocks until either Interrupt closes ch (the owner was woken) or
// the wait timeout elapses. On timeout it races Interrupt for the Wait->Run
// transition: whichever of the two wins the compare-and-swap determines
// whether this Wait call reports an interruption.
func (s *State) parkOn(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-time.After(s.timeout):
		if s.cas(stateWait, stateRun) {
			return false
		}
		// Interrupt won the race and already moved Wait->Run.
		return true
	}
}

// Interrupt is called by any goroutine other than the owner. It latches a
// pending interruption if the owner is running, or wakes the owner's
// in-progress Wait if it is parked. Calling Interrupt while the owner is
// already in Interrupt is a no-op; the owner will observe it on its next
// poll regardless.
func (s *State) Interrupt() {
	for {
		switch from := s.load(); from {
		case stateInterrupt:
			return
		case stateRun, stateReturn:
			if s.cas(from, stateInterrupt) {
				return
			}
		case stateWait:
			s.lock()
			if s.cas(stateWait, stateRun) {
				ch := s.wake
				s.wake = nil
				s.unlock()
				if ch != nil {
					close(ch)
				}
				return
			}
			s.unlock()
		}
	}
}

// InterruptionPoint is called by the owner to poll for, and consume, a
// latched interruption. It is a contract violation (and panics) to call
// this while the owner is itself in Wait or Return — those occur only
// inside the owner's own Wait call, and the owner cannot simultaneously be
// waiting and polling.
func (s *State) InterruptionPoint() bool {
	switch s.load() {
	case stateWait, stateReturn:
		panic("interrupt: InterruptionPoint called while owner is Waiting")
	}
	return s.cas(stateInterrupt, stateRun)
}
