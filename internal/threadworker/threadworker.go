// Package threadworker binds a worker.Worker to one dedicated background
// goroutine plus a user-supplied idle routine, arbitrating between draining
// the mailbox, running idle work, and parking on an interrupt.State when
// there is nothing left to do.
package threadworker

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"

	"github.com/tuannm99/novakernel/internal/interrupt"
	"github.com/tuannm99/novakernel/internal/worker"
)

// IdleFunc is the user-supplied work run between mailbox drains. Returning
// true tells the run loop "I was interrupted, return from idle now"; the
// zero value (nil, via Start's default) always reports false.
type IdleFunc func() bool

// InitFunc and ExitFunc bracket the run loop, invoked once each on the
// owning goroutine.
type InitFunc func()
type ExitFunc func()

// ContractViolation is panicked for programmer errors that must abort
// rather than be recovered from: calling Start twice, or calling
// Stop(wait=true) from the worker's own goroutine.
type ContractViolation struct {
	msg string
}

func (e *ContractViolation) Error() string { return "threadworker: " + e.msg }

func violate(msg string) { panic(&ContractViolation{msg: msg}) }

// ThreadWorker binds a Worker to a background goroutine and an idle
// function. Construct with New, configure and launch with Start, and tear
// down with Stop.
type ThreadWorker struct {
	w        *worker.Worker
	strategy interrupt.Strategy

	stopOnce sync.Once

	started    atomic.Bool
	goroutine  atomic.Uint64 // set once the run loop goroutine is known
	shouldStop atomic.Bool

	idle IdleFunc
	init InitFunc
	exit ExitFunc

	wg *conc.WaitGroup
}

// New constructs a ThreadWorker around w, using strategy for interruption
// signaling (interrupt.NewPolling or interrupt.NewException). Start must be
// called exactly once before use.
func New(w *worker.Worker, strategy interrupt.Strategy) *ThreadWorker {
	return &ThreadWorker{w: w, strategy: strategy}
}

// Start records idle/init/exit (any of which may be nil), opens the
// underlying Worker, and spawns the background goroutine. It is a contract
// violation to call Start more than once.
func (t *ThreadWorker) Start(idle IdleFunc, init InitFunc, exit ExitFunc) {
	if !t.started.CompareAndSwap(false, true) {
		violate("Start called more than once")
	}

	if idle == nil {
		idle = func() bool { return false }
	}
	if init == nil {
		init = func() {}
	}
	if exit == nil {
		exit = func() {}
	}
	t.idle, t.init, t.exit = idle, init, exit

	t.wg = conc.NewWaitGroup()
	t.wg.Go(t.run)
}

// Interrupt enqueues an empty call. This both guarantees the run loop will
// see new work on its next mailbox drain and wakes the interrupt.State if
// the goroutine is parked in Wait.
func (t *ThreadWorker) Interrupt() {
	_ = t.w.Call(func() {})
	t.strategy.Interrupt()
}

// Stop is an atomic sequence: enqueue an internal "set shouldStop" call,
// then close the Worker so no further calls are accepted. If wait is true,
// it blocks until the run loop's goroutine has exited. Safe to call more
// than once; it is a contract violation to call Stop(wait=true) from the
// run loop's own goroutine.
func (t *ThreadWorker) Stop(wait bool) {
	if wait && t.onOwnGoroutine() {
		violate("Stop(wait=true) called from the worker's own goroutine")
	}

	t.stopOnce.Do(func() {
		_ = t.w.Call(func() { t.shouldStop.Store(true) })
		t.w.Close()
		t.strategy.Interrupt()
	})

	if wait && t.wg != nil {
		t.wg.Wait()
	}
}

func (t *ThreadWorker) onOwnGoroutine() bool {
	return t.goroutine.Load() != 0 && t.goroutine.Load() == goroutineID()
}

// InterruptionPoint should be called periodically by the idle function; see
// package interrupt for the exact signaling contract of the configured
// strategy.
func (t *ThreadWorker) InterruptionPoint() bool {
	return t.strategy.InterruptionPoint()
}

func (t *ThreadWorker) run() {
	t.goroutine.Store(goroutineID())
	t.init()
	defer t.exit()

	for {
		t.w.Process()

		if t.shouldStop.Load() {
			return
		}

		t.runIdleAndWait()
	}
}

// runIdleAndWait executes one "idle / poll / wait" cycle, recovering an
// ExceptionBased interruption panic so the outer loop can simply re-enter
// rather than propagate it — matching the run loop's "catch Interrupted:
// continue" clause.
func (t *ThreadWorker) runIdleAndWait() {
	defer func() { interrupt.Recover(recover()) }()

	interrupted := t.idle()
	if !interrupted {
		interrupted = t.strategy.InterruptionPoint()
	}
	if !interrupted {
		t.strategy.Wait()
	}
}

// goroutineID stands in for "the current OS thread identity" the original
// design keys its interruption ownership assertions on: it parses the
// runtime's own goroutine id out of the header line of a runtime.Stack
// dump. This is the same identity for every call made from one goroutine,
// which is all ThreadWorker needs — it is never exposed outside this
// package, and never used for scheduling, only for the Stop(wait=true)
// self-deadlock check.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]

	const prefix = "goroutine "
	b = bytes.TrimPrefix(b, []byte(prefix))

	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}

	id, err := strconv.ParseUint(string(b[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
