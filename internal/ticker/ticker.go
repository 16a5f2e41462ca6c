// Package ticker implements a once-per-second timer that fans a single tick
// out to every registrant. PagePool is its only client in scope.
//
// A Process is an explicit shared handle: construct one with New and pass it
// into every constructor that needs to register against it (PagePool's
// constructor takes one directly). This is deliberate — an implicit
// package-level static shared by every caller would make two independent
// PagePools (as in two independently constructed Runtimes, or two tests)
// fight over the same clock. The package-level Register, backed by an
// unexported default Process, exists only as a thin convenience for call
// sites, such as a one-off main.go, that genuinely want the whole process to
// share one clock.
package ticker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
)

// DefaultInterval is the tick period PagePool relies on for its hot/cold
// reclamation swap.
const DefaultInterval = time.Second

// Callback is invoked once per tick, on the Process's own goroutine. It must
// return quickly; it is never invoked concurrently with itself.
type Callback func()

// Handle lets a registrant deregister itself.
type Handle interface {
	Unregister() error
}

type registration struct {
	id int
	p  *Process
}

func (r *registration) Unregister() error {
	r.p.remove(r.id)
	return nil
}

// Process is one explicit once-per-second timer. The zero value is not
// usable; use New. Its background goroutine is started lazily on the first
// Register call and stopped by Close.
type Process struct {
	mu       sync.Mutex
	interval time.Duration
	regs     map[int]Callback
	nextID   int
	started  bool
	closed   bool
	wg       *conc.WaitGroup
	stopCh   chan struct{}
}

// New constructs a Process with the given tick interval. Nothing runs until
// the first Register call.
func New(interval time.Duration) *Process {
	return &Process{interval: interval}
}

// Register adds cb to the set of once-per-second callbacks and lazily starts
// this Process's timer goroutine if this is the first registrant.
func (p *Process) Register(cb Callback) Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	if p.regs == nil {
		p.regs = make(map[int]Callback)
	}
	p.regs[id] = cb

	if !p.started {
		p.started = true
		p.stopCh = make(chan struct{})
		p.wg = conc.NewWaitGroup()
		p.wg.Go(p.run)
	}

	return &registration{id: id, p: p}
}

// Close stops this Process's timer goroutine, if one was ever started, and
// waits for it to exit. Close is idempotent.
func (p *Process) Close() error {
	p.mu.Lock()
	if !p.started || p.closed {
		p.closed = true
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	stopCh := p.stopCh
	wg := p.wg
	p.mu.Unlock()

	close(stopCh)
	wg.Wait()
	return nil
}

func (p *Process) remove(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.regs, id)
}

func (p *Process) run() {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			p.fire()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Process) fire() {
	p.mu.Lock()
	cbs := make([]Callback, 0, len(p.regs))
	for _, cb := range p.regs {
		cbs = append(cbs, cb)
	}
	p.mu.Unlock()

	for _, cb := range cbs {
		runCallback(cb)
	}
}

func runCallback(cb Callback) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ticker: callback panicked", "err", r)
		}
	}()
	cb()
}

// defaultProcess is a convenience instance for call sites, such as a small
// main.go, that have no constructed Process of their own to thread through.
// Anything that owns its own lifecycle (PagePool via its Runtime) should
// construct and pass its own Process instead of reaching for this one.
var defaultProcess = New(DefaultInterval)

// Register adds cb to the default process-wide Process. Prefer constructing
// a Process with New and registering on it directly when the caller already
// has an explicit handle to thread through.
func Register(cb Callback) Handle {
	return defaultProcess.Register(cb)
}
