// Package hk provides a mechanism for registering callbacks invoked at
// specified intervals, running on one shared background loop. cmd/simtrace
// uses it to poll the tracer's SweepIdle when a config sets an idle window
// shorter than the default "drain on end of input" (§4.7, §9).
//
// The public shape (Reg/Run/WaitStarted) is the teacher's own (its test,
// hk/housekeeper_suite_test.go, is the only file retrieved — the doc
// comment there and the call pattern it exercises is what this is built
// against). The poll-loop body is new: resolution-tick a ticker, check
// each item's due time against mono.NanoTime, and re-arm from whatever
// interval the callback itself returns.
package hk

import (
	"sync"
	"time"

	"github.com/q713/simbricks-sub001/cmn/mono"
)

// Func is a registered callback: it runs, does its work, and returns the
// interval until its next run (or <=0 to keep its original interval).
type Func func() time.Duration

type item struct {
	name     string
	interval time.Duration
	due      int64
	fn       Func
}

// HK is one housekeeper instance; DefaultHK is the process-wide one used
// by package-level Reg/Run/WaitStarted.
type HK struct {
	mu      sync.Mutex
	items   []*item
	stopCh  chan struct{}
	started chan struct{}
	once    sync.Once
}

// New creates an unstarted housekeeper.
func New() *HK {
	return &HK{stopCh: make(chan struct{}), started: make(chan struct{})}
}

// DefaultHK is the shared housekeeper most callers register against.
var DefaultHK = New()

// Tick is the poll-loop granularity; fine enough for idle windows measured
// in seconds, coarse enough not to spin.
const Tick = 50 * time.Millisecond

// Reg registers fn to run roughly every interval, starting one interval
// from now. Re-registering the same name replaces the previous entry.
func (h *HK) Reg(name string, interval time.Duration, fn Func) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregLocked(name)
	h.items = append(h.items, &item{name: name, interval: interval, due: mono.NanoTime() + interval.Nanoseconds(), fn: fn})
}

// Unreg removes a previously registered callback by name.
func (h *HK) Unreg(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregLocked(name)
}

func (h *HK) unregLocked(name string) {
	for i, it := range h.items {
		if it.name == name {
			h.items = append(h.items[:i], h.items[i+1:]...)
			return
		}
	}
}

// Run drives the poll loop until Stop is called. Meant to be started in
// its own goroutine, the way the teacher's test starts `go hk.DefaultHK.Run()`.
func (h *HK) Run() {
	h.once.Do(func() { close(h.started) })
	ticker := time.NewTicker(Tick)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.fireDue()
		}
	}
}

func (h *HK) fireDue() {
	now := mono.NanoTime()
	h.mu.Lock()
	due := make([]*item, 0, len(h.items))
	for _, it := range h.items {
		if now >= it.due {
			due = append(due, it)
		}
	}
	h.mu.Unlock()

	for _, it := range due {
		next := it.fn()
		if next <= 0 {
			next = it.interval
		}
		h.mu.Lock()
		it.due = mono.NanoTime() + next.Nanoseconds()
		h.mu.Unlock()
	}
}

// Stop ends the poll loop started by Run.
func (h *HK) Stop() { close(h.stopCh) }

// WaitStarted blocks until Run has been called at least once.
func (h *HK) WaitStarted() { <-h.started }

// Reg, Unreg, WaitStarted are package-level convenience wrappers over
// DefaultHK, matching the teacher's call sites (`hk.WaitStarted()`); Run
// has no package-level wrapper and is called as `hk.DefaultHK.Run()`.
func Reg(name string, interval time.Duration, fn Func) { DefaultHK.Reg(name, interval, fn) }
func Unreg(name string)                                { DefaultHK.Unreg(name) }
func WaitStarted()                                     { DefaultHK.WaitStarted() }

// TestInit resets DefaultHK to a fresh instance, for test suites that
// want an isolated housekeeper per run (mirrors the teacher's
// hk.TestInit() call in housekeeper_suite_test.go).
func TestInit() { DefaultHK = New() }
