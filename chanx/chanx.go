// Package chanx implements the §4.1 Channel: a typed FIFO with bounded and
// unbounded flavors, cooperative blocking push/pop, non-blocking
// try_push/try_pop, and two distinct shutdown modes — close (drain then
// stop) and poison (stop immediately, everywhere).
//
// Bounded channels give the pipeline runner (package pipeline) backpressure
// between stages. Unbounded channels back the context queue (package
// ctxqueue) between spanners, where rates on either side of a boundary are
// asymmetric enough that a bounded queue could deadlock the pair.
//
// Grounded on the teacher's mutex+condition-variable style seen throughout
// cmn/cos (cmn/cos/err.go's Errs: a sync.Mutex guarding a plain slice) and
// on fs/walkbck.go's close-then-range-until-!ok consumption pattern — both
// generalized here to a reusable generic FIFO with the two-tier shutdown
// §4.1 requires (close vs. poison), which plain Go channels don't
// distinguish on the read side.
package chanx

import "sync"

// Capacity of zero (see New) means unbounded: push never blocks on fullness.
const Unbounded = 0

// Channel is a typed bounded or unbounded FIFO queue.
type Channel[T any] struct {
	mu       sync.Mutex
	notEmpty sync.Cond
	notFull  sync.Cond
	items    []T
	cap      int
	closed   bool
	poisoned bool
}

// New creates a Channel with the given capacity. Pass chanx.Unbounded (0)
// for an unbounded channel.
func New[T any](capacity int) *Channel[T] {
	c := &Channel[T]{cap: capacity}
	c.notEmpty.L = &c.mu
	c.notFull.L = &c.mu
	return c
}

// Push blocks cooperatively while the channel is full (bounded only),
// returning false only if the channel is closed or poisoned.
func (c *Channel[T]) Push(v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if c.poisoned || c.closed {
			return false
		}
		if c.cap == Unbounded || len(c.items) < c.cap {
			c.items = append(c.items, v)
			c.notEmpty.Signal()
			return true
		}
		c.notFull.Wait()
	}
}

// TryPush is the non-blocking form: returns false if full, closed, or poisoned.
func (c *Channel[T]) TryPush(v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poisoned || c.closed {
		return false
	}
	if c.cap != Unbounded && len(c.items) >= c.cap {
		return false
	}
	c.items = append(c.items, v)
	c.notEmpty.Signal()
	return true
}

// Pop blocks until a value is available, the channel closes (returns the
// zero value and ok=false once drained), or the channel is poisoned
// (returns immediately with ok=false).
func (c *Channel[T]) Pop() (v T, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if c.poisoned {
			return v, false
		}
		if len(c.items) > 0 {
			v, c.items = c.items[0], c.items[1:]
			c.notFull.Signal()
			return v, true
		}
		if c.closed {
			return v, false
		}
		c.notEmpty.Wait()
	}
}

// TryPop is the non-blocking form of Pop.
func (c *Channel[T]) TryPop() (v T, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poisoned {
		return v, false
	}
	if len(c.items) == 0 {
		return v, false
	}
	v, c.items = c.items[0], c.items[1:]
	c.notFull.Signal()
	return v, true
}

// Close marks the channel closed: writers fail from now on, but readers may
// still drain whatever was already queued.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.poisoned {
		return
	}
	c.closed = true
	c.notEmpty.Broadcast()
	c.notFull.Broadcast()
}

// Poison marks the channel poisoned: readers and writers fail/empty
// immediately, discarding anything still queued. This is the cancellation
// mechanism for fatal errors (§4.10, §5).
func (c *Channel[T]) Poison() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poisoned {
		return
	}
	c.poisoned = true
	c.items = nil
	c.notEmpty.Broadcast()
	c.notFull.Broadcast()
}

// Len reports the number of values currently queued.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// IsClosed reports whether Close (or Poison) has been called.
func (c *Channel[T]) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || c.poisoned
}

// IsPoisoned reports whether Poison has been called.
func (c *Channel[T]) IsPoisoned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poisoned
}
