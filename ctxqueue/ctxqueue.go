// Package ctxqueue implements the §4.9 context queue: a bidirectional
// handoff between exactly two registered spanners, each direction backed
// by its own unbounded chanx.Channel so that asymmetric production rates
// on the two sides can never deadlock each other (§4.1's rationale for
// offering an unbounded flavor in the first place).
package ctxqueue

import (
	"sync"

	"github.com/q713/simbricks-sub001/chanx"
	"github.com/q713/simbricks-sub001/cmn/cos"
	"github.com/q713/simbricks-sub001/span"
)

// Expectation is the kind of event a spanner is promised by its peer (§3).
type Expectation uint8

const (
	Mmio Expectation = iota
	Dma
	Msix
	Rx
)

func (e Expectation) String() string {
	switch e {
	case Mmio:
		return "Mmio"
	case Dma:
		return "Dma"
	case Msix:
		return "Msix"
	default:
		return "Rx"
	}
}

// Context is the small record handed between spanners (§3): an
// expectation tag plus the parent span the receiving spanner should
// attach its new span to.
type Context struct {
	Expectation Expectation
	Parent      span.SpanRef
}

// Queue pairs exactly two spanners (A and B). A writes land on B's poll
// side and vice versa: direction A→B uses queueAtoB, B→A uses queueBtoA.
type Queue struct {
	mu        sync.Mutex
	ids       [2]int64 // -1 = unregistered slot
	queueAtoB *chanx.Channel[Context]
	queueBtoA *chanx.Channel[Context]
}

// New creates an empty, unregistered context queue.
func New() *Queue {
	return &Queue{
		ids:       [2]int64{-1, -1},
		queueAtoB: chanx.New[Context](chanx.Unbounded),
		queueBtoA: chanx.New[Context](chanx.Unbounded),
	}
}

// Register admits spannerID as one of the queue's two endpoints. Succeeds
// at most twice; a third distinct registration, or a duplicate, fails.
func (q *Queue) Register(spannerID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ids[0] == spannerID || q.ids[1] == spannerID {
		return cos.NewErrInvariant("ctxqueue: spanner %d already registered", spannerID)
	}
	switch {
	case q.ids[0] == -1:
		q.ids[0] = spannerID
	case q.ids[1] == -1:
		q.ids[1] = spannerID
	default:
		return cos.NewErrInvariant("ctxqueue: queue already has two registered spanners")
	}
	return nil
}

// side returns 0 if spannerID is endpoint A, 1 if it is endpoint B, or -1
// if it is not registered.
func (q *Queue) side(spannerID int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch spannerID {
	case q.ids[0]:
		return 0
	case q.ids[1]:
		return 1
	default:
		return -1
	}
}

// Push enqueues ctx on behalf of spannerID, into the direction running
// away from it. Rejected if spannerID is not registered, or if the queue
// has been closed.
func (q *Queue) Push(spannerID int64, ctx Context) error {
	switch q.side(spannerID) {
	case 0:
		if !q.queueAtoB.Push(ctx) {
			return cos.NewErrChannelClosed("ctxqueue")
		}
		return nil
	case 1:
		if !q.queueBtoA.Push(ctx) {
			return cos.NewErrChannelClosed("ctxqueue")
		}
		return nil
	default:
		return cos.NewErrInvariant("ctxqueue: push from unregistered spanner %d", spannerID)
	}
}

// Poll reads from the direction running toward spannerID — i.e. the
// *other* endpoint's outgoing queue. Blocks cooperatively until a value
// is available or the queue closes.
func (q *Queue) Poll(spannerID int64) (Context, bool, error) {
	switch q.side(spannerID) {
	case 0:
		ctx, ok := q.queueBtoA.Pop()
		return ctx, ok, nil
	case 1:
		ctx, ok := q.queueAtoB.Pop()
		return ctx, ok, nil
	default:
		return Context{}, false, cos.NewErrInvariant("ctxqueue: poll from unregistered spanner %d", spannerID)
	}
}

// TryPoll is the non-blocking form of Poll.
func (q *Queue) TryPoll(spannerID int64) (Context, bool, error) {
	switch q.side(spannerID) {
	case 0:
		ctx, ok := q.queueBtoA.TryPop()
		return ctx, ok, nil
	case 1:
		ctx, ok := q.queueAtoB.TryPop()
		return ctx, ok, nil
	default:
		return Context{}, false, cos.NewErrInvariant("ctxqueue: try-poll from unregistered spanner %d", spannerID)
	}
}

// Close closes both directions; queued contexts may still be drained by
// Poll, but no further Push succeeds.
func (q *Queue) Close() {
	q.queueAtoB.Close()
	q.queueBtoA.Close()
}
