// Package pipeline implements the §4.2 pipeline runner: a producer, zero or
// more transforms, and a consumer wired together over chanx.Channel stages,
// plus a driver that runs many such pipelines in parallel.
//
// Grounded on the teacher's fs.WalkBck (fs/walkbck.go): one errgroup.Go per
// stage, errgroup.WithContext to fan a cancellation signal out to every
// stage on first error, and group.Wait() to collect the first error only
// after every stage has returned — generalized here from a fixed two-stage
// (joggers + heap-merge consumer) shape to an arbitrary producer/transform
// chain/consumer pipeline, and lifted to run many pipelines side by side.
package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/q713/simbricks-sub001/chanx"
	"github.com/q713/simbricks-sub001/cmn/cos"
)

// DefaultCapacity is §4.2's recommended inter-stage channel capacity.
const DefaultCapacity = 30

// Producer is the first stage of a pipeline: it owns some external source
// (a log file, a replay stream) and pushes events onto out until done.
type Producer[T any] func(ctx context.Context, out *chanx.Channel[T]) error

// Transform reads from in and writes to out. Returning nil once in is
// drained (Pop returns ok=false) is the normal completion path.
type Transform[T any] func(ctx context.Context, in, out *chanx.Channel[T]) error

// Consumer is the terminal stage: it reads from in until drained.
type Consumer[T any] func(ctx context.Context, in *chanx.Channel[T]) error

// Pipeline describes one producer → [transforms…] → consumer chain. Stages
// are connected by channels of the given Capacity (DefaultCapacity if zero).
type Pipeline[T any] struct {
	Name       string
	Producer   Producer[T]
	Transforms []Transform[T]
	Consumer   Consumer[T]
	Capacity   int
}

// Run wires the pipeline's stages over fresh channels and runs each stage
// as an independent goroutine under a shared errgroup, implementing §4.2's
// close-on-normal-completion / poison-on-fatal-error semantics (§4.10):
//
//   - when a stage returns with no error, its output channel is Closed —
//     downstream drains whatever is already queued, then sees ok=false.
//   - when a stage returns a fatal error (cos.IsFatal), its output channel
//     is Poisoned (downstream stops immediately, discarding anything
//     queued) and its input channel is Closed (so an upstream stage blocked
//     on Push stops blocking instead of wedging the pipeline).
func (p Pipeline[T]) Run(ctx context.Context) error {
	cap := p.Capacity
	if cap <= 0 {
		cap = DefaultCapacity
	}

	stages := make([]*chanx.Channel[T], len(p.Transforms)+1)
	for i := range stages {
		stages[i] = chanx.New[T](cap)
	}

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		out := stages[0]
		err := p.Producer(gctx, out)
		if err != nil && cos.IsFatal(err) {
			out.Poison()
			return err
		}
		out.Close()
		return err
	})

	for i, t := range p.Transforms {
		i, t := i, t
		in, out := stages[i], stages[i+1]
		group.Go(func() error {
			err := t(gctx, in, out)
			if err != nil && cos.IsFatal(err) {
				out.Poison()
				in.Close()
				return err
			}
			out.Close()
			return err
		})
	}

	group.Go(func() error {
		in := stages[len(stages)-1]
		err := p.Consumer(gctx, in)
		if err != nil && cos.IsFatal(err) {
			in.Close()
			return err
		}
		return err
	})

	return group.Wait()
}

// RunAll runs every pipeline concurrently under one errgroup. Per §4.2,
// a fatal error in one pipeline does not stop the others from draining;
// errgroup.WithContext's derived context is only consulted by stages that
// choose to select on ctx.Done(), and pipelines here do not. The first
// error is returned once every pipeline has terminated.
func RunAll[T any](ctx context.Context, pipelines ...Pipeline[T]) error {
	group, gctx := errgroup.WithContext(ctx)
	for _, pl := range pipelines {
		pl := pl
		group.Go(func() error { return pl.Run(gctx) })
	}
	return group.Wait()
}
