// Package nic implements §4.8.2's NicSpanner: correlates NIC-model events
// by (id, addr) into nic_dma spans, attributes tx/msix to the last
// completed mmio-write span, and brokers the Mmio/Dma/Msix/Rx context
// handoffs with the paired host spanner.
//
// Grounded the same way package host is: a pipeline.Consumer stage that
// owns only the bookkeeping span.Span's TryAdd/TryAddNicDma rules don't
// carry themselves.
package nic

import (
	"context"

	"github.com/q713/simbricks-sub001/chanx"
	"github.com/q713/simbricks-sub001/cmn/cos"
	"github.com/q713/simbricks-sub001/cmn/nlog"
	"github.com/q713/simbricks-sub001/ctxqueue"
	"github.com/q713/simbricks-sub001/events"
	"github.com/q713/simbricks-sub001/span"
	"github.com/q713/simbricks-sub001/tracer"
	"github.com/q713/simbricks-sub001/traceenv"
)

type dmaKey struct{ id, addr uint64 }

// Spanner is one NicSpanner instance, registered as the other endpoint of
// HostQueue (the first endpoint is a host.Spanner) and, once PairNetwork
// is called, as the upstream endpoint of NetQueue (the other endpoint is
// a network.Spanner).
type Spanner struct {
	ID        int64
	Tracer    *tracer.Tracer
	HostQueue *ctxqueue.Queue
	NetQueue  *ctxqueue.Queue
	Env       *traceenv.Env
	Errs      *cos.Errs

	lastCausing *span.SpanRef
	pendingDma  map[dmaKey]span.SpanRef
}

// New builds a NicSpanner and registers it with hostQueue.
func New(id int64, tr *tracer.Tracer, hostQueue *ctxqueue.Queue, env *traceenv.Env, errs *cos.Errs) (*Spanner, error) {
	if err := hostQueue.Register(id); err != nil {
		return nil, err
	}
	return &Spanner{
		ID:         id,
		Tracer:     tr,
		HostQueue:  hostQueue,
		Env:        env,
		Errs:       errs,
		pendingDma: map[dmaKey]span.SpanRef{},
	}, nil
}

// Consume implements pipeline.Consumer[events.Event].
func (s *Spanner) Consume(ctx context.Context, in *chanx.Channel[events.Event]) error {
	for {
		e, ok := in.Pop()
		if !ok {
			return nil
		}
		if err := s.handle(e); err != nil {
			if cos.IsFatal(err) {
				return err
			}
			s.local(err)
		}
	}
}

// PairNetwork registers this spanner with netQueue, the boundary shared
// with the downstream NetworkSpanner (§4.9's second boundary pair). §4.8.2's
// NicTx→network Rx publish is optional and off by default, so registering
// here is enough for a NetworkSpanner's FromAdapter TryPoll to see an
// empty, well-defined queue rather than an unregistered one.
func (s *Spanner) PairNetwork(netQueue *ctxqueue.Queue) error {
	if err := netQueue.Register(s.ID); err != nil {
		return err
	}
	s.NetQueue = netQueue
	return nil
}

func (s *Spanner) local(err error) {
	if s.Errs != nil {
		s.Errs.Add(err)
	}
	nlog.Warningf("nic spanner: %v", err)
}

func rejectedErr(kind events.Kind, sourceID, spanSourceID uint64) error {
	if sourceID != spanSourceID {
		return cos.NewErrInvariant("nic: span adopted event %s from source %d (span belongs to source %d)",
			kind, sourceID, spanSourceID)
	}
	return cos.NewErrUnexpectedEvent(kind.String(), "rejected by pending span")
}

func (s *Spanner) handle(e events.Event) error {
	switch e.Kind {
	case events.KindNicMmioR, events.KindNicMmioW:
		return s.handleMmio(e)
	case events.KindNicDmaI:
		return s.handleDmaI(e)
	case events.KindNicDmaEx, events.KindNicDmaCR, events.KindNicDmaCW:
		return s.handleDmaContinuation(e)
	case events.KindNicTx:
		return s.handleTx(e)
	case events.KindNicRx:
		return s.handleRx(e)
	case events.KindNicMsix:
		return s.handleMsix(e)
	default:
		return cos.NewErrUnexpectedEvent(e.Kind.String(), "no handler in NicSpanner")
	}
}

func (s *Spanner) handleMmio(e events.Event) error {
	parentCtx, ok, err := s.HostQueue.Poll(s.ID)
	if err != nil {
		return err
	}
	if !ok {
		return cos.NewErrUnexpectedEvent(e.Kind.String(), "host queue closed before mmio context arrived")
	}
	if parentCtx.Expectation != ctxqueue.Mmio {
		return cos.NewErrContextMismatch("nic", ctxqueue.Mmio.String(), parentCtx.Expectation.String())
	}
	ref, err := s.Tracer.StartSpanByParentPassOnContext(parentCtx, func(r span.SpanRef) *span.Span {
		return span.NewNicMmioSpan(r, e.SourceID, e.SourceName, e)
	})
	if err != nil {
		return err
	}
	if e.Kind == events.KindNicMmioW {
		s.lastCausing = &ref
	}
	return s.Tracer.MarkDone(ref)
}

func (s *Spanner) startWithLastCausing(build func(span.SpanRef) *span.Span) span.SpanRef {
	if s.lastCausing != nil {
		if ref, err := s.Tracer.StartSpanByParent(*s.lastCausing, build); err == nil {
			return ref
		}
	}
	return s.Tracer.StartSpan(build)
}

func (s *Spanner) handleDmaI(e events.Event) error {
	p := e.Payload.(events.NicDmaI)
	ref := s.startWithLastCausing(func(r span.SpanRef) *span.Span {
		return span.NewNicDmaSpan(r, e.SourceID, e.SourceName, e)
	})
	s.pendingDma[dmaKey{p.ID, p.Addr}] = ref
	return nil
}

func dmaKeyOf(e events.Event) (dmaKey, bool) {
	switch p := e.Payload.(type) {
	case events.NicDmaEx:
		return dmaKey{p.ID, p.Addr}, true
	case events.NicDmaCR:
		return dmaKey{p.ID, p.Addr}, true
	case events.NicDmaCW:
		return dmaKey{p.ID, p.Addr}, true
	default:
		return dmaKey{}, false
	}
}

func (s *Spanner) handleDmaContinuation(e events.Event) error {
	key, ok := dmaKeyOf(e)
	if !ok {
		return cos.NewErrUnexpectedEvent(e.Kind.String(), "unrecognized nic dma payload")
	}
	ref, ok := s.pendingDma[key]
	if !ok {
		return cos.NewErrUnexpectedEvent(e.Kind.String(), "no pending nic dma for (id, addr)")
	}
	sp, ok := s.Tracer.Span(ref)
	if !ok {
		delete(s.pendingDma, key)
		return cos.NewErrUnexpectedEvent(e.Kind.String(), "pending nic dma span vanished")
	}
	switch sp.TryAddNicDma(e) {
	case span.Added:
		if e.Kind == events.KindNicDmaEx {
			if err := s.HostQueue.Push(s.ID, ctxqueue.Context{Expectation: ctxqueue.Dma, Parent: ref}); err != nil {
				return err
			}
		}
		if !sp.Pending {
			delete(s.pendingDma, key)
			return s.Tracer.MarkDone(ref)
		}
		return nil
	case span.Rejected:
		return rejectedErr(e.Kind, e.SourceID, sp.SourceID)
	default:
		delete(s.pendingDma, key)
		return cos.NewErrUnexpectedEvent(e.Kind.String(), "nic dma span already complete")
	}
}

func (s *Spanner) handleTx(e events.Event) error {
	ref := s.startWithLastCausing(func(r span.SpanRef) *span.Span {
		return span.NewEthSpan(r, e.SourceID, e.SourceName, e)
	})
	return s.Tracer.MarkDone(ref)
}

// handleRx always starts a new trace root (§4.8.2: "start a new
// tracer-root span"), then publishes an Rx context so a later host-side
// driver_rx HostCall can attach underneath it.
func (s *Spanner) handleRx(e events.Event) error {
	ref := s.Tracer.StartSpan(func(r span.SpanRef) *span.Span {
		return span.NewEthSpan(r, e.SourceID, e.SourceName, e)
	})
	if err := s.Tracer.MarkDone(ref); err != nil {
		return err
	}
	return s.HostQueue.Push(s.ID, ctxqueue.Context{Expectation: ctxqueue.Rx, Parent: ref})
}

func (s *Spanner) handleMsix(e events.Event) error {
	ref := s.startWithLastCausing(func(r span.SpanRef) *span.Span {
		return span.NewNicMsixSpan(r, e.SourceID, e.SourceName, e)
	})
	if err := s.Tracer.MarkDone(ref); err != nil {
		return err
	}
	return s.HostQueue.Push(s.ID, ctxqueue.Context{Expectation: ctxqueue.Msix, Parent: ref})
}
