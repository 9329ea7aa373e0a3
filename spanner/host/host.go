// Package host implements §4.8.1's HostSpanner: the per-event dispatch
// table that turns a stream of Host* events into call/mmio/dma/int spans,
// publishing and consuming context-queue handoffs with the paired NIC
// spanner along the way.
//
// Grounded on the same consumer-stage shape the teacher gives fs.WalkBck's
// merge consumer (pipeline.Consumer[T] = func(ctx, in) error) and on
// package span's tagged-variant TryAdd for the actual closure rules; this
// package owns only the bookkeeping (which span is currently pending,
// which context queue to poll/push) that span.Span itself has no opinion
// about.
package host

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

// Spanner is one HostSpanner instance, registered as one endpoint of
// NicQueue (the other endpoint is the paired nic.Spanner).
type Spanner struct {
	ID       int64
	Tracer   *tracer.Tracer
	NicQueue *ctxqueue.Queue
	Env      *traceenv.Env
	Errs     *cos.Errs

	classifier            *span.CallClassifier
	isPciMsixDescAddr     func(events.Event) bool
	isDriverRx            func(events.Event) bool
	pciMsixDescAddrBefore bool

	pendingCall *span.SpanRef
	pendingInt  *span.SpanRef
	pendingMmio *span.SpanRef
	pendingDma  map[uint64]span.SpanRef
}

// New builds a HostSpanner and registers it with nicQueue.
func New(id int64, tr *tracer.Tracer, nicQueue *ctxqueue.Queue, env *traceenv.Env, errs *cos.Errs) (*Spanner, error) {
	if err := nicQueue.Register(id); err != nil {
		return nil, err
	}
	return &Spanner{
		ID:                id,
		Tracer:            tr,
		NicQueue:          nicQueue,
		Env:               env,
		Errs:              errs,
		classifier:        env.Classifiers().ToSpanClassifier(),
		isPciMsixDescAddr: env.Classifiers().IsPciMsixDescAddr,
		isDriverRx:        env.Classifiers().IsDriverRx,
		pendingDma:        map[uint64]span.SpanRef{},
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

func (s *Spanner) local(err error) {
	if s.Errs != nil {
		s.Errs.Add(err)
	}
	nlog.Warningf("host spanner: %v", err)
}

// rejectedErr classifies a span.Rejected outcome per §4.10: a source-id
// mismatch is the invariant violation §4.10 calls out by name (fatal);
// anything else is an ordinary unexpected-event local error.
func rejectedErr(kind events.Kind, sourceID, spanSourceID uint64) error {
	if sourceID != spanSourceID {
		return cos.NewErrInvariant("host: span adopted event %s from source %d (span belongs to source %d)",
			kind, sourceID, spanSourceID)
	}
	return cos.NewErrUnexpectedEvent(kind.String(), "rejected by pending span")
}

func (s *Spanner) handle(e events.Event) error {
	switch {
	case e.Kind == events.KindHostCall:
		return s.handleCall(e)
	case e.Kind.MmioRelated():
		return s.handleMmio(e)
	case e.Kind.DmaRelated():
		return s.handleDma(e)
	case e.Kind == events.KindHostMsiX:
		return s.handleMsix(e)
	case e.Kind == events.KindHostPostInt || e.Kind == events.KindHostClearInt:
		return s.handleInt(e)
	default:
		return cos.NewErrUnexpectedEvent(e.Kind.String(), "no handler in HostSpanner")
	}
}

func (s *Spanner) handleCall(e events.Event) error {
	if s.pendingCall != nil {
		sp, ok := s.Tracer.Span(*s.pendingCall)
		if !ok {
			s.pendingCall = nil
		} else {
			switch sp.TryAdd(e) {
			case span.Added:
				s.pciMsixDescAddrBefore = s.isPciMsixDescAddr(e)
				return nil
			case span.Full:
				if err := s.Tracer.MarkDone(*s.pendingCall); err != nil {
					return err
				}
				s.pendingCall = nil
			case span.Rejected:
				return rejectedErr(e.Kind, e.SourceID, sp.SourceID)
			}
		}
	}
	build := func(r span.SpanRef) *span.Span {
		return span.NewCallSpan(r, e.SourceID, e.SourceName, e, s.classifier)
	}

	// A fresh driver_rx call may be the continuation of a NicRx the nic
	// spanner already published (§4.8.2); attach underneath it if so.
	if s.isDriverRx(e) {
		if rxCtx, ok, _ := s.NicQueue.TryPoll(s.ID); ok {
			if rxCtx.Expectation != ctxqueue.Rx {
				return cos.NewErrContextMismatch("host", ctxqueue.Rx.String(), rxCtx.Expectation.String())
			}
			ref, err := s.Tracer.StartSpanByParentPassOnContext(rxCtx, build)
			if err != nil {
				return err
			}
			s.pendingCall = &ref
			s.pciMsixDescAddrBefore = s.isPciMsixDescAddr(e)
			return nil
		}
	}

	ref := s.Tracer.StartSpan(build)
	s.pendingCall = &ref
	s.pciMsixDescAddrBefore = s.isPciMsixDescAddr(e)
	return nil
}

func (s *Spanner) startChildOrRoot(e events.Event, build func(span.SpanRef) *span.Span) span.SpanRef {
	if s.pendingCall != nil {
		ref, err := s.Tracer.StartSpanByParent(*s.pendingCall, build)
		if err == nil {
			return ref
		}
		// Parent vanished underneath us (already sunk); fall back to root.
	}
	return s.Tracer.StartSpan(build)
}

func (s *Spanner) handleMmio(e events.Event) error {
	if e.Kind != events.KindHostMmioR && e.Kind != events.KindHostMmioW {
		if s.pendingMmio == nil {
			return cos.NewErrUnexpectedEvent(e.Kind.String(), "no pending host mmio span")
		}
		return s.feedMmio(*s.pendingMmio, e)
	}

	if s.pendingMmio != nil {
		if sp, ok := s.Tracer.Span(*s.pendingMmio); ok {
			switch sp.TryAdd(e) {
			case span.Added:
				return s.finishMmioIfDone(*s.pendingMmio, sp)
			case span.Rejected:
				return rejectedErr(e.Kind, e.SourceID, sp.SourceID)
			case span.Full:
				if err := s.Tracer.MarkDone(*s.pendingMmio); err != nil {
					return err
				}
			}
		}
		s.pendingMmio = nil
	}

	pciMsixBefore := s.pciMsixDescAddrBefore
	ref := s.startChildOrRoot(e, func(r span.SpanRef) *span.Span {
		return span.NewMmioSpan(r, e.SourceID, e.SourceName, e, pciMsixBefore)
	})
	s.pendingMmio = &ref
	if sp, ok := s.Tracer.Span(ref); ok && !sp.Pending {
		return s.finishMmioIfDone(ref, sp)
	}
	return nil
}

func (s *Spanner) feedMmio(ref span.SpanRef, e events.Event) error {
	sp, ok := s.Tracer.Span(ref)
	if !ok {
		return cos.NewErrUnexpectedEvent(e.Kind.String(), "pending host mmio span vanished")
	}
	switch sp.TryAdd(e) {
	case span.Added:
		return s.finishMmioIfDone(ref, sp)
	case span.Rejected:
		return rejectedErr(e.Kind, e.SourceID, sp.SourceID)
	case span.Full:
		if err := s.Tracer.MarkDone(ref); err != nil {
			return err
		}
		s.pendingMmio = nil
		return cos.NewErrUnexpectedEvent(e.Kind.String(), "host mmio span already complete")
	}
	return nil
}

func (s *Spanner) finishMmioIfDone(ref span.SpanRef, sp *span.Span) error {
	if sp.Pending {
		return nil
	}
	if err := s.NicQueue.Push(s.ID, ctxqueue.Context{Expectation: ctxqueue.Mmio, Parent: ref}); err != nil {
		return err
	}
	if err := s.Tracer.MarkDone(ref); err != nil {
		return err
	}
	s.pendingMmio = nil
	return nil
}

func (s *Spanner) handleDma(e events.Event) error {
	switch e.Kind {
	case events.KindHostDmaR, events.KindHostDmaW:
		var id uint64
		if e.Kind == events.KindHostDmaR {
			id = e.Payload.(events.HostDmaR).ID
		} else {
			id = e.Payload.(events.HostDmaW).ID
		}
		parentCtx, ok, _ := s.NicQueue.TryPoll(s.ID)
		var ref span.SpanRef
		build := func(r span.SpanRef) *span.Span { return span.NewDmaSpan(r, e.SourceID, e.SourceName, e) }
		if ok {
			if parentCtx.Expectation != ctxqueue.Dma {
				return cos.NewErrContextMismatch("host", ctxqueue.Dma.String(), parentCtx.Expectation.String())
			}
			var err error
			ref, err = s.Tracer.StartSpanByParentPassOnContext(parentCtx, build)
			if err != nil {
				return err
			}
		} else {
			ref = s.startChildOrRoot(e, build)
		}
		s.pendingDma[id] = ref
		return nil

	case events.KindHostDmaC:
		id := e.Payload.(events.HostDmaC).ID
		ref, ok := s.pendingDma[id]
		if !ok {
			return cos.NewErrUnexpectedEvent(e.Kind.String(), "no pending host dma for id")
		}
		sp, ok := s.Tracer.Span(ref)
		if !ok {
			delete(s.pendingDma, id)
			return cos.NewErrUnexpectedEvent(e.Kind.String(), "pending host dma span vanished")
		}
		switch sp.TryAdd(e) {
		case span.Added:
			if !sp.Pending {
				delete(s.pendingDma, id)
				return s.Tracer.MarkDone(ref)
			}
			return nil
		case span.Rejected:
			return rejectedErr(e.Kind, e.SourceID, sp.SourceID)
		default:
			delete(s.pendingDma, id)
			return cos.NewErrUnexpectedEvent(e.Kind.String(), "host dma span already complete")
		}
	default:
		return cos.NewErrUnexpectedEvent(e.Kind.String(), "unhandled dma-related kind")
	}
}

func (s *Spanner) handleMsix(e events.Event) error {
	parentCtx, ok, err := s.NicQueue.Poll(s.ID)
	if err != nil {
		return err
	}
	if !ok {
		return cos.NewErrUnexpectedEvent(e.Kind.String(), "nic queue closed before msix context arrived")
	}
	if parentCtx.Expectation != ctxqueue.Msix {
		return cos.NewErrContextMismatch("host", ctxqueue.Msix.String(), parentCtx.Expectation.String())
	}
	ref, err := s.Tracer.StartSpanByParentPassOnContext(parentCtx, func(r span.SpanRef) *span.Span {
		return span.NewMsixSpan(r, e.SourceID, e.SourceName, e)
	})
	if err != nil {
		return err
	}
	return s.Tracer.MarkDone(ref)
}

func (s *Spanner) handleInt(e events.Event) error {
	switch e.Kind {
	case events.KindHostPostInt:
		ref := s.startChildOrRoot(e, func(r span.SpanRef) *span.Span {
			return span.NewIntSpan(r, e.SourceID, e.SourceName, e)
		})
		s.pendingInt = &ref
		return nil
	case events.KindHostClearInt:
		if s.pendingInt == nil {
			return cos.NewErrUnexpectedEvent(e.Kind.String(), "no pending host int span")
		}
		sp, ok := s.Tracer.Span(*s.pendingInt)
		if !ok {
			s.pendingInt = nil
			return cos.NewErrUnexpectedEvent(e.Kind.String(), "pending host int span vanished")
		}
		switch sp.TryAdd(e) {
		case span.Added:
			if !sp.Pending {
				ref := *s.pendingInt
				s.pendingInt = nil
				return s.Tracer.MarkDone(ref)
			}
			return nil
		case span.Rejected:
			return rejectedErr(e.Kind, e.SourceID, sp.SourceID)
		default:
			s.pendingInt = nil
			return cos.NewErrUnexpectedEvent(e.Kind.String(), "host int span already complete")
		}
	default:
		return cos.NewErrUnexpectedEvent(e.Kind.String(), "unhandled int kind")
	}
}
