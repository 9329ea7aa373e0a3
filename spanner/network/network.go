// Package network implements §4.8.3's NetworkSpanner: folds a stream of
// Network{Enqueue,Dequeue,Drop} events into per-(node, device) spans,
// chaining them into the same device's causal history and, at the two
// network/host boundaries, consuming and publishing Rx contexts with the
// paired NIC spanner.
package network

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

// Spanner is one NetworkSpanner instance, registered as one endpoint of
// NicQueue (the other endpoint is the upstream nic.Spanner).
type Spanner struct {
	ID     int64
	Tracer *tracer.Tracer
	// NicQueue is the paired queue to the upstream nic spanner: FromAdapter
	// events consume an Rx context from it; ToAdapter events publish one.
	NicQueue *ctxqueue.Queue
	Env      *traceenv.Env
	Errs     *cos.Errs

	currentDeviceSpan *span.SpanRef
}

// New builds a NetworkSpanner and registers it with nicQueue.
func New(id int64, tr *tracer.Tracer, nicQueue *ctxqueue.Queue, env *traceenv.Env, errs *cos.Errs) (*Spanner, error) {
	if err := nicQueue.Register(id); err != nil {
		return nil, err
	}
	return &Spanner{ID: id, Tracer: tr, NicQueue: nicQueue, Env: env, Errs: errs}, nil
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
	nlog.Warningf("network spanner: %v", err)
}

func networkEventOf(e events.Event) (events.NetworkEvent, bool) {
	switch p := e.Payload.(type) {
	case events.NetworkEnqueue:
		return p.NetworkEvent, true
	case events.NetworkDequeue:
		return p.NetworkEvent, true
	case events.NetworkDrop:
		return p.NetworkEvent, true
	default:
		return events.NetworkEvent{}, false
	}
}

func (s *Spanner) handle(e events.Event) error {
	ne, ok := networkEventOf(e)
	if !ok {
		return cos.NewErrUnexpectedEvent(e.Kind.String(), "no handler in NetworkSpanner")
	}

	if s.currentDeviceSpan != nil {
		if sp, ok := s.Tracer.Span(*s.currentDeviceSpan); ok {
			switch sp.TryAdd(e) {
			case span.Added:
				if !sp.Pending {
					ref := *s.currentDeviceSpan
					if err := s.Tracer.MarkDone(ref); err != nil {
						return err
					}
					return s.maybePublishRx(ne, ref)
				}
				return nil
			case span.Full:
				// Belongs to a different (node, device); fall through and
				// open a fresh span chained off the one we have.
			case span.Rejected:
				return cos.NewErrUnexpectedEvent(e.Kind.String(), "network span rejected event")
			}
		} else {
			s.currentDeviceSpan = nil
		}
	}

	var ref span.SpanRef
	var err error
	if ne.Boundary == events.FromAdapter {
		rxCtx, ok, perr := s.NicQueue.TryPoll(s.ID)
		if perr != nil {
			return perr
		}
		if ok {
			if rxCtx.Expectation != ctxqueue.Rx {
				return cos.NewErrContextMismatch("network", ctxqueue.Rx.String(), rxCtx.Expectation.String())
			}
			ref, err = s.Tracer.StartSpanByParentPassOnContext(rxCtx, func(r span.SpanRef) *span.Span {
				return span.NewNetDeviceSpan(r, e.SourceID, e.SourceName, e)
			})
		} else {
			ref = s.Tracer.StartSpan(func(r span.SpanRef) *span.Span {
				return span.NewNetDeviceSpan(r, e.SourceID, e.SourceName, e)
			})
		}
	} else if s.currentDeviceSpan != nil {
		ref, err = s.Tracer.StartSpanByParent(*s.currentDeviceSpan, func(r span.SpanRef) *span.Span {
			return span.NewNetDeviceSpan(r, e.SourceID, e.SourceName, e)
		})
	} else {
		ref = s.Tracer.StartSpan(func(r span.SpanRef) *span.Span {
			return span.NewNetDeviceSpan(r, e.SourceID, e.SourceName, e)
		})
	}
	if err != nil {
		return err
	}

	if sp, ok := s.Tracer.Span(ref); ok && sp.Pending {
		s.currentDeviceSpan = &ref
	} else {
		s.currentDeviceSpan = &ref
		if err := s.Tracer.MarkDone(ref); err != nil {
			return err
		}
		return s.maybePublishRx(ne, ref)
	}
	return nil
}

// maybePublishRx implements §4.8.3's last bullet: a completed event at the
// ToAdapter boundary publishes an Rx context on NicQueue, for the spanner
// registered at its other endpoint.
func (s *Spanner) maybePublishRx(ne events.NetworkEvent, ref span.SpanRef) error {
	if ne.Boundary != events.ToAdapter {
		return nil
	}
	return s.NicQueue.Push(s.ID, ctxqueue.Context{Expectation: ctxqueue.Rx, Parent: ref})
}
