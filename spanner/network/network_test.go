package network_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/q713/simbricks-sub001/chanx"
	"github.com/q713/simbricks-sub001/cmn/cos"
	"github.com/q713/simbricks-sub001/ctxqueue"
	"github.com/q713/simbricks-sub001/events"
	"github.com/q713/simbricks-sub001/span"
	"github.com/q713/simbricks-sub001/spanner/network"
	"github.com/q713/simbricks-sub001/tracer"
	"github.com/q713/simbricks-sub001/traceenv"
)

type idAlloc struct{ nextSpan, nextTrace uint64 }

func (a *idAlloc) NextSpanID() uint64 {
	a.nextSpan++
	return a.nextSpan
}
func (a *idAlloc) NextTraceID() uint64 {
	a.nextTrace++
	return a.nextTrace
}

func pushAll(ch *chanx.Channel[events.Event], evs ...events.Event) {
	for _, e := range evs {
		ch.Push(e)
	}
	ch.Close()
}

var _ = Describe("Spanner", func() {
	var env traceenv.Env

	BeforeEach(func() {
		Expect(env.Init(&traceenv.Config{})).To(Succeed())
	})

	It("chains enqueue/dequeue events for the same (node, device) into one span", func() {
		sink := &tracer.MemSink{}
		tr := tracer.New(&idAlloc{}, sink)
		q := ctxqueue.New()
		Expect(q.Register(1)).To(Succeed()) // stand-in nic endpoint

		n, err := network.New(2, tr, q, &env, &cos.Errs{})
		Expect(err).NotTo(HaveOccurred())

		enq := events.Event{Header: events.Header{SourceID: 2, Timestamp: 1}, Kind: events.KindNetworkEnqueue,
			Payload: events.NetworkEnqueue{NetworkEvent: events.NetworkEvent{
				Node: 1, Device: 2, DeviceKind: events.CosimNet, PayloadSize: 42, Boundary: events.Within,
			}}}
		deq := events.Event{Header: events.Header{SourceID: 2, Timestamp: 2}, Kind: events.KindNetworkDequeue,
			Payload: events.NetworkDequeue{NetworkEvent: events.NetworkEvent{
				Node: 1, Device: 2, DeviceKind: events.CosimNet, PayloadSize: 42, Boundary: events.ToAdapter,
			}}}

		in := chanx.New[events.Event](10)
		pushAll(in, enq, deq)

		Expect(n.Consume(context.Background(), in)).To(Succeed())
		Expect(sink.Traces).To(HaveLen(1))
		Expect(sink.Traces[0].Spans).To(HaveLen(1))
		Expect(sink.Traces[0].Spans[0].Events).To(HaveLen(2))

		rxCtx, ok, err := q.Poll(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(rxCtx.Expectation).To(Equal(ctxqueue.Rx))
	})

	It("consumes an upstream Rx context to parent a FromAdapter-boundary span", func() {
		sink := &tracer.MemSink{}
		tr := tracer.New(&idAlloc{}, sink)
		q := ctxqueue.New()
		Expect(q.Register(1)).To(Succeed())

		n, err := network.New(2, tr, q, &env, &cos.Errs{})
		Expect(err).NotTo(HaveOccurred())

		upstream := tr.StartSpan(func(r span.SpanRef) *span.Span {
			return span.NewGenericSpan(r, 9, nil, events.Event{
				Header: events.Header{SourceID: 9}, Kind: events.KindSimSendSync, Payload: events.SimSendSync{},
			})
		})
		Expect(q.Push(1, ctxqueue.Context{Expectation: ctxqueue.Rx, Parent: upstream})).To(Succeed())

		drop := events.Event{Header: events.Header{SourceID: 2, Timestamp: 1}, Kind: events.KindNetworkDrop,
			Payload: events.NetworkDrop{NetworkEvent: events.NetworkEvent{
				Node: 4, Device: 1, DeviceKind: events.SimpleNet, PayloadSize: 64, Boundary: events.FromAdapter,
			}}}
		in := chanx.New[events.Event](10)
		pushAll(in, drop)

		Expect(n.Consume(context.Background(), in)).To(Succeed())
		Expect(sink.Traces).To(HaveLen(1))
		Expect(sink.Traces[0].Spans).To(HaveLen(2)) // upstream generic span + the new device span
	})
})
