package nic_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/q713/simbricks-sub001/chanx"
	"github.com/q713/simbricks-sub001/cmn/cos"
	"github.com/q713/simbricks-sub001/ctxqueue"
	"github.com/q713/simbricks-sub001/events"
	"github.com/q713/simbricks-sub001/span"
	"github.com/q713/simbricks-sub001/spanner/nic"
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

	It("consumes a host-published Mmio context and sinks a one-event nic mmio span", func() {
		sink := &tracer.MemSink{}
		tr := tracer.New(&idAlloc{}, sink)
		q := ctxqueue.New()
		Expect(q.Register(1)).To(Succeed()) // stand-in host endpoint

		n, err := nic.New(2, tr, q, &env, &cos.Errs{})
		Expect(err).NotTo(HaveOccurred())

		parentRef := tr.StartSpan(func(r span.SpanRef) *span.Span {
			return span.NewGenericSpan(r, 5, nil, events.Event{
				Header: events.Header{SourceID: 5}, Kind: events.KindSimSendSync, Payload: events.SimSendSync{},
			})
		})
		Expect(q.Push(1, ctxqueue.Context{Expectation: ctxqueue.Mmio, Parent: parentRef})).To(Succeed())

		in := chanx.New[events.Event](10)
		w := events.Event{Header: events.Header{SourceID: 2, Timestamp: 1}, Kind: events.KindNicMmioW,
			Payload: events.NicMmioW{Off: 0xc, Len: 4, Val: 1}}
		pushAll(in, w)

		Expect(n.Consume(context.Background(), in)).To(Succeed())
		Expect(sink.Traces).To(HaveLen(1))
		Expect(sink.Traces[0].Spans).To(HaveLen(2)) // the generic parent + the nic mmio span
	})

	It("correlates a DmaI/Ex/CR run by (id, addr) and sinks it", func() {
		sink := &tracer.MemSink{}
		tr := tracer.New(&idAlloc{}, sink)
		q := ctxqueue.New()
		Expect(q.Register(1)).To(Succeed())

		n, err := nic.New(2, tr, q, &env, &cos.Errs{})
		Expect(err).NotTo(HaveOccurred())

		in := chanx.New[events.Event](10)
		i := events.Event{Header: events.Header{SourceID: 2, Timestamp: 1}, Kind: events.KindNicDmaI,
			Payload: events.NicDmaI{ID: 3, Addr: 0xdead, Len: 8}}
		ex := events.Event{Header: events.Header{SourceID: 2, Timestamp: 2}, Kind: events.KindNicDmaEx,
			Payload: events.NicDmaEx{ID: 3, Addr: 0xdead, Len: 8}}
		cr := events.Event{Header: events.Header{SourceID: 2, Timestamp: 3}, Kind: events.KindNicDmaCR,
			Payload: events.NicDmaCR{ID: 3, Addr: 0xdead, Len: 8}}
		pushAll(in, i, ex, cr)

		Expect(n.Consume(context.Background(), in)).To(Succeed())
		Expect(sink.Traces).To(HaveLen(1))

		dmaCtx, ok, err := q.Poll(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(dmaCtx.Expectation).To(Equal(ctxqueue.Dma))
	})
})
