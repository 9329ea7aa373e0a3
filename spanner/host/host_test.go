package host_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/q713/simbricks-sub001/chanx"
	"github.com/q713/simbricks-sub001/cmn/cos"
	"github.com/q713/simbricks-sub001/ctxqueue"
	"github.com/q713/simbricks-sub001/events"
	"github.com/q713/simbricks-sub001/spanner/host"
	"github.com/q713/simbricks-sub001/tracer"
	"github.com/q713/simbricks-sub001/traceenv"
)

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

	It("closes a HostMmioW span and publishes an Mmio context to the nic side", func() {
		sink := &tracer.MemSink{}
		tr := tracer.New(&idAlloc{}, sink)
		q := ctxqueue.New()

		h, err := host.New(1, tr, q, &env, &cos.Errs{})
		Expect(err).NotTo(HaveOccurred())
		Expect(q.Register(2)).To(Succeed()) // stand-in nic endpoint

		in := chanx.New[events.Event](10)
		w := events.Event{Header: events.Header{SourceID: 5, Timestamp: 1}, Kind: events.KindHostMmioW,
			Payload: events.HostMmioW{ID: 7, Addr: 0xc0080300, Size: 4, Offset: 0x80300}}
		cw := events.Event{Header: events.Header{SourceID: 5, Timestamp: 2}, Kind: events.KindHostMmioCW,
			Payload: events.HostMmioCW{ID: 7}}
		pushAll(in, w, cw)

		Expect(h.Consume(context.Background(), in)).To(Succeed())
		Expect(sink.Traces).To(HaveLen(1))

		ctx, ok, err := q.Poll(2)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(ctx.Expectation).To(Equal(ctxqueue.Mmio))
	})

	It("opens a new HostCall span once the prior one hits a fresh syscall_entry", func() {
		sink := &tracer.MemSink{}
		tr := tracer.New(&idAlloc{}, sink)
		q := ctxqueue.New()
		env2 := traceenv.Env{}
		cfg := &traceenv.Config{}
		Expect(env2.Init(cfg)).To(Succeed())
		env2.Classifiers().AddSysEntry(env2.Intern("__sys_recvmsg"))

		h, err := host.New(1, tr, q, &env2, &cos.Errs{})
		Expect(err).NotTo(HaveOccurred())
		Expect(q.Register(2)).To(Succeed())

		in := chanx.New[events.Event](10)
		first := events.Event{Header: events.Header{SourceID: 5, Timestamp: 1}, Kind: events.KindHostCall,
			Payload: events.HostCall{PC: 1, Func: env2.Intern("__sys_recvmsg")}}
		second := events.Event{Header: events.Header{SourceID: 5, Timestamp: 2}, Kind: events.KindHostCall,
			Payload: events.HostCall{PC: 2, Func: env2.Intern("__sys_recvmsg")}}
		pushAll(in, first, second)

		Expect(h.Consume(context.Background(), in)).To(Succeed())
		// first call span never marked done explicitly by ClearInt/etc, but
		// closing it on the fresh syscall_entry should sink it as its own
		// trace immediately (root span, no pending children).
		Expect(sink.Traces).To(HaveLen(1))
		Expect(sink.Traces[0].Spans).To(HaveLen(1))
	})
})

type idAlloc struct{ nextSpan, nextTrace uint64 }

func (a *idAlloc) NextSpanID() uint64 {
	a.nextSpan++
	return a.nextSpan
}
func (a *idAlloc) NextTraceID() uint64 {
	a.nextTrace++
	return a.nextTrace
}
