package ctxqueue_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/q713/simbricks-sub001/cmn/cos"
	"github.com/q713/simbricks-sub001/ctxqueue"
	"github.com/q713/simbricks-sub001/span"
)

var _ = Describe("Queue", func() {
	It("pairs two spanners in opposite directions and rejects a third (scenario E)", func() {
		q := ctxqueue.New()
		Expect(q.Register(0)).To(Succeed())
		Expect(q.Register(1)).To(Succeed())
		Expect(q.Register(2)).To(HaveOccurred())

		parentX := span.SpanRef{ID: 10}
		parentY := span.SpanRef{ID: 20}
		Expect(q.Push(0, ctxqueue.Context{Expectation: ctxqueue.Mmio, Parent: parentX})).To(Succeed())
		Expect(q.Push(1, ctxqueue.Context{Expectation: ctxqueue.Dma, Parent: parentY})).To(Succeed())

		got, ok, err := q.Poll(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal(ctxqueue.Context{Expectation: ctxqueue.Mmio, Parent: parentX}))

		got, ok, err = q.Poll(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal(ctxqueue.Context{Expectation: ctxqueue.Dma, Parent: parentY}))
	})

	It("rejects push/poll from an unregistered spanner", func() {
		q := ctxqueue.New()
		Expect(q.Register(0)).To(Succeed())
		err := q.Push(99, ctxqueue.Context{})
		Expect(err).To(HaveOccurred())
		Expect(cos.IsErrInvariant(err)).To(BeTrue())

		_, ok, err := q.Poll(99)
		Expect(ok).To(BeFalse())
		Expect(cos.IsErrInvariant(err)).To(BeTrue())
	})

	It("drains queued contexts after Close, then reports empty", func() {
		q := ctxqueue.New()
		Expect(q.Register(0)).To(Succeed())
		Expect(q.Register(1)).To(Succeed())
		Expect(q.Push(0, ctxqueue.Context{Expectation: ctxqueue.Rx})).To(Succeed())
		q.Close()
		_, ok, _ := q.Poll(1)
		Expect(ok).To(BeTrue())
		_, ok, _ = q.Poll(1)
		Expect(ok).To(BeFalse())
	})
})
