package chanx_test

import (
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/q713/simbricks-sub001/chanx"
)

var _ = Describe("Channel", func() {
	It("pops in push order for a single producer (§8 property 2)", func() {
		c := chanx.New[int](chanx.Unbounded)
		for i := 0; i < 10; i++ {
			Expect(c.Push(i)).To(BeTrue())
		}
		c.Close()
		for i := 0; i < 10; i++ {
			v, ok := c.Pop()
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(i))
		}
		_, ok := c.Pop()
		Expect(ok).To(BeFalse())
	})

	It("never holds more than its capacity (§8 property 3)", func() {
		c := chanx.New[int](2)
		Expect(c.TryPush(1)).To(BeTrue())
		Expect(c.TryPush(2)).To(BeTrue())
		Expect(c.TryPush(3)).To(BeFalse())
		Expect(c.Len()).To(Equal(2))
	})

	It("drains remaining values after Close, then reports empty", func() {
		c := chanx.New[int](4)
		c.TryPush(1)
		c.TryPush(2)
		c.Close()
		Expect(c.Push(3)).To(BeFalse()) // writers fail once closed

		v, ok := c.Pop()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(1))
		v, ok = c.Pop()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(2))
		_, ok = c.Pop()
		Expect(ok).To(BeFalse())
	})

	It("discards queued values and fails both sides immediately on Poison", func() {
		c := chanx.New[int](4)
		c.TryPush(1)
		c.Poison()
		Expect(c.Push(2)).To(BeFalse())
		_, ok := c.Pop()
		Expect(ok).To(BeFalse())
		Expect(c.Len()).To(Equal(0))
	})

	It("wakes a blocked Pop when the channel closes", func() {
		c := chanx.New[int](1)
		var wg sync.WaitGroup
		wg.Add(1)
		var gotOK bool
		go func() {
			defer wg.Done()
			_, gotOK = c.Pop()
		}()
		c.Close()
		wg.Wait()
		Expect(gotOK).To(BeFalse())
	})

	It("wakes a blocked Push when the channel is poisoned", func() {
		c := chanx.New[int](1)
		c.TryPush(1) // fill it so the next Push blocks
		var wg sync.WaitGroup
		wg.Add(1)
		var gotOK bool
		go func() {
			defer wg.Done()
			gotOK = c.Push(2)
		}()
		c.Poison()
		wg.Wait()
		Expect(gotOK).To(BeFalse())
	})
})
