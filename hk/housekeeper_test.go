package hk_test

import (
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/q713/simbricks-sub001/hk"
)

var _ = Describe("HK", func() {
	It("fires a registered callback repeatedly at roughly its interval", func() {
		var n int32
		hk.Reg("counter", 20*time.Millisecond, func() time.Duration {
			atomic.AddInt32(&n, 1)
			return 0
		})
		defer hk.Unreg("counter")

		Eventually(func() int32 { return atomic.LoadInt32(&n) }, time.Second, hk.Tick).Should(BeNumerically(">=", 3))
	})

	It("stops firing once unregistered", func() {
		var n int32
		hk.Reg("stoppable", 10*time.Millisecond, func() time.Duration {
			atomic.AddInt32(&n, 1)
			return 0
		})
		Eventually(func() int32 { return atomic.LoadInt32(&n) }, time.Second, hk.Tick).Should(BeNumerically(">=", 1))
		hk.Unreg("stoppable")
		seen := atomic.LoadInt32(&n)
		Consistently(func() int32 { return atomic.LoadInt32(&n) }, 100*time.Millisecond, hk.Tick).Should(Equal(seen))
	})
})
