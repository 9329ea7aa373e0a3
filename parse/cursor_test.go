package parse_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/q713/simbricks-sub001/parse"
)

var _ = Describe("Cursor", func() {
	It("trims leading whitespace and consumes a prefix", func() {
		c := parse.NewCursor("  main_time = 123: nicbm: read(...)")
		c.TrimLeft()
		Expect(c.ConsumePrefix("main_time")).To(BeTrue())
	})

	It("parses hex and decimal unsigned integers", func() {
		c := parse.NewCursor("0xc0080300,rest")
		Expect(c.ConsumePrefix("0x")).To(BeTrue())
		v, ok := c.ParseUint(16)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint64(0xc0080300)))

		c2 := parse.NewCursor("1945871772000 rest")
		v2, ok2 := c2.ParseUint(10)
		Expect(ok2).To(BeTrue())
		Expect(v2).To(Equal(uint64(1945871772000)))
	})

	It("parses a signed integer", func() {
		c := parse.NewCursor("-42 tail")
		v, ok := c.ParseInt()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(int64(-42)))
	})

	It("extracts up to a marker and consumes it", func() {
		c := parse.NewCursor("length/type=0x806, source=cc:18:61:cf:61:4f)")
		head, ok := c.ExpectUntil("source=")
		Expect(ok).To(BeTrue())
		Expect(head).To(Equal("length/type=0x806, "))
		mac, ok := c.ParseMAC()
		Expect(ok).To(BeTrue())
		Expect(mac).To(Equal([6]byte{0xcc, 0x18, 0x61, 0xcf, 0x61, 0x4f}))
	})

	It("parses a dotted-quad IPv4 address", func() {
		c := parse.NewCursor("10.0.0.1 > 10.0.0.2")
		ip, ok := c.ParseIPv4()
		Expect(ok).To(BeTrue())
		Expect(ip).To(Equal(uint32(10)<<24 | 1))
	})

	It("fails without advancing on malformed input", func() {
		c := parse.NewCursor("not-a-number")
		_, ok := c.ParseUint(10)
		Expect(ok).To(BeFalse())
		Expect(c.Remaining()).To(Equal("not-a-number"))
	})
})
