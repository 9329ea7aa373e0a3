package ns3_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/q713/simbricks-sub001/chanx"
	"github.com/q713/simbricks-sub001/cmn/cos"
	"github.com/q713/simbricks-sub001/events"
	"github.com/q713/simbricks-sub001/parse/ns3"
	"github.com/q713/simbricks-sub001/traceenv"
)

type sliceReader struct {
	lines []string
	i     int
}

func (r *sliceReader) NextLine() (string, bool, error) {
	if r.i >= len(r.lines) {
		return "", false, nil
	}
	l := r.lines[r.i]
	r.i++
	return l, true, nil
}

func (r *sliceReader) Close() error { return nil }

var _ = Describe("Parser", func() {
	var env traceenv.Env

	BeforeEach(func() {
		Expect(env.Init(&traceenv.Config{})).To(Succeed())
	})

	It("parses scenario F: an ARP-enqueue event", func() {
		p := ns3.New("net0", 3, &env, &cos.Errs{})
		line := "+ 1945871772000 /NodeList/1/DeviceList/2/$ns3::CosimNetDevice/... " +
			"EthernetHeader(length/type=0x806, source=cc:18:61:cf:61:4f, destination=ff:ff:ff:ff:ff:ff) Payload (size=42)"

		out := chanx.New[events.Event](10)
		err := p.Producer(&sliceReader{lines: []string{line}})(context.Background(), out)
		Expect(err).NotTo(HaveOccurred())
		out.Close()
		ev, ok := out.Pop()
		Expect(ok).To(BeTrue())

		Expect(ev.Kind).To(Equal(events.KindNetworkEnqueue))
		Expect(ev.Timestamp).To(Equal(uint64(1945871772000)))
		enq := ev.Payload.(events.NetworkEnqueue)
		Expect(enq.Node).To(Equal(uint64(1)))
		Expect(enq.Device).To(Equal(uint64(2)))
		Expect(enq.DeviceKind).To(Equal(events.CosimNet))
		Expect(enq.PayloadSize).To(Equal(uint64(42)))
		Expect(enq.Boundary).To(Equal(events.FromAdapter))
		Expect(enq.IPv4Header).To(BeNil())
		Expect(enq.EthHeader).NotTo(BeNil())
		Expect(enq.EthHeader.LengthType).To(Equal(uint16(0x806)))
		Expect(enq.EthHeader.SrcMAC).To(Equal([6]byte{0xcc, 0x18, 0x61, 0xcf, 0x61, 0x4f}))
		Expect(enq.EthHeader.DstMAC).To(Equal([6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}))
	})

	It("parses a dequeue line with an IPv4 header", func() {
		p := ns3.New("net0", 3, &env, &cos.Errs{})
		line := "- 100 /NodeList/0/DeviceList/1/$ns3::SimpleNetDevice/... " +
			"Ipv4Header(length: 64 10.0.0.1 > 10.0.0.2) Payload (size=64)"

		out := chanx.New[events.Event](10)
		err := p.Producer(&sliceReader{lines: []string{line}})(context.Background(), out)
		Expect(err).NotTo(HaveOccurred())
		out.Close()
		ev, ok := out.Pop()
		Expect(ok).To(BeTrue())
		Expect(ev.Kind).To(Equal(events.KindNetworkDequeue))
		deq := ev.Payload.(events.NetworkDequeue)
		Expect(deq.DeviceKind).To(Equal(events.SimpleNet))
		Expect(deq.Boundary).To(Equal(events.ToAdapter))
		Expect(deq.IPv4Header).NotTo(BeNil())
		Expect(deq.IPv4Header.SrcIP).To(Equal(uint32(10)<<24 | 1))
	})

	It("skips a malformed line with a recorded diagnostic", func() {
		errs := &cos.Errs{}
		p := ns3.New("net0", 3, &env, errs)
		out := chanx.New[events.Event](10)
		err := p.Producer(&sliceReader{lines: []string{"not a network line"}})(context.Background(), out)
		Expect(err).NotTo(HaveOccurred())
		out.Close()
		_, ok := out.Pop()
		Expect(ok).To(BeFalse())
		Expect(errs.Cnt()).To(Equal(1))
	})
})
