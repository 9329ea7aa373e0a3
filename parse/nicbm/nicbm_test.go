package nicbm_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/q713/simbricks-sub001/chanx"
	"github.com/q713/simbricks-sub001/cmn/cos"
	"github.com/q713/simbricks-sub001/events"
	"github.com/q713/simbricks-sub001/parse/nicbm"
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

func drain(p *nicbm.Parser, lines []string) ([]events.Event, error) {
	out := chanx.New[events.Event](10)
	err := p.Producer(&sliceReader{lines: lines})(context.Background(), out)
	out.Close()
	var got []events.Event
	for {
		e, ok := out.Pop()
		if !ok {
			break
		}
		got = append(got, e)
	}
	return got, err
}

var _ = Describe("Parser", func() {
	var env traceenv.Env

	BeforeEach(func() {
		Expect(env.Init(&traceenv.Config{})).To(Succeed())
	})

	It("consumes the mac_addr/sync sidecar lines before any events", func() {
		p := nicbm.New("nic0", 2, &env, &cos.Errs{})
		lines := []string{
			"mac_addr=0xaabbccddeeff",
			"sync_pci=1 sync_eth=0",
			"main_time = 10: nicbm: set intx interrupt 0xc0080300",
		}
		got, err := drain(p, lines)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.MacAddr).To(Equal(uint64(0xaabbccddeeff)))
		Expect(p.SyncPci).To(BeTrue())
		Expect(p.SyncEth).To(BeFalse())
		Expect(got).To(HaveLen(1))
		Expect(got[0].Kind).To(Equal(events.KindSetIX))
		Expect(got[0].Payload.(events.SetIX).Intr).To(Equal(uint64(0xc0080300)))
	})

	It("parses scenario B: a NIC DMA round trip", func() {
		p := nicbm.New("nic0", 2, &env, &cos.Errs{})
		lines := []string{
			"mac_addr=0x1",
			"sync_pci=0 sync_eth=0",
			"main_time = 1: nicbm: issuing dma id=0x3 addr=0xdead len=8",
			"main_time = 2: nicbm: executing dma id=0x3 addr=0xdead len=8",
			"main_time = 3: nicbm: completed dma read id=0x3 addr=0xdead len=8",
		}
		got, err := drain(p, lines)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(3))
		Expect(got[0].Kind).To(Equal(events.KindNicDmaI))
		Expect(got[1].Kind).To(Equal(events.KindNicDmaEx))
		Expect(got[2].Kind).To(Equal(events.KindNicDmaCR))
		cr := got[2].Payload.(events.NicDmaCR)
		Expect(cr.ID).To(Equal(uint64(3)))
		Expect(cr.Addr).To(Equal(uint64(0xdead)))
	})

	It("parses mmio write, eth rx, and msix lines", func() {
		p := nicbm.New("nic0", 2, &env, &cos.Errs{})
		lines := []string{
			"mac_addr=0x1",
			"sync_pci=0 sync_eth=0",
			"main_time = 1: nicbm: write(off=0xc, len=4, val=0x1, posted=0)",
			"main_time = 2: nicbm: eth rx port=0 len=98",
			"main_time = 3: nicbm: issue MSI-X interrupt vec=5",
		}
		got, err := drain(p, lines)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(3))

		w := got[0].Payload.(events.NicMmioW)
		Expect(w.Off).To(Equal(uint64(0xc)))
		Expect(*w.Posted).To(BeFalse())

		rx := got[1].Payload.(events.NicRx)
		Expect(rx.Port).To(Equal(uint64(0)))
		Expect(rx.Len).To(Equal(uint64(98)))

		msix := got[2].Payload.(events.NicMsix)
		Expect(msix.Vec).To(Equal(uint64(5)))
		Expect(msix.IsMsixX).To(BeTrue())
	})
})
