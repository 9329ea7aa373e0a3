package hostsim_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/q713/simbricks-sub001/chanx"
	"github.com/q713/simbricks-sub001/cmn/cos"
	"github.com/q713/simbricks-sub001/events"
	"github.com/q713/simbricks-sub001/parse/hostsim"
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

func drain(p *hostsim.Parser, lines []string) ([]events.Event, error) {
	out := chanx.New[events.Event](10)
	prod := p.Producer(&sliceReader{lines: lines})
	err := prod(context.Background(), out)
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

	It("parses scenario A: a host MMIO read completion", func() {
		p := hostsim.New("host0", 1, nil, &env, &cos.Errs{})
		lines := []string{
			"1869691991749: system.pci: mmio_r id=0x7 addr=0xc0080300 size=4 bar=0 offset=0x80300",
			"1869693118999: system.pci: mmio_cr id=0x7",
		}
		got, err := drain(p, lines)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(2))
		Expect(got[0].Kind).To(Equal(events.KindHostMmioR))
		mr := got[0].Payload.(events.HostMmioR)
		Expect(mr.ID).To(Equal(uint64(7)))
		Expect(mr.Addr).To(Equal(uint64(0xc0080300)))
		Expect(got[1].Kind).To(Equal(events.KindHostMmioCR))
		Expect(got[1].Payload.(events.HostMmioCR).ID).To(Equal(uint64(7)))
	})

	It("interns call func/comp and skips malformed lines with a diagnostic", func() {
		errs := &cos.Errs{}
		p := hostsim.New("host0", 1, nil, &env, errs)
		lines := []string{
			"100: system.cpu: call func=__sys_recvmsg comp=kernel pc=0x400000",
			"not a valid line at all",
		}
		got, err := drain(p, lines)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
		call := got[0].Payload.(events.HostCall)
		Expect(*call.Func).To(Equal("__sys_recvmsg"))
		Expect(errs.Cnt()).To(Equal(1))
	})

	It("admits only components configured in the ComponentFilter", func() {
		filter := hostsim.NewComponentFilter("system.pci")
		p := hostsim.New("host0", 1, filter, &env, &cos.Errs{})
		lines := []string{
			"1: system.pci: post_int",
			"2: system.other: post_int",
		}
		got, err := drain(p, lines)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
		Expect(got[0].Timestamp).To(Equal(uint64(1)))
	})
})
