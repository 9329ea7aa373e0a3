package replay_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/q713/simbricks-sub001/chanx"
	"github.com/q713/simbricks-sub001/cmn/cos"
	"github.com/q713/simbricks-sub001/events"
	"github.com/q713/simbricks-sub001/parse/replay"
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

func drain(p *replay.Parser, lines []string) ([]events.Event, error) {
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

var _ = Describe("Serialize/Parse", func() {
	var env traceenv.Env

	BeforeEach(func() {
		Expect(env.Init(&traceenv.Config{})).To(Succeed())
	})

	boolPtr := func(b bool) *bool { return &b }

	It("round-trips a representative sample of event kinds", func() {
		samples := []events.Event{
			{
				Header: events.Header{Timestamp: 1, SourceID: 7, SourceName: env.Intern("host0")},
				Kind:   events.KindHostInstr,
				Payload: events.HostInstr{PC: 0x400000},
			},
			{
				Header: events.Header{Timestamp: 2, SourceID: 7, SourceName: env.Intern("host0")},
				Kind:   events.KindHostCall,
				Payload: events.HostCall{PC: 0x400010, Func: env.Intern("__sys_recvmsg"), Comp: env.Intern("kernel")},
			},
			{
				Header: events.Header{Timestamp: 3, SourceID: 7, SourceName: env.Intern("host0")},
				Kind:   events.KindHostMmioR,
				Payload: events.HostMmioR{ID: 0x7, Addr: 0xc0080300, Size: 4, Bar: 0, Offset: 0x80300, Posted: boolPtr(true)},
			},
			{
				Header: events.Header{Timestamp: 4, SourceID: 7, SourceName: env.Intern("host0")},
				Kind:   events.KindHostConf,
				Payload: events.HostConf{Dev: 1, Func: 2, Reg: 0x10, Bytes: 4, Data: 0xdeadbeef, IsRead: false},
			},
			{
				Header: events.Header{Timestamp: 5, SourceID: 2, SourceName: env.Intern("nic0")},
				Kind:   events.KindNicDmaCR,
				Payload: events.NicDmaCR{ID: 3, Addr: 0xdead, Len: 8},
			},
			{
				Header: events.Header{Timestamp: 6, SourceID: 2, SourceName: env.Intern("nic0")},
				Kind:   events.KindNicMsix,
				Payload: events.NicMsix{Vec: 5, IsMsixX: true},
			},
			{
				Header: events.Header{Timestamp: 7, SourceID: 5, SourceName: env.Intern("net0")},
				Kind:   events.KindNetworkEnqueue,
				Payload: events.NetworkEnqueue{NetworkEvent: events.NetworkEvent{
					Node: 1, Device: 2, DeviceKind: events.CosimNet, PayloadSize: 42,
					EthHeader: &events.EthernetHeader{
						LengthType: 0x806,
						SrcMAC:     [6]byte{0xcc, 0x18, 0x61, 0xcf, 0x61, 0x4f},
						DstMAC:     [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
					},
					Boundary: events.FromAdapter,
				}},
			},
			{
				Header: events.Header{Timestamp: 8, SourceID: 5, SourceName: env.Intern("net0")},
				Kind:   events.KindNetworkDequeue,
				Payload: events.NetworkDequeue{NetworkEvent: events.NetworkEvent{
					Node: 1, Device: 2, DeviceKind: events.SimpleNet, PayloadSize: 64,
					IPv4Header: &events.IPv4Header{Length: 64, SrcIP: uint32(10)<<24 | 1, DstIP: uint32(10)<<24 | 2},
					Boundary:   events.ToAdapter,
				}},
			},
			{
				Header: events.Header{Timestamp: 9, SourceID: 1, SourceName: env.Intern("sim0")},
				Kind:   events.KindSimSendSync,
				Payload: events.SimSendSync{},
			},
		}

		for _, want := range samples {
			line := replay.Serialize(want)
			got, reason, ok := replay.Parse(line, &env)
			Expect(ok).To(BeTrue(), "serialize/parse round-trip failed for %s: %s (line=%q)", want.Kind, reason, line)
			Expect(got.Equal(want)).To(BeTrue(), "round-trip mismatch for %s: got %+v want %+v (line=%q)", want.Kind, got, want, line)
		}
	})

	It("feeds Serialize output back through the Producer pipeline", func() {
		want := events.Event{
			Header:  events.Header{Timestamp: 42, SourceID: 9, SourceName: env.Intern("host1")},
			Kind:    events.KindHostDmaR,
			Payload: events.HostDmaR{ID: 0x9, Addr: 0x1000, Size: 64},
		}
		line := replay.Serialize(want)

		p := replay.New("replay0", 9, &env, &cos.Errs{})
		got, err := drain(p, []string{line})
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
		Expect(got[0].Equal(want)).To(BeTrue())
	})

	It("reports a malformed line as a diagnostic without aborting", func() {
		errs := &cos.Errs{}
		p := replay.New("replay0", 1, &env, errs)
		got, err := drain(p, []string{"not a replay line at all", "also garbage: x=y"})
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeEmpty())
		Expect(errs.Cnt()).To(Equal(2))
	})
})
