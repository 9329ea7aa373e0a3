// Package ns3 implements §4.4's network-simulator log parser: it turns one
// ns-3 trace line into a NetworkEnqueue, NetworkDequeue, or NetworkDrop
// event.
//
// Grounded on the original C++ source's parser.cc (TryParseEthernetHeader,
// TryParseIpHeader, ParseMacAddress, ParseIpAddress): the same
// consume-till-marker-then-parse-field structure, reimplemented over
// parse.Cursor instead of the source's LineHandler. The per-field grammar
// (ConsumeAndTrimTillString("length/type=0x"), ConsumeAndTrimTillString
// ("source="), …) is carried over field for field; only the line-cursor
// vocabulary changed.
package ns3

import (
	"context"
	"strings"

	"github.com/q713/simbricks-sub001/chanx"
	"github.com/q713/simbricks-sub001/cmn/cos"
	"github.com/q713/simbricks-sub001/cmn/nlog"
	"github.com/q713/simbricks-sub001/events"
	"github.com/q713/simbricks-sub001/parse"
	"github.com/q713/simbricks-sub001/pipeline"
	"github.com/q713/simbricks-sub001/reader"
	"github.com/q713/simbricks-sub001/traceenv"
)

// Parser is one network-simulator log producer instance.
type Parser struct {
	Name     string
	SourceID uint64
	Env      *traceenv.Env
	Errs     *cos.Errs
}

func New(name string, sourceID uint64, env *traceenv.Env, errs *cos.Errs) *Parser {
	return &Parser{Name: name, SourceID: sourceID, Env: env, Errs: errs}
}

func (p *Parser) Producer(r reader.Reader) pipeline.Producer[events.Event] {
	return func(ctx context.Context, out *chanx.Channel[events.Event]) error {
		defer r.Close()
		for {
			line, ok, err := r.NextLine()
			if err != nil {
				return cos.NewErrIo(p.Name, err)
			}
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			ev, ok := p.parseLine(line)
			if !ok {
				continue
			}
			if !out.Push(ev) {
				return cos.NewErrChannelClosed(p.Name)
			}
		}
	}
}

func (p *Parser) malformed(line, reason string) {
	err := cos.NewErrParse(p.Name, line, reason)
	if p.Errs != nil {
		p.Errs.Add(err)
	}
	nlog.Warningf("%v", err)
}

func (p *Parser) parseLine(line string) (events.Event, bool) {
	c := parse.NewCursor(line)
	c.TrimLeft()

	var kind events.Kind
	var defaultBoundary events.Boundary
	switch {
	case c.ConsumeChar('+'):
		kind, defaultBoundary = events.KindNetworkEnqueue, events.FromAdapter
	case c.ConsumeChar('-'):
		kind, defaultBoundary = events.KindNetworkDequeue, events.ToAdapter
	case c.ConsumeChar('d'):
		kind, defaultBoundary = events.KindNetworkDrop, events.Within
	default:
		p.malformed(line, "line does not start with +, -, or d")
		return events.Event{}, false
	}

	c.TrimLeft()
	ts, ok := c.ParseUint(10)
	if !ok {
		p.malformed(line, "missing timestamp")
		return events.Event{}, false
	}

	if _, ok := c.ExpectUntil("NodeList/"); !ok {
		p.malformed(line, "missing NodeList/ path segment")
		return events.Event{}, false
	}
	node, ok := c.ParseUint(10)
	if !ok {
		p.malformed(line, "malformed node index")
		return events.Event{}, false
	}

	if _, ok := c.ExpectUntil("DeviceList/"); !ok {
		p.malformed(line, "missing DeviceList/ path segment")
		return events.Event{}, false
	}
	device, ok := c.ParseUint(10)
	if !ok {
		p.malformed(line, "malformed device index")
		return events.Event{}, false
	}

	deviceKind := events.SimpleNet
	if strings.Contains(c.Remaining(), "CosimNetDevice") {
		deviceKind = events.CosimNet
	}

	boundary := defaultBoundary
	lower := strings.ToLower(c.Remaining())
	switch {
	case strings.Contains(lower, "fromadapter"):
		boundary = events.FromAdapter
	case strings.Contains(lower, "toadapter"):
		boundary = events.ToAdapter
	case strings.Contains(lower, "within"):
		boundary = events.Within
	}

	ethHeader := tryParseEthernetHeader(c)
	ipv4Header := tryParseIPv4Header(c)

	if _, ok := c.ExpectUntil("Payload (size="); !ok {
		p.malformed(line, "missing Payload (size=...) trailer")
		return events.Event{}, false
	}
	payloadSize, ok := c.ParseUint(10)
	if !ok {
		p.malformed(line, "malformed payload size")
		return events.Event{}, false
	}

	header := events.Header{Timestamp: ts, SourceID: p.SourceID, SourceName: p.Env.Intern(p.Name)}
	netEvent := events.NetworkEvent{
		Node: node, Device: device, DeviceKind: deviceKind,
		PayloadSize: payloadSize, EthHeader: ethHeader, IPv4Header: ipv4Header, Boundary: boundary,
	}

	var payload events.Payload
	switch kind {
	case events.KindNetworkEnqueue:
		payload = events.NetworkEnqueue{NetworkEvent: netEvent}
	case events.KindNetworkDequeue:
		payload = events.NetworkDequeue{NetworkEvent: netEvent}
	case events.KindNetworkDrop:
		payload = events.NetworkDrop{NetworkEvent: netEvent}
	}
	return events.Event{Header: header, Kind: kind, Payload: payload}, true
}

// tryParseEthernetHeader mirrors TryParseEthernetHeader from the original
// source: EthernetHeader(length/type=0xNNNN, source=MM:MM:..., destination=MM:MM:...)
func tryParseEthernetHeader(c *parse.Cursor) *events.EthernetHeader {
	if _, ok := c.ExpectUntil("EthernetHeader("); !ok {
		return nil
	}
	if _, ok := c.ExpectUntil("length/type=0x"); !ok {
		return nil
	}
	lengthType, ok := c.ParseUint(16)
	if !ok {
		return nil
	}
	if _, ok := c.ExpectUntil("source="); !ok {
		return nil
	}
	src, ok := c.ParseMAC()
	if !ok {
		return nil
	}
	if _, ok := c.ExpectUntil("destination="); !ok {
		return nil
	}
	dst, ok := c.ParseMAC()
	if !ok {
		return nil
	}
	c.ExpectUntil(")")
	return &events.EthernetHeader{LengthType: uint16(lengthType), SrcMAC: src, DstMAC: dst}
}

// tryParseIPv4Header mirrors TryParseIpHeader: Ipv4Header(length: N a.b.c.d > w.x.y.z)
func tryParseIPv4Header(c *parse.Cursor) *events.IPv4Header {
	if _, ok := c.ExpectUntil("Ipv4Header("); !ok {
		return nil
	}
	if _, ok := c.ExpectUntil("length: "); !ok {
		return nil
	}
	length, ok := c.ParseUint(10)
	if !ok {
		return nil
	}
	c.TrimLeft()
	src, ok := c.ParseIPv4()
	if !ok {
		return nil
	}
	c.TrimLeft()
	if !c.ConsumeChar('>') {
		return nil
	}
	c.TrimLeft()
	dst, ok := c.ParseIPv4()
	if !ok {
		return nil
	}
	c.ExpectUntil(")")
	return &events.IPv4Header{Length: uint16(length), SrcIP: src, DstIP: dst}
}
