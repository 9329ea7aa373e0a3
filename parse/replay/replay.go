// Package replay implements §4.4's event-stream parser: a textual,
// single-line-per-event serialization used to re-ingest an already-parsed
// stream and as §8's canonical round-trip format for tests — for every
// event E, parsing Serialize(E) must yield an event equal to E.
//
// Grounded on the original source's event-stream.cpp (the "event-name: k=v,
// k=v, …" serialization referenced by §6) and reimplemented over
// parse.Cursor for the structural prefix (kind name, source_id,
// source_name, timestamp) with a flat key=value tail, the same split the
// other three parsers use between Cursor-driven structure and ad hoc tail
// fields.
package replay

import (
	"context"
	"fmt"
	"strconv"
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

// Parser is one replay (event-stream) log producer instance.
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
	ev, reason, ok := Parse(line, p.Env)
	if !ok {
		p.malformed(line, reason)
		return events.Event{}, false
	}
	return ev, true
}

// Serialize renders e in the canonical replay format: "Kind: source_id=…,
// source_name=…, timestamp=…[, k=v]*".
func Serialize(e events.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: source_id=%d, source_name=%s, timestamp=%d",
		e.Kind, e.SourceID, internedStr(e.SourceName), e.Timestamp)
	for _, f := range payloadFields(e.Kind, e.Payload) {
		fmt.Fprintf(&b, ", %s=%s", f.key, f.val)
	}
	return b.String()
}

// Parse decodes one canonical replay line into an Event, interning any
// string fields through env. On failure it returns a human-readable reason.
func Parse(line string, env *traceenv.Env) (events.Event, string, bool) {
	c := parse.NewCursor(line)
	c.TrimLeft()
	kindName, ok := c.ExpectUntil(": ")
	if !ok {
		return events.Event{}, "missing 'Kind: ' prefix", false
	}
	kind, ok := events.KindFromString(kindName)
	if !ok {
		return events.Event{}, "unrecognized kind " + kindName, false
	}

	fields := parseKVPairs(c.Remaining())

	sourceID, ok := parseDec(fields["source_id"])
	if !ok {
		return events.Event{}, "missing/malformed source_id", false
	}
	timestamp, ok := parseDec(fields["timestamp"])
	if !ok {
		return events.Event{}, "missing/malformed timestamp", false
	}
	var sourceName events.InternedStr
	if sn, ok := fields["source_name"]; ok && sn != "" {
		sourceName = env.Intern(sn)
	}
	header := events.Header{Timestamp: timestamp, SourceID: sourceID, SourceName: sourceName}

	payload, ok := buildPayload(kind, fields, env)
	if !ok {
		return events.Event{}, "missing/malformed fields for " + kindName, false
	}
	return events.Event{Header: header, Kind: kind, Payload: payload}, "", true
}

// parseKVPairs splits a ", "-joined tail into a flat key=value map.
func parseKVPairs(s string) map[string]string {
	m := map[string]string{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if ok {
			m[k] = v
		}
	}
	return m
}

func internedStr(s events.InternedStr) string {
	if s == nil {
		return ""
	}
	return *s
}

func hexStr(v uint64) string { return strconv.FormatUint(v, 16) }
func decStr(v uint64) string { return strconv.FormatUint(v, 10) }
func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
func macStr(m [6]byte) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}
func ipStr(ip uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip))
}

func parseHex(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 64)
	return v, err == nil
}

func parseDec(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	return v, err == nil
}

func parseMACStr(s string) ([6]byte, bool) {
	var mac [6]byte
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return mac, false
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return mac, false
		}
		mac[i] = byte(v)
	}
	return mac, true
}

func parseIPStr(s string) (uint32, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, false
	}
	var out uint32
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return 0, false
		}
		out = out<<8 | uint32(v)
	}
	return out, true
}

func boolPtrField(fields map[string]string, key string) *bool {
	v, ok := fields[key]
	if !ok {
		return nil
	}
	b := v == "1"
	return &b
}

type field struct{ key, val string }

// payloadFields renders the kind-specific fields of payload, in the same
// key vocabulary buildPayload below expects back.
func payloadFields(kind events.Kind, payload events.Payload) []field {
	switch p := payload.(type) {
	case events.HostInstr:
		return []field{{"pc", hexStr(p.PC)}}
	case events.HostCall:
		fs := []field{{"pc", hexStr(p.PC)}, {"func", internedStr(p.Func)}}
		if p.Comp != nil {
			fs = append(fs, field{"comp", internedStr(p.Comp)})
		}
		return fs
	case events.HostMmioR:
		return mmioFields(p.ID, p.Addr, p.Size, uint64(p.Bar), p.Offset, p.Posted)
	case events.HostMmioW:
		return mmioFields(p.ID, p.Addr, p.Size, uint64(p.Bar), p.Offset, p.Posted)
	case events.HostMmioCR:
		return []field{{"id", hexStr(p.ID)}}
	case events.HostMmioCW:
		return []field{{"id", hexStr(p.ID)}}
	case events.HostMmioImRespPoW:
		return nil
	case events.HostDmaR:
		return []field{{"id", hexStr(p.ID)}, {"addr", hexStr(p.Addr)}, {"size", decStr(p.Size)}}
	case events.HostDmaW:
		return []field{{"id", hexStr(p.ID)}, {"addr", hexStr(p.Addr)}, {"size", decStr(p.Size)}}
	case events.HostDmaC:
		return []field{{"id", hexStr(p.ID)}}
	case events.HostMsiX:
		return []field{{"vec", decStr(p.Vec)}}
	case events.HostPostInt:
		return nil
	case events.HostClearInt:
		return nil
	case events.HostConf:
		return []field{
			{"dev", decStr(p.Dev)}, {"func", decStr(p.Func)}, {"reg", hexStr(p.Reg)},
			{"bytes", decStr(p.Bytes)}, {"data", hexStr(p.Data)}, {"is_read", boolStr(p.IsRead)},
		}
	case events.HostPciRW:
		return []field{{"offset", hexStr(p.Offset)}, {"size", decStr(p.Size)}, {"is_read", boolStr(p.IsRead)}}
	case events.NicMmioR:
		return nicMmioFields(p.Off, p.Len, p.Val, p.Posted)
	case events.NicMmioW:
		return nicMmioFields(p.Off, p.Len, p.Val, p.Posted)
	case events.NicDmaI:
		return []field{{"id", hexStr(p.ID)}, {"addr", hexStr(p.Addr)}, {"len", decStr(p.Len)}}
	case events.NicDmaEx:
		return []field{{"id", hexStr(p.ID)}, {"addr", hexStr(p.Addr)}, {"len", decStr(p.Len)}}
	case events.NicDmaEn:
		return []field{{"id", hexStr(p.ID)}, {"addr", hexStr(p.Addr)}, {"len", decStr(p.Len)}}
	case events.NicDmaCR:
		return []field{{"id", hexStr(p.ID)}, {"addr", hexStr(p.Addr)}, {"len", decStr(p.Len)}}
	case events.NicDmaCW:
		return []field{{"id", hexStr(p.ID)}, {"addr", hexStr(p.Addr)}, {"len", decStr(p.Len)}}
	case events.NicTx:
		return []field{{"len", decStr(p.Len)}}
	case events.NicRx:
		return []field{{"port", decStr(p.Port)}, {"len", decStr(p.Len)}}
	case events.NicMsix:
		return []field{{"vec", decStr(p.Vec)}, {"is_msix_x", boolStr(p.IsMsixX)}}
	case events.SetIX:
		return []field{{"intr", hexStr(p.Intr)}}
	case events.NetworkEnqueue:
		return networkFields(p.NetworkEvent)
	case events.NetworkDequeue:
		return networkFields(p.NetworkEvent)
	case events.NetworkDrop:
		return networkFields(p.NetworkEvent)
	case events.SimSendSync:
		return nil
	case events.SimProcInEvent:
		return nil
	default:
		return nil
	}
}

func mmioFields(id, addr, size, bar, offset uint64, posted *bool) []field {
	fs := []field{{"id", hexStr(id)}, {"addr", hexStr(addr)}, {"size", decStr(size)}, {"bar", decStr(bar)}, {"offset", hexStr(offset)}}
	if posted != nil {
		fs = append(fs, field{"posted", boolStr(*posted)})
	}
	return fs
}

func nicMmioFields(off, length, val uint64, posted *bool) []field {
	fs := []field{{"off", hexStr(off)}, {"len", decStr(length)}, {"val", hexStr(val)}}
	if posted != nil {
		fs = append(fs, field{"posted", boolStr(*posted)})
	}
	return fs
}

func networkFields(n events.NetworkEvent) []field {
	fs := []field{
		{"node", decStr(n.Node)}, {"device", decStr(n.Device)}, {"device_kind", n.DeviceKind.String()},
		{"payload_size", decStr(n.PayloadSize)}, {"boundary", n.Boundary.String()},
	}
	if n.EthHeader != nil {
		fs = append(fs,
			field{"eth_type", hexStr(uint64(n.EthHeader.LengthType))},
			field{"eth_src", macStr(n.EthHeader.SrcMAC)},
			field{"eth_dst", macStr(n.EthHeader.DstMAC)},
		)
	}
	if n.IPv4Header != nil {
		fs = append(fs,
			field{"ipv4_len", decStr(uint64(n.IPv4Header.Length))},
			field{"ipv4_src", ipStr(n.IPv4Header.SrcIP)},
			field{"ipv4_dst", ipStr(n.IPv4Header.DstIP)},
		)
	}
	return fs
}

// buildPayload reverses payloadFields for every kind.
func buildPayload(kind events.Kind, f map[string]string, env *traceenv.Env) (events.Payload, bool) {
	switch kind {
	case events.KindHostInstr:
		pc, ok := parseHex(f["pc"])
		return events.HostInstr{PC: pc}, ok
	case events.KindHostCall:
		pc, _ := parseHex(f["pc"])
		fn, ok := f["func"]
		if !ok {
			return nil, false
		}
		p := events.HostCall{PC: pc, Func: env.Intern(fn)}
		if comp, ok := f["comp"]; ok {
			p.Comp = env.Intern(comp)
		}
		return p, true
	case events.KindHostMmioR:
		id, addr, size, bar, offset, posted, ok := parseMmio(f)
		return events.HostMmioR{ID: id, Addr: addr, Size: size, Bar: int(bar), Offset: offset, Posted: posted}, ok
	case events.KindHostMmioW:
		id, addr, size, bar, offset, posted, ok := parseMmio(f)
		return events.HostMmioW{ID: id, Addr: addr, Size: size, Bar: int(bar), Offset: offset, Posted: posted}, ok
	case events.KindHostMmioCR:
		id, ok := parseHex(f["id"])
		return events.HostMmioCR{ID: id}, ok
	case events.KindHostMmioCW:
		id, ok := parseHex(f["id"])
		return events.HostMmioCW{ID: id}, ok
	case events.KindHostMmioImRespPoW:
		return events.HostMmioImRespPoW{}, true
	case events.KindHostDmaR:
		id, addr, size, ok := parseDma3(f)
		return events.HostDmaR{ID: id, Addr: addr, Size: size}, ok
	case events.KindHostDmaW:
		id, addr, size, ok := parseDma3(f)
		return events.HostDmaW{ID: id, Addr: addr, Size: size}, ok
	case events.KindHostDmaC:
		id, ok := parseHex(f["id"])
		return events.HostDmaC{ID: id}, ok
	case events.KindHostMsiX:
		vec, ok := parseDec(f["vec"])
		return events.HostMsiX{Vec: vec}, ok
	case events.KindHostPostInt:
		return events.HostPostInt{}, true
	case events.KindHostClearInt:
		return events.HostClearInt{}, true
	case events.KindHostConf:
		dev, ok1 := parseDec(f["dev"])
		fn, ok2 := parseDec(f["func"])
		reg, ok3 := parseHex(f["reg"])
		bytes, ok4 := parseDec(f["bytes"])
		data, ok5 := parseHex(f["data"])
		return events.HostConf{Dev: dev, Func: fn, Reg: reg, Bytes: bytes, Data: data, IsRead: f["is_read"] == "1"},
			ok1 && ok2 && ok3 && ok4 && ok5
	case events.KindHostPciRW:
		offset, ok1 := parseHex(f["offset"])
		size, ok2 := parseDec(f["size"])
		return events.HostPciRW{Offset: offset, Size: size, IsRead: f["is_read"] == "1"}, ok1 && ok2
	case events.KindNicMmioR:
		off, length, val, posted, ok := parseNicMmio(f)
		return events.NicMmioR{Off: off, Len: length, Val: val, Posted: posted}, ok
	case events.KindNicMmioW:
		off, length, val, posted, ok := parseNicMmio(f)
		return events.NicMmioW{Off: off, Len: length, Val: val, Posted: posted}, ok
	case events.KindNicDmaI:
		id, addr, length, ok := parseNicDma(f)
		return events.NicDmaI{ID: id, Addr: addr, Len: length}, ok
	case events.KindNicDmaEx:
		id, addr, length, ok := parseNicDma(f)
		return events.NicDmaEx{ID: id, Addr: addr, Len: length}, ok
	case events.KindNicDmaEn:
		id, addr, length, ok := parseNicDma(f)
		return events.NicDmaEn{ID: id, Addr: addr, Len: length}, ok
	case events.KindNicDmaCR:
		id, addr, length, ok := parseNicDma(f)
		return events.NicDmaCR{ID: id, Addr: addr, Len: length}, ok
	case events.KindNicDmaCW:
		id, addr, length, ok := parseNicDma(f)
		return events.NicDmaCW{ID: id, Addr: addr, Len: length}, ok
	case events.KindNicTx:
		length, ok := parseDec(f["len"])
		return events.NicTx{Len: length}, ok
	case events.KindNicRx:
		port, ok1 := parseDec(f["port"])
		length, ok2 := parseDec(f["len"])
		return events.NicRx{Port: port, Len: length}, ok1 && ok2
	case events.KindNicMsix:
		vec, ok := parseDec(f["vec"])
		return events.NicMsix{Vec: vec, IsMsixX: f["is_msix_x"] == "1"}, ok
	case events.KindSetIX:
		intr, ok := parseHex(f["intr"])
		return events.SetIX{Intr: intr}, ok
	case events.KindNetworkEnqueue:
		ne, ok := parseNetwork(f)
		return events.NetworkEnqueue{NetworkEvent: ne}, ok
	case events.KindNetworkDequeue:
		ne, ok := parseNetwork(f)
		return events.NetworkDequeue{NetworkEvent: ne}, ok
	case events.KindNetworkDrop:
		ne, ok := parseNetwork(f)
		return events.NetworkDrop{NetworkEvent: ne}, ok
	case events.KindSimSendSync:
		return events.SimSendSync{}, true
	case events.KindSimProcInEvent:
		return events.SimProcInEvent{}, true
	default:
		return nil, false
	}
}

func parseMmio(f map[string]string) (id, addr, size, bar, offset uint64, posted *bool, ok bool) {
	var ok1, ok2, ok3, ok4, ok5 bool
	id, ok1 = parseHex(f["id"])
	addr, ok2 = parseHex(f["addr"])
	size, ok3 = parseDec(f["size"])
	bar, ok4 = parseDec(f["bar"])
	offset, ok5 = parseHex(f["offset"])
	posted = boolPtrField(f, "posted")
	return id, addr, size, bar, offset, posted, ok1 && ok2 && ok3 && ok4 && ok5
}

func parseDma3(f map[string]string) (id, addr, size uint64, ok bool) {
	var ok1, ok2, ok3 bool
	id, ok1 = parseHex(f["id"])
	addr, ok2 = parseHex(f["addr"])
	size, ok3 = parseDec(f["size"])
	return id, addr, size, ok1 && ok2 && ok3
}

func parseNicMmio(f map[string]string) (off, length, val uint64, posted *bool, ok bool) {
	var ok1, ok2, ok3 bool
	off, ok1 = parseHex(f["off"])
	length, ok2 = parseDec(f["len"])
	val, ok3 = parseHex(f["val"])
	posted = boolPtrField(f, "posted")
	return off, length, val, posted, ok1 && ok2 && ok3
}

func parseNicDma(f map[string]string) (id, addr, length uint64, ok bool) {
	var ok1, ok2, ok3 bool
	id, ok1 = parseHex(f["id"])
	addr, ok2 = parseHex(f["addr"])
	length, ok3 = parseDec(f["len"])
	return id, addr, length, ok1 && ok2 && ok3
}

func parseNetwork(f map[string]string) (events.NetworkEvent, bool) {
	node, ok1 := parseDec(f["node"])
	device, ok2 := parseDec(f["device"])
	payloadSize, ok3 := parseDec(f["payload_size"])
	if !ok1 || !ok2 || !ok3 {
		return events.NetworkEvent{}, false
	}
	deviceKind := events.SimpleNet
	if f["device_kind"] == "CosimNet" {
		deviceKind = events.CosimNet
	}
	boundary := events.Within
	switch f["boundary"] {
	case "FromAdapter":
		boundary = events.FromAdapter
	case "ToAdapter":
		boundary = events.ToAdapter
	}

	n := events.NetworkEvent{Node: node, Device: device, DeviceKind: deviceKind, PayloadSize: payloadSize, Boundary: boundary}

	if ethType, ok := f["eth_type"]; ok {
		lt, ok1 := parseHex(ethType)
		src, ok2 := parseMACStr(f["eth_src"])
		dst, ok3 := parseMACStr(f["eth_dst"])
		if !ok1 || !ok2 || !ok3 {
			return events.NetworkEvent{}, false
		}
		n.EthHeader = &events.EthernetHeader{LengthType: uint16(lt), SrcMAC: src, DstMAC: dst}
	}
	if ipLen, ok := f["ipv4_len"]; ok {
		length, ok1 := parseDec(ipLen)
		src, ok2 := parseIPStr(f["ipv4_src"])
		dst, ok3 := parseIPStr(f["ipv4_dst"])
		if !ok1 || !ok2 || !ok3 {
			return events.NetworkEvent{}, false
		}
		n.IPv4Header = &events.IPv4Header{Length: uint16(length), SrcIP: src, DstIP: dst}
	}
	return n, true
}
