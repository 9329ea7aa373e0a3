// Package hostsim implements §4.4's HostSim (gem5-style) log parser: the
// producer that turns the host CPU simulator's log into HostInstr, HostCall,
// HostMmio*, HostDma*, HostMsiX, HostConf, HostPciRW, HostPostInt,
// HostClearInt, SimSendSync, and SimProcInEvent events.
//
// Grounded on the teacher's ios/diskstats_linux.go for the overall shape
// (open, scan a line at a time, tolerate and skip a malformed record rather
// than aborting) and on cmn/cos/err.go's typed-error-plus-Errs-aggregator
// pattern for how a malformed line gets recorded (§7's ParseMalformed).
package hostsim

import (
	"context"
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

// ComponentFilter is §4.4's external collaborator: it admits only lines
// whose gem5 component path is configured in. An empty filter admits
// everything, which is convenient for tests and for single-subsystem logs.
type ComponentFilter struct {
	allow map[string]struct{}
}

// NewComponentFilter builds a filter admitting exactly the given components.
// No components means admit all.
func NewComponentFilter(components ...string) *ComponentFilter {
	f := &ComponentFilter{allow: make(map[string]struct{}, len(components))}
	for _, c := range components {
		f.allow[c] = struct{}{}
	}
	return f
}

func (f *ComponentFilter) Admits(component string) bool {
	if f == nil || len(f.allow) == 0 {
		return true
	}
	_, ok := f.allow[component]
	return ok
}

// Parser is one HostSim log producer instance.
type Parser struct {
	Name     string
	SourceID uint64
	Filter   *ComponentFilter
	Env      *traceenv.Env
	Errs     *cos.Errs
}

// New builds a HostSim parser. filter may be nil (admits everything).
func New(name string, sourceID uint64, filter *ComponentFilter, env *traceenv.Env, errs *cos.Errs) *Parser {
	if filter == nil {
		filter = NewComponentFilter()
	}
	return &Parser{Name: name, SourceID: sourceID, Filter: filter, Env: env, Errs: errs}
}

// Producer returns a pipeline.Producer that reads r to exhaustion, emitting
// one Event per admitted, well-formed line. r is closed when the producer
// returns, success or failure.
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

// parseLine decodes one "<tick>: <component>: <event>" record.
func (p *Parser) parseLine(line string) (events.Event, bool) {
	c := parse.NewCursor(line)
	c.TrimLeft()
	ts, ok := c.ParseUint(10)
	if !ok {
		p.malformed(line, "missing leading tick")
		return events.Event{}, false
	}
	c.TrimLeft()
	if !c.ConsumeChar(':') {
		p.malformed(line, "missing ':' after tick")
		return events.Event{}, false
	}
	c.TrimLeft()
	component, ok := c.ExpectUntil(":")
	if !ok {
		p.malformed(line, "missing component field")
		return events.Event{}, false
	}
	component = strings.TrimSpace(component)
	if !p.Filter.Admits(component) {
		return events.Event{}, false
	}
	c.TrimLeft()

	fields := strings.Fields(c.Remaining())
	if len(fields) == 0 {
		p.malformed(line, "empty event body")
		return events.Event{}, false
	}
	tag := fields[0]
	kv := parseKV(fields[1:])
	header := events.Header{Timestamp: ts, SourceID: p.SourceID, SourceName: p.Env.Intern(p.Name)}

	switch tag {
	case "instr":
		pc, ok := kv.hex("pc")
		if !ok {
			p.malformed(line, "instr: missing pc")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindHostInstr, Payload: events.HostInstr{PC: pc}}, true

	case "call":
		funcName, ok := kv.str("func")
		if !ok {
			p.malformed(line, "call: missing func")
			return events.Event{}, false
		}
		pc, _ := kv.hex("pc")
		comp, _ := kv.str("comp")
		payload := events.HostCall{PC: pc, Func: p.Env.Intern(funcName)}
		if comp != "" {
			payload.Comp = p.Env.Intern(comp)
		}
		return events.Event{Header: header, Kind: events.KindHostCall, Payload: payload}, true

	case "mmio_r":
		id, addr, size, bar, offset, posted, ok := kv.mmioFields()
		if !ok {
			p.malformed(line, "mmio_r: missing fields")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindHostMmioR,
			Payload: events.HostMmioR{ID: id, Addr: addr, Size: size, Bar: bar, Offset: offset, Posted: posted}}, true

	case "mmio_w":
		id, addr, size, bar, offset, posted, ok := kv.mmioFields()
		if !ok {
			p.malformed(line, "mmio_w: missing fields")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindHostMmioW,
			Payload: events.HostMmioW{ID: id, Addr: addr, Size: size, Bar: bar, Offset: offset, Posted: posted}}, true

	case "mmio_cr":
		id, ok := kv.hex("id")
		if !ok {
			p.malformed(line, "mmio_cr: missing id")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindHostMmioCR, Payload: events.HostMmioCR{ID: id}}, true

	case "mmio_cw":
		id, ok := kv.hex("id")
		if !ok {
			p.malformed(line, "mmio_cw: missing id")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindHostMmioCW, Payload: events.HostMmioCW{ID: id}}, true

	case "mmio_im_resp_pow":
		return events.Event{Header: header, Kind: events.KindHostMmioImRespPoW, Payload: events.HostMmioImRespPoW{}}, true

	case "dma_r":
		id, addr, size, ok := kv.dmaFields()
		if !ok {
			p.malformed(line, "dma_r: missing fields")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindHostDmaR, Payload: events.HostDmaR{ID: id, Addr: addr, Size: size}}, true

	case "dma_w":
		id, addr, size, ok := kv.dmaFields()
		if !ok {
			p.malformed(line, "dma_w: missing fields")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindHostDmaW, Payload: events.HostDmaW{ID: id, Addr: addr, Size: size}}, true

	case "dma_c":
		id, ok := kv.hex("id")
		if !ok {
			p.malformed(line, "dma_c: missing id")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindHostDmaC, Payload: events.HostDmaC{ID: id}}, true

	case "msix":
		vec, ok := kv.dec("vec")
		if !ok {
			p.malformed(line, "msix: missing vec")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindHostMsiX, Payload: events.HostMsiX{Vec: vec}}, true

	case "post_int":
		return events.Event{Header: header, Kind: events.KindHostPostInt, Payload: events.HostPostInt{}}, true

	case "clear_int":
		return events.Event{Header: header, Kind: events.KindHostClearInt, Payload: events.HostClearInt{}}, true

	case "conf":
		dev, _ := kv.dec("dev")
		fn, _ := kv.dec("func")
		reg, _ := kv.hex("reg")
		bytes, _ := kv.dec("bytes")
		data, _ := kv.hex("data")
		isRead := kv.isTrue("is_read")
		return events.Event{Header: header, Kind: events.KindHostConf,
			Payload: events.HostConf{Dev: dev, Func: fn, Reg: reg, Bytes: bytes, Data: data, IsRead: isRead}}, true

	case "pci_rw":
		offset, _ := kv.hex("offset")
		size, _ := kv.dec("size")
		isRead := kv.isTrue("is_read")
		return events.Event{Header: header, Kind: events.KindHostPciRW,
			Payload: events.HostPciRW{Offset: offset, Size: size, IsRead: isRead}}, true

	case "sim_send_sync":
		return events.Event{Header: header, Kind: events.KindSimSendSync, Payload: events.SimSendSync{}}, true

	case "sim_proc_in":
		return events.Event{Header: header, Kind: events.KindSimProcInEvent, Payload: events.SimProcInEvent{}}, true

	default:
		p.malformed(line, "unrecognized tag "+tag)
		return events.Event{}, false
	}
}

// kv is a small key=value lookup over one line's space-separated tail.
// Structural prefixes (tick, component, tag) go through parse.Cursor; this
// handles the flexible, order-independent field list that follows, the
// same division the C++ source's LineHandler helpers and its per-event
// field extraction fall into.
type kv map[string]string

func parseKV(fields []string) kv {
	m := make(kv, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if ok {
			m[k] = v
		}
	}
	return m
}

func (m kv) str(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m kv) hex(key string) (uint64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	v = strings.TrimPrefix(v, "0x")
	n, err := strconv.ParseUint(v, 16, 64)
	return n, err == nil
}

func (m kv) dec(key string) (uint64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	return n, err == nil
}

func (m kv) isTrue(key string) bool {
	return m[key] == "1" || m[key] == "true"
}

func (m kv) boolPtr(key string) *bool {
	v, ok := m[key]
	if !ok {
		return nil
	}
	b := v == "1" || v == "true"
	return &b
}

func (m kv) mmioFields() (id, addr, size uint64, bar int, offset uint64, posted *bool, ok bool) {
	id, ok = m.hex("id")
	if !ok {
		return
	}
	addr, ok = m.hex("addr")
	if !ok {
		return
	}
	size, ok = m.dec("size")
	if !ok {
		return
	}
	barU, ok := m.dec("bar")
	if !ok {
		return
	}
	bar = int(barU)
	offset, ok = m.hex("offset")
	if !ok {
		return
	}
	posted = m.boolPtr("posted")
	return id, addr, size, bar, offset, posted, true
}

func (m kv) dmaFields() (id, addr, size uint64, ok bool) {
	id, ok = m.hex("id")
	if !ok {
		return
	}
	addr, ok = m.hex("addr")
	if !ok {
		return
	}
	size, ok = m.dec("size")
	return id, addr, size, ok
}
