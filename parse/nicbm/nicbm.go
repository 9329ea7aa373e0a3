// Package nicbm implements §4.4's NIC-model log parser: two sidecar
// metadata lines (mac_addr=…, sync_pci=…/sync_eth=…) followed by
// main_time-prefixed event records, turned into NicMmioR/W, NicDmaI/Ex/
// En/CR/CW, NicMsix, NicTx/Rx, and SetIX events.
//
// Grounded on the same cursor-over-line approach as parse/hostsim; the two
// sidecar lines are consumed once, up front, exactly as the original
// source's nicbm.cc reads mac_addr and the sync flags before entering its
// per-line dispatch loop.
package nicbm

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

// Parser is one NIC-model log producer instance.
type Parser struct {
	Name     string
	SourceID uint64
	Env      *traceenv.Env
	Errs     *cos.Errs

	// MacAddr and sidecar sync flags, populated from the first two lines
	// once the producer starts reading; exposed for diagnostics/tests.
	MacAddr uint64
	SyncPci bool
	SyncEth bool
}

func New(name string, sourceID uint64, env *traceenv.Env, errs *cos.Errs) *Parser {
	return &Parser{Name: name, SourceID: sourceID, Env: env, Errs: errs}
}

func (p *Parser) Producer(r reader.Reader) pipeline.Producer[events.Event] {
	return func(ctx context.Context, out *chanx.Channel[events.Event]) error {
		defer r.Close()

		if err := p.readSidecar(r); err != nil {
			return err
		}

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

func (p *Parser) readSidecar(r reader.Reader) error {
	macLine, ok, err := r.NextLine()
	if err != nil {
		return cos.NewErrIo(p.Name, err)
	}
	if !ok {
		return cos.NewErrParse(p.Name, "", "missing mac_addr sidecar line")
	}
	c := parse.NewCursor(macLine)
	if !c.ConsumePrefix("mac_addr=0x") {
		return cos.NewErrParse(p.Name, macLine, "expected mac_addr= sidecar line")
	}
	mac, ok := c.ParseUint(16)
	if !ok {
		return cos.NewErrParse(p.Name, macLine, "malformed mac_addr")
	}
	p.MacAddr = mac

	syncLine, ok, err := r.NextLine()
	if err != nil {
		return cos.NewErrIo(p.Name, err)
	}
	if !ok {
		return cos.NewErrParse(p.Name, "", "missing sync_pci/sync_eth sidecar line")
	}
	sc := parse.NewCursor(syncLine)
	if !sc.ConsumePrefix("sync_pci=") {
		return cos.NewErrParse(p.Name, syncLine, "expected sync_pci= sidecar line")
	}
	syncPci, ok := sc.ParseUint(10)
	if !ok {
		return cos.NewErrParse(p.Name, syncLine, "malformed sync_pci")
	}
	sc.TrimLeft()
	if !sc.ConsumePrefix("sync_eth=") {
		return cos.NewErrParse(p.Name, syncLine, "expected sync_eth= field")
	}
	syncEth, ok := sc.ParseUint(10)
	if !ok {
		return cos.NewErrParse(p.Name, syncLine, "malformed sync_eth")
	}
	p.SyncPci = syncPci != 0
	p.SyncEth = syncEth != 0
	return nil
}

func (p *Parser) malformed(line, reason string) {
	err := cos.NewErrParse(p.Name, line, reason)
	if p.Errs != nil {
		p.Errs.Add(err)
	}
	nlog.Warningf("%v", err)
}

// parseLine decodes one "main_time = <tick>: nicbm: <event>" record.
func (p *Parser) parseLine(line string) (events.Event, bool) {
	c := parse.NewCursor(line)
	c.TrimLeft()
	if !c.ConsumePrefix("main_time = ") {
		p.malformed(line, "missing main_time prefix")
		return events.Event{}, false
	}
	ts, ok := c.ParseUint(10)
	if !ok {
		p.malformed(line, "malformed main_time")
		return events.Event{}, false
	}
	c.TrimLeft()
	if !c.ConsumeChar(':') {
		p.malformed(line, "missing ':' after main_time")
		return events.Event{}, false
	}
	c.TrimLeft()
	if !c.ConsumePrefix("nicbm:") {
		p.malformed(line, "missing nicbm: tag")
		return events.Event{}, false
	}
	c.TrimLeft()

	header := events.Header{Timestamp: ts, SourceID: p.SourceID, SourceName: p.Env.Intern(p.Name)}
	body := c.Remaining()

	switch {
	case strings.HasPrefix(body, "read("):
		off, length, val, posted, ok := mmioFields(body[len("read("):])
		if !ok {
			p.malformed(line, "read(...): missing fields")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindNicMmioR,
			Payload: events.NicMmioR{Off: off, Len: length, Val: val, Posted: posted}}, true

	case strings.HasPrefix(body, "write("):
		off, length, val, posted, ok := mmioFields(body[len("write("):])
		if !ok {
			p.malformed(line, "write(...): missing fields")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindNicMmioW,
			Payload: events.NicMmioW{Off: off, Len: length, Val: val, Posted: posted}}, true

	case strings.HasPrefix(body, "issuing dma"):
		id, addr, length, ok := dmaFields(body)
		if !ok {
			p.malformed(line, "issuing dma: missing fields")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindNicDmaI, Payload: events.NicDmaI{ID: id, Addr: addr, Len: length}}, true

	case strings.HasPrefix(body, "executing dma"):
		id, addr, length, ok := dmaFields(body)
		if !ok {
			p.malformed(line, "executing dma: missing fields")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindNicDmaEx, Payload: events.NicDmaEx{ID: id, Addr: addr, Len: length}}, true

	case strings.HasPrefix(body, "enqueuing dma"):
		id, addr, length, ok := dmaFields(body)
		if !ok {
			p.malformed(line, "enqueuing dma: missing fields")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindNicDmaEn, Payload: events.NicDmaEn{ID: id, Addr: addr, Len: length}}, true

	case strings.HasPrefix(body, "completed dma read"):
		id, addr, length, ok := dmaFields(body)
		if !ok {
			p.malformed(line, "completed dma read: missing fields")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindNicDmaCR, Payload: events.NicDmaCR{ID: id, Addr: addr, Len: length}}, true

	case strings.HasPrefix(body, "completed dma write"):
		id, addr, length, ok := dmaFields(body)
		if !ok {
			p.malformed(line, "completed dma write: missing fields")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindNicDmaCW, Payload: events.NicDmaCW{ID: id, Addr: addr, Len: length}}, true

	case strings.HasPrefix(body, "issue MSI-X interrupt"):
		vec, ok := trailingDec(body, "vec")
		if !ok {
			p.malformed(line, "issue MSI-X interrupt: missing vec")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindNicMsix, Payload: events.NicMsix{Vec: vec, IsMsixX: true}}, true

	case strings.HasPrefix(body, "issue MSI interrupt"):
		vec, ok := trailingDec(body, "vec")
		if !ok {
			p.malformed(line, "issue MSI interrupt: missing vec")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindNicMsix, Payload: events.NicMsix{Vec: vec, IsMsixX: false}}, true

	case strings.HasPrefix(body, "eth tx"):
		length, ok := trailingDec(body, "len")
		if !ok {
			p.malformed(line, "eth tx: missing len")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindNicTx, Payload: events.NicTx{Len: length}}, true

	case strings.HasPrefix(body, "eth rx"):
		port, ok1 := fieldDec(body, "port")
		length, ok2 := fieldDec(body, "len")
		if !ok1 || !ok2 {
			p.malformed(line, "eth rx: missing port/len")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindNicRx, Payload: events.NicRx{Port: port, Len: length}}, true

	case strings.HasPrefix(body, "set intx interrupt"):
		addr, ok := trailingHex(body)
		if !ok {
			p.malformed(line, "set intx interrupt: missing address")
			return events.Event{}, false
		}
		return events.Event{Header: header, Kind: events.KindSetIX, Payload: events.SetIX{Intr: addr}}, true

	default:
		p.malformed(line, "unrecognized nicbm event")
		return events.Event{}, false
	}
}

func mmioFields(s string) (off, length, val uint64, posted *bool, ok bool) {
	c := parse.NewCursor(s)
	var got bool
	if _, got = c.ExpectUntil("off=0x"); !got {
		return
	}
	if off, ok = c.ParseUint(16); !ok {
		return
	}
	if _, got = c.ExpectUntil("len="); !got {
		ok = false
		return
	}
	if length, ok = c.ParseUint(10); !ok {
		return
	}
	if _, got = c.ExpectUntil("val=0x"); !got {
		ok = false
		return
	}
	if val, ok = c.ParseUint(16); !ok {
		return
	}
	if _, got := c.ExpectUntil("posted="); got {
		if p, ok2 := c.ParseUint(10); ok2 {
			b := p != 0
			posted = &b
		}
	}
	return off, length, val, posted, true
}

func dmaFields(s string) (id, addr, length uint64, ok bool) {
	c := parse.NewCursor(s)
	if _, got := c.ExpectUntil("id=0x"); !got {
		return 0, 0, 0, false
	}
	id, ok = c.ParseUint(16)
	if !ok {
		return
	}
	if _, got := c.ExpectUntil("addr=0x"); !got {
		return 0, 0, 0, false
	}
	addr, ok = c.ParseUint(16)
	if !ok {
		return
	}
	if _, got := c.ExpectUntil("len="); !got {
		return 0, 0, 0, false
	}
	length, ok = c.ParseUint(10)
	return
}

func trailingDec(s, key string) (uint64, bool) {
	c := parse.NewCursor(s)
	if _, got := c.ExpectUntil(key + "="); !got {
		if _, got = c.ExpectUntil(key + " "); !got {
			return 0, false
		}
	}
	return c.ParseUint(10)
}

func trailingHex(s string) (uint64, bool) {
	idx := strings.LastIndex(s, "0x")
	if idx < 0 {
		return 0, false
	}
	c := parse.NewCursor(s[idx:])
	c.ConsumePrefix("0x")
	return c.ParseUint(16)
}

func fieldDec(s, key string) (uint64, bool) {
	c := parse.NewCursor(s)
	if _, got := c.ExpectUntil(key + "="); !got {
		return 0, false
	}
	return c.ParseUint(10)
}
