package traceenv

import (
	"github.com/q713/simbricks-sub001/events"
	"github.com/q713/simbricks-sub001/span"
)

// Classifiers holds the §4.5 classification sets, populated once at init
// from config and frozen for read afterward (§5). Every set is keyed by
// InternedStr: callers must intern candidate names through the same
// Interner this Classifiers was built with, or pointer lookups will
// always miss.
type Classifiers struct {
	linuxNetStack   map[events.InternedStr]struct{}
	driverTx        map[events.InternedStr]struct{}
	driverRx        map[events.InternedStr]struct{}
	netIfaceSend    map[events.InternedStr]struct{}
	netIfaceRecv    map[events.InternedStr]struct{}
	pciMsixDescAddr map[events.InternedStr]struct{}
	sysEntry        map[events.InternedStr]struct{}
}

// NewClassifiers builds an empty Classifiers; Add* methods populate it
// during config load.
func NewClassifiers() *Classifiers {
	return &Classifiers{
		linuxNetStack:   map[events.InternedStr]struct{}{},
		driverTx:        map[events.InternedStr]struct{}{},
		driverRx:        map[events.InternedStr]struct{}{},
		netIfaceSend:    map[events.InternedStr]struct{}{},
		netIfaceRecv:    map[events.InternedStr]struct{}{},
		pciMsixDescAddr: map[events.InternedStr]struct{}{},
		sysEntry:        map[events.InternedStr]struct{}{},
	}
}

func (c *Classifiers) AddLinuxNetStack(fn events.InternedStr)   { c.linuxNetStack[fn] = struct{}{} }
func (c *Classifiers) AddDriverTx(fn events.InternedStr)        { c.driverTx[fn] = struct{}{} }
func (c *Classifiers) AddDriverRx(fn events.InternedStr)        { c.driverRx[fn] = struct{}{} }
func (c *Classifiers) AddNetIfaceSend(fn events.InternedStr)    { c.netIfaceSend[fn] = struct{}{} }
func (c *Classifiers) AddNetIfaceRecv(fn events.InternedStr)    { c.netIfaceRecv[fn] = struct{}{} }
func (c *Classifiers) AddPciMsixDescAddr(fn events.InternedStr) { c.pciMsixDescAddr[fn] = struct{}{} }
func (c *Classifiers) AddSysEntry(fn events.InternedStr)        { c.sysEntry[fn] = struct{}{} }

func callFuncIn(e events.Event, set map[events.InternedStr]struct{}) bool {
	if e.Kind != events.KindHostCall {
		return false
	}
	fn := e.Payload.(events.HostCall).Func
	if fn == nil {
		return false
	}
	_, ok := set[fn]
	return ok
}

// IsLinuxNetStack, IsDriverTx, IsDriverRx, IsNetIfaceSend, IsNetIfaceRecv,
// IsPciMsixDescAddr, IsSysEntry are the §4.5 classifier predicates: each
// is true iff e is a HostCall whose interned function pointer is in the
// corresponding set.
func (c *Classifiers) IsLinuxNetStack(e events.Event) bool   { return callFuncIn(e, c.linuxNetStack) }
func (c *Classifiers) IsDriverTx(e events.Event) bool        { return callFuncIn(e, c.driverTx) }
func (c *Classifiers) IsDriverRx(e events.Event) bool        { return callFuncIn(e, c.driverRx) }
func (c *Classifiers) IsNetIfaceSend(e events.Event) bool    { return callFuncIn(e, c.netIfaceSend) }
func (c *Classifiers) IsNetIfaceRecv(e events.Event) bool    { return callFuncIn(e, c.netIfaceRecv) }
func (c *Classifiers) IsPciMsixDescAddr(e events.Event) bool { return callFuncIn(e, c.pciMsixDescAddr) }
func (c *Classifiers) IsSysEntry(e events.Event) bool        { return callFuncIn(e, c.sysEntry) }

// ToSpanClassifier adapts this Classifiers to the narrower interface
// span.NewCallSpan needs, so package span has no dependency on traceenv.
func (c *Classifiers) ToSpanClassifier() *span.CallClassifier {
	return &span.CallClassifier{
		IsSysEntry: c.IsSysEntry,
		IsDriverTx: c.IsDriverTx,
		IsDriverRx: c.IsDriverRx,
	}
}
