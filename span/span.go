// Package span implements the §3/§4.6 span model: per-kind closure rules
// driven by try_add, plus the arena-reference type (SpanRef) spans are
// addressed by everywhere else in the core.
//
// §9 calls out that the source's polymorphic span subclasses, each with
// its own virtual add-event/is-complete behavior, become here a single
// tagged struct with a Kind and a try-add dispatch on that tag — the same
// pattern events.Event/events.Kind uses for the event side.
package span

import "github.com/q713/simbricks-sub001/events"

// Kind tags the per-component span shapes named in §4.6.
type Kind uint8

const (
	KindCall Kind = iota
	KindMmio
	KindDma
	KindInt
	KindEth
	KindMsix
	KindNetDevice
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindCall:
		return "Call"
	case KindMmio:
		return "Mmio"
	case KindDma:
		return "Dma"
	case KindInt:
		return "Int"
	case KindEth:
		return "Eth"
	case KindMsix:
		return "Msix"
	case KindNetDevice:
		return "NetDevice"
	default:
		return "Generic"
	}
}

// SpanRef addresses a span stored in the tracer's arena (§3: "Ownership").
// Generation guards against a stale reference outliving its span slot if
// the arena ever recycles ids; the tracer never recycles ids today, so
// Generation is always 0, but callers should compare the whole struct
// rather than assume that.
type SpanRef struct {
	ID         uint64
	Generation uint64
}

// TryAddResult is the outcome of offering an event to a span (§4.6).
type TryAddResult int

const (
	// Added means the event was incorporated. Callers should then check
	// Pending: it may have flipped to false as a result of this event,
	// in which case the caller must mark_done the span.
	Added TryAddResult = iota
	// Full means the span is already complete (or this event does not
	// belong to its run) — the caller should mark_done the existing span
	// (if not already done) and start a fresh span with this same event.
	Full
	// Rejected means the event is out of order or malformed for this
	// span's state machine — a local error (§4.10), not fatal. The
	// caller logs it and either drops the event or holds it over.
	Rejected
)

// CallClassifier supplies the trace-environment predicates a HostCall span
// needs to decide when a call run ends and whether it transmits/receives.
// Span itself has no notion of function names; it only asks.
type CallClassifier struct {
	IsSysEntry func(events.Event) bool
	IsDriverTx func(events.Event) bool
	IsDriverRx func(events.Event) bool
}

// mmioBranch selects which of the three HostMmio sub-protocols (§4.6) a
// span is running.
type mmioBranch uint8

const (
	branchWrite mmioBranch = iota
	branchRead
	branchMsix
)

type mmioPhase uint8

const (
	mmioAfterFirst mmioPhase = iota
	mmioAfterImRespPoW
)

type nicDmaPhase uint8

const (
	nicDmaAfterI nicDmaPhase = iota
	nicDmaAfterEx
)

// Span is the tagged-variant span type described by §3. Not every field is
// meaningful for every Kind; see the per-kind constructors below for which
// fields a given kind actually uses.
type Span struct {
	Ref        SpanRef
	Kind       Kind
	SourceID   uint64
	SourceName events.InternedStr

	Events []events.Event

	Parent      *SpanRef
	Children    []SpanRef
	TriggeredBy *SpanRef

	Pending bool

	// Derived flags, meaningful for specific kinds only.
	IsRead     bool // Mmio, Dma, NicDma, NicMmio
	Transmits  bool // Call
	Receives   bool // Call
	IsTransmit bool // Eth

	classifier *CallClassifier

	mmioBranch  mmioBranch
	mmioPhase   mmioPhase
	nicDmaPhase nicDmaPhase

	pendingID   uint64
	pendingAddr uint64

	netNode   uint64
	netDevice uint64
}

func (s *Span) appendEvent(e events.Event) { s.Events = append(s.Events, e) }

// TryAdd offers e to the span, dispatching to the kind-specific closure
// rule. The "once complete, further events are refused" rule from §3 is
// enforced once here for every kind, and the per-source-id invariant
// (§4.6's is_potential_add) is enforced once here as well.
func (s *Span) TryAdd(e events.Event) TryAddResult {
	if !s.Pending {
		return Full
	}
	if e.SourceID != s.SourceID {
		return Rejected
	}
	switch s.Kind {
	case KindCall:
		return s.tryAddCall(e)
	case KindMmio:
		return s.tryAddMmio(e)
	case KindDma:
		return s.tryAddDma(e)
	case KindInt:
		return s.tryAddInt(e)
	case KindNetDevice:
		return s.tryAddNetDevice(e)
	default:
		// Msix, Eth, Generic, and the NIC single-/two-event kinds below
		// are constructed already non-pending, so they never reach here.
		return Full
	}
}

// ---- HostCall ----

// NewCallSpan opens a HostCall span at a syscall_entry event. classifier
// may be nil, in which case Transmits/Receives are never set and the span
// never closes on its own (the caller must close it via tracer bookkeeping).
func NewCallSpan(ref SpanRef, sourceID uint64, sourceName events.InternedStr, first events.Event, classifier *CallClassifier) *Span {
	s := &Span{Ref: ref, Kind: KindCall, SourceID: sourceID, SourceName: sourceName, Pending: true, classifier: classifier}
	s.appendEvent(first)
	if classifier != nil {
		if classifier.IsDriverTx(first) {
			s.Transmits = true
		}
		if classifier.IsDriverRx(first) {
			s.Receives = true
		}
	}
	return s
}

func (s *Span) tryAddCall(e events.Event) TryAddResult {
	if e.Kind != events.KindHostCall {
		return Rejected
	}
	if s.classifier != nil && s.classifier.IsSysEntry(e) {
		return Full
	}
	s.appendEvent(e)
	if s.classifier != nil {
		if s.classifier.IsDriverTx(e) {
			s.Transmits = true
		}
		if s.classifier.IsDriverRx(e) {
			s.Receives = true
		}
	}
	return Added
}

// ---- HostMmio ----

// NewMmioSpan opens a HostMmio span. first must be a HostMmioR or HostMmioW
// event. pciMsixDescAddrBefore selects the third (no-C*) branch of §4.6.
func NewMmioSpan(ref SpanRef, sourceID uint64, sourceName events.InternedStr, first events.Event, pciMsixDescAddrBefore bool) *Span {
	s := &Span{Ref: ref, Kind: KindMmio, SourceID: sourceID, SourceName: sourceName, Pending: true}
	s.appendEvent(first)
	switch first.Kind {
	case events.KindHostMmioW:
		s.pendingID = first.Payload.(events.HostMmioW).ID
		if pciMsixDescAddrBefore {
			s.mmioBranch = branchMsix
		} else {
			s.mmioBranch = branchWrite
		}
	case events.KindHostMmioR:
		s.pendingID = first.Payload.(events.HostMmioR).ID
		s.mmioBranch = branchRead
		s.IsRead = true
	}
	s.mmioPhase = mmioAfterFirst
	return s
}

func (s *Span) tryAddMmio(e events.Event) TryAddResult {
	switch s.mmioBranch {
	case branchWrite:
		switch s.mmioPhase {
		case mmioAfterFirst:
			switch e.Kind {
			case events.KindHostMmioImRespPoW:
				if e.Timestamp != s.Events[0].Timestamp {
					return Rejected
				}
				s.appendEvent(e)
				s.mmioPhase = mmioAfterImRespPoW
				return Added
			case events.KindHostMmioCW:
				if e.Payload.(events.HostMmioCW).ID != s.pendingID {
					return Rejected
				}
				s.appendEvent(e)
				s.Pending = false
				return Added
			default:
				return Rejected
			}
		case mmioAfterImRespPoW:
			if e.Kind != events.KindHostMmioCW || e.Payload.(events.HostMmioCW).ID != s.pendingID {
				return Rejected
			}
			s.appendEvent(e)
			s.Pending = false
			return Added
		}
	case branchRead:
		if s.mmioPhase != mmioAfterFirst || e.Kind != events.KindHostMmioCR || e.Payload.(events.HostMmioCR).ID != s.pendingID {
			return Rejected
		}
		s.appendEvent(e)
		s.Pending = false
		return Added
	case branchMsix:
		switch s.mmioPhase {
		case mmioAfterFirst:
			if e.Kind != events.KindHostMmioImRespPoW || e.Timestamp != s.Events[0].Timestamp {
				return Rejected
			}
			s.appendEvent(e)
			s.mmioPhase = mmioAfterImRespPoW
			return Added
		case mmioAfterImRespPoW:
			if e.Kind != events.KindHostMmioR || e.Payload.(events.HostMmioR).ID != s.pendingID {
				return Rejected
			}
			s.appendEvent(e)
			s.Pending = false
			return Added
		}
	}
	return Rejected
}

// ---- HostDma ----

// NewDmaSpan opens a HostDma span. first must be a HostDmaR or HostDmaW.
func NewDmaSpan(ref SpanRef, sourceID uint64, sourceName events.InternedStr, first events.Event) *Span {
	s := &Span{Ref: ref, Kind: KindDma, SourceID: sourceID, SourceName: sourceName, Pending: true}
	s.appendEvent(first)
	switch first.Kind {
	case events.KindHostDmaR:
		s.pendingID = first.Payload.(events.HostDmaR).ID
		s.IsRead = true
	case events.KindHostDmaW:
		s.pendingID = first.Payload.(events.HostDmaW).ID
	}
	return s
}

func (s *Span) tryAddDma(e events.Event) TryAddResult {
	if e.Kind != events.KindHostDmaC || e.Payload.(events.HostDmaC).ID != s.pendingID {
		return Rejected
	}
	s.appendEvent(e)
	s.Pending = false
	return Added
}

// ---- HostInt ----

// NewIntSpan opens a HostInt span at a HostPostInt event.
func NewIntSpan(ref SpanRef, sourceID uint64, sourceName events.InternedStr, first events.Event) *Span {
	s := &Span{Ref: ref, Kind: KindInt, SourceID: sourceID, SourceName: sourceName, Pending: true}
	s.appendEvent(first)
	return s
}

func (s *Span) tryAddInt(e events.Event) TryAddResult {
	if e.Kind != events.KindHostClearInt {
		return Rejected
	}
	s.appendEvent(e)
	s.Pending = false
	return Added
}

// ---- single-event spans: HostMsiX, NicMmio, NicMsix, NicEth, Generic ----

// NewMsixSpan builds a complete HostMsiX span (§4.6: "single-event spans
// [complete on insertion]").
func NewMsixSpan(ref SpanRef, sourceID uint64, sourceName events.InternedStr, first events.Event) *Span {
	s := &Span{Ref: ref, Kind: KindMsix, SourceID: sourceID, SourceName: sourceName}
	s.appendEvent(first)
	return s
}

// NewNicMmioSpan builds a complete single-event NIC MMIO span; IsRead
// follows the event kind (NicMmioR vs NicMmioW).
func NewNicMmioSpan(ref SpanRef, sourceID uint64, sourceName events.InternedStr, first events.Event) *Span {
	s := &Span{Ref: ref, Kind: KindMmio, SourceID: sourceID, SourceName: sourceName, IsRead: first.Kind == events.KindNicMmioR}
	s.appendEvent(first)
	return s
}

// NewNicMsixSpan builds a complete single-event NIC MSI-X span.
func NewNicMsixSpan(ref SpanRef, sourceID uint64, sourceName events.InternedStr, first events.Event) *Span {
	s := &Span{Ref: ref, Kind: KindMsix, SourceID: sourceID, SourceName: sourceName}
	s.appendEvent(first)
	return s
}

// NewEthSpan builds a complete single-event NicTx/NicRx span.
func NewEthSpan(ref SpanRef, sourceID uint64, sourceName events.InternedStr, first events.Event) *Span {
	s := &Span{Ref: ref, Kind: KindEth, SourceID: sourceID, SourceName: sourceName, IsTransmit: first.Kind == events.KindNicTx}
	s.appendEvent(first)
	return s
}

// NewGenericSpan wraps a lone event not covered by any other kind.
func NewGenericSpan(ref SpanRef, sourceID uint64, sourceName events.InternedStr, first events.Event) *Span {
	s := &Span{Ref: ref, Kind: KindGeneric, SourceID: sourceID, SourceName: sourceName}
	s.appendEvent(first)
	return s
}

// ---- NicDma ----

// NewNicDmaSpan opens a NicDma span at a NicDmaI event.
func NewNicDmaSpan(ref SpanRef, sourceID uint64, sourceName events.InternedStr, first events.Event) *Span {
	s := &Span{Ref: ref, Kind: KindDma, SourceID: sourceID, SourceName: sourceName, Pending: true, nicDmaPhase: nicDmaAfterI}
	s.appendEvent(first)
	p := first.Payload.(events.NicDmaI)
	s.pendingID, s.pendingAddr = p.ID, p.Addr
	return s
}

func (s *Span) tryAddNicDma(e events.Event) TryAddResult {
	switch s.nicDmaPhase {
	case nicDmaAfterI:
		if e.Kind != events.KindNicDmaEx {
			return Rejected
		}
		p := e.Payload.(events.NicDmaEx)
		if p.ID != s.pendingID || p.Addr != s.pendingAddr {
			return Rejected
		}
		s.appendEvent(e)
		s.nicDmaPhase = nicDmaAfterEx
		return Added
	case nicDmaAfterEx:
		switch e.Kind {
		case events.KindNicDmaCR:
			p := e.Payload.(events.NicDmaCR)
			if p.ID != s.pendingID || p.Addr != s.pendingAddr {
				return Rejected
			}
			s.appendEvent(e)
			s.Pending = false
			s.IsRead = true
			return Added
		case events.KindNicDmaCW:
			p := e.Payload.(events.NicDmaCW)
			if p.ID != s.pendingID || p.Addr != s.pendingAddr {
				return Rejected
			}
			s.appendEvent(e)
			s.Pending = false
			s.IsRead = false
			return Added
		default:
			return Rejected
		}
	}
	return Rejected
}

// TryAdd does not dispatch NicDma through the default switch in TryAdd
// above because KindDma is shared between HostDma and NicDma, which use
// different wire id shapes (HostDmaC.ID vs NicDmaCR/CW{ID,Addr}). Spanners
// that build NIC dma spans call TryAddNicDma directly instead of TryAdd.
func (s *Span) TryAddNicDma(e events.Event) TryAddResult {
	if !s.Pending {
		return Full
	}
	if e.SourceID != s.SourceID {
		return Rejected
	}
	return s.tryAddNicDma(e)
}

// ---- NetDevice ----

func networkEventOf(e events.Event) (events.NetworkEvent, bool) {
	switch p := e.Payload.(type) {
	case events.NetworkEnqueue:
		return p.NetworkEvent, true
	case events.NetworkDequeue:
		return p.NetworkEvent, true
	case events.NetworkDrop:
		return p.NetworkEvent, true
	default:
		return events.NetworkEvent{}, false
	}
}

// NewNetDeviceSpan opens (or immediately closes, if first already ends the
// run) a NetDevice span for one (node, device) pair.
func NewNetDeviceSpan(ref SpanRef, sourceID uint64, sourceName events.InternedStr, first events.Event) *Span {
	ne, _ := networkEventOf(first)
	s := &Span{Ref: ref, Kind: KindNetDevice, SourceID: sourceID, SourceName: sourceName, Pending: true, netNode: ne.Node, netDevice: ne.Device}
	s.appendEvent(first)
	if first.Kind == events.KindNetworkDrop || ne.Boundary == events.ToAdapter {
		s.Pending = false
	}
	return s
}

func (s *Span) tryAddNetDevice(e events.Event) TryAddResult {
	ne, ok := networkEventOf(e)
	if !ok {
		return Rejected
	}
	if ne.Node != s.netNode || ne.Device != s.netDevice {
		return Full
	}
	s.appendEvent(e)
	if e.Kind == events.KindNetworkDrop || ne.Boundary == events.ToAdapter {
		s.Pending = false
	}
	return Added
}
