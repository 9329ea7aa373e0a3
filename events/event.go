// Package events implements the §3/§4.3 event model: a tagged-variant
// Event with a common Header and a closed set of per-kind payload types.
//
// The teacher (and C++ sources it was itself modeled on) expresses this
// with per-subclass virtual methods (add_to_pack, display, equal). Go has
// no sum types, so Kind plus a marker-interface Payload plays that role:
// a type switch on Kind (or on the concrete Payload type, which amounts to
// the same thing) replaces the virtual dispatch, per §9's design note on
// polymorphic event shapes.
package events

import "fmt"

// InternedStr is a stable pointer to an interned string (package traceenv
// owns the interner). Kept as a plain alias here so this package has no
// dependency on traceenv — traceenv depends on events, not the reverse.
type InternedStr = *string

// Kind tags the ~30 event variants named in §3.
type Kind uint8

const (
	KindInvalid Kind = iota

	KindHostInstr
	KindHostCall
	KindHostMmioR
	KindHostMmioW
	KindHostMmioCR
	KindHostMmioCW
	KindHostMmioImRespPoW
	KindHostDmaR
	KindHostDmaW
	KindHostDmaC
	KindHostMsiX
	KindHostPostInt
	KindHostClearInt
	KindHostConf
	KindHostPciRW

	KindNicMmioR
	KindNicMmioW
	KindNicDmaI
	KindNicDmaEx
	KindNicDmaEn
	KindNicDmaCR
	KindNicDmaCW
	KindNicTx
	KindNicRx
	KindNicMsix
	KindSetIX

	KindNetworkEnqueue
	KindNetworkDequeue
	KindNetworkDrop

	KindSimSendSync
	KindSimProcInEvent
)

var kindNames = map[Kind]string{
	KindHostInstr:         "HostInstr",
	KindHostCall:          "HostCall",
	KindHostMmioR:         "HostMmioR",
	KindHostMmioW:         "HostMmioW",
	KindHostMmioCR:        "HostMmioCR",
	KindHostMmioCW:        "HostMmioCW",
	KindHostMmioImRespPoW: "HostMmioImRespPoW",
	KindHostDmaR:          "HostDmaR",
	KindHostDmaW:          "HostDmaW",
	KindHostDmaC:          "HostDmaC",
	KindHostMsiX:          "HostMsiX",
	KindHostPostInt:       "HostPostInt",
	KindHostClearInt:      "HostClearInt",
	KindHostConf:          "HostConf",
	KindHostPciRW:         "HostPciRW",
	KindNicMmioR:          "NicMmioR",
	KindNicMmioW:          "NicMmioW",
	KindNicDmaI:           "NicDmaI",
	KindNicDmaEx:          "NicDmaEx",
	KindNicDmaEn:          "NicDmaEn",
	KindNicDmaCR:          "NicDmaCR",
	KindNicDmaCW:          "NicDmaCW",
	KindNicTx:             "NicTx",
	KindNicRx:             "NicRx",
	KindNicMsix:           "NicMsix",
	KindSetIX:             "SetIX",
	KindNetworkEnqueue:    "NetworkEnqueue",
	KindNetworkDequeue:    "NetworkDequeue",
	KindNetworkDrop:       "NetworkDrop",
	KindSimSendSync:       "SimSendSync",
	KindSimProcInEvent:    "SimProcInEvent",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Invalid"
}

var namesToKind = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, s := range kindNames {
		m[s] = k
	}
	return m
}()

// KindFromString reverses String, for the replay parser's event-name
// lookup (§4.4/§6).
func KindFromString(s string) (Kind, bool) {
	k, ok := namesToKind[s]
	return k, ok
}

// MmioRelated is §4.5's MMIO_RELATED family.
func (k Kind) MmioRelated() bool {
	switch k {
	case KindHostMmioR, KindHostMmioW, KindHostMmioImRespPoW, KindNicMmioR, KindNicMmioW,
		KindHostMmioCR, KindHostMmioCW:
		return true
	default:
		return false
	}
}

// DmaRelated is §4.5's DMA_RELATED family.
func (k Kind) DmaRelated() bool {
	switch k {
	case KindNicDmaI, KindNicDmaEx, KindHostDmaR, KindHostDmaW, KindHostDmaC, KindNicDmaCR, KindNicDmaCW:
		return true
	default:
		return false
	}
}

// DeviceKind is the network spanner's device_kind enum.
type DeviceKind uint8

const (
	CosimNet DeviceKind = iota
	SimpleNet
)

func (d DeviceKind) String() string {
	if d == CosimNet {
		return "CosimNet"
	}
	return "SimpleNet"
}

// Boundary classifies a network event relative to the host/NIC adapter.
type Boundary uint8

const (
	FromAdapter Boundary = iota
	Within
	ToAdapter
)

func (b Boundary) String() string {
	switch b {
	case FromAdapter:
		return "FromAdapter"
	case ToAdapter:
		return "ToAdapter"
	default:
		return "Within"
	}
}

// EthernetHeader is an Ethernet frame header as carried by NetworkEnqueue,
// NetworkDequeue and NetworkDrop payloads.
type EthernetHeader struct {
	LengthType uint16
	SrcMAC     [6]byte
	DstMAC     [6]byte
}

// IPv4Header is an optional IPv4 header nested inside an Ethernet frame.
type IPv4Header struct {
	Length uint16
	SrcIP  uint32
	DstIP  uint32
}

// Header is the field set common to every event (§3).
type Header struct {
	Timestamp  uint64 // picoseconds
	SourceID   uint64
	SourceName InternedStr
}

// Payload is the marker interface every kind-specific payload implements.
// Equal is the payload half of Event.Equal: header equality is checked by
// the caller, this compares only kind-specific fields.
type Payload interface {
	payload()
	Equal(other Payload) bool
}

// Event is the tagged value described by §3: a Header plus a Kind-tagged
// Payload.
type Event struct {
	Header
	Kind    Kind
	Payload Payload
}

// Is reports whether e carries the given kind — the is_type(e, K) check
// used throughout the spanners (§4.3).
func (e Event) Is(k Kind) bool { return e.Kind == k }

// Equal implements §4.3: two events are equal iff all header fields and
// all kind-specific payload fields match.
func (e Event) Equal(other Event) bool {
	if e.Timestamp != other.Timestamp || e.SourceID != other.SourceID {
		return false
	}
	if e.SourceName != other.SourceName {
		if e.SourceName == nil || other.SourceName == nil || *e.SourceName != *other.SourceName {
			return false
		}
	}
	if e.Kind != other.Kind {
		return false
	}
	if e.Payload == nil || other.Payload == nil {
		return e.Payload == other.Payload
	}
	return e.Payload.Equal(other.Payload)
}

func (e Event) String() string {
	return fmt.Sprintf("%s{ts=%d src=%d payload=%+v}", e.Kind, e.Timestamp, e.SourceID, e.Payload)
}
