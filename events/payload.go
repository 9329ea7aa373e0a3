package events

// Each payload type below implements Payload via the unexported payload()
// marker method and an Equal method comparing its own fields. Optional
// fields noted in §3 with a trailing `?` (posted, eth_header, ipv4_header)
// are represented as pointers so "absent" is distinguishable from the
// zero value.

type HostInstr struct {
	PC uint64
}

func (HostInstr) payload() {}
func (p HostInstr) Equal(o Payload) bool {
	op, ok := o.(HostInstr)
	return ok && p == op
}

type HostCall struct {
	PC   uint64
	Func InternedStr
	Comp InternedStr
}

func (HostCall) payload() {}
func (p HostCall) Equal(o Payload) bool {
	op, ok := o.(HostCall)
	if !ok || p.PC != op.PC {
		return false
	}
	return internedEqual(p.Func, op.Func) && internedEqual(p.Comp, op.Comp)
}

func internedEqual(a, b InternedStr) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// HostMmioR/HostMmioW share a shape; separate types keep the Kind tag and
// the Go type in lockstep, which a type switch in the spanners relies on.
type HostMmioR struct {
	ID     uint64
	Addr   uint64
	Size   uint64
	Bar    int
	Offset uint64
	Posted *bool
}

func (HostMmioR) payload() {}
func (p HostMmioR) Equal(o Payload) bool {
	op, ok := o.(HostMmioR)
	if !ok {
		return false
	}
	return p.ID == op.ID && p.Addr == op.Addr && p.Size == op.Size && p.Bar == op.Bar &&
		p.Offset == op.Offset && boolPtrEqual(p.Posted, op.Posted)
}

type HostMmioW struct {
	ID     uint64
	Addr   uint64
	Size   uint64
	Bar    int
	Offset uint64
	Posted *bool
}

func (HostMmioW) payload() {}
func (p HostMmioW) Equal(o Payload) bool {
	op, ok := o.(HostMmioW)
	if !ok {
		return false
	}
	return p.ID == op.ID && p.Addr == op.Addr && p.Size == op.Size && p.Bar == op.Bar &&
		p.Offset == op.Offset && boolPtrEqual(p.Posted, op.Posted)
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type HostMmioCR struct {
	ID uint64
}

func (HostMmioCR) payload() {}
func (p HostMmioCR) Equal(o Payload) bool {
	op, ok := o.(HostMmioCR)
	return ok && p == op
}

type HostMmioCW struct {
	ID uint64
}

func (HostMmioCW) payload() {}
func (p HostMmioCW) Equal(o Payload) bool {
	op, ok := o.(HostMmioCW)
	return ok && p == op
}

// HostMmioImRespPoW carries no fields of its own: §3 says it always
// shares its timestamp with its originating HostMmioW, so the header
// alone identifies it.
type HostMmioImRespPoW struct{}

func (HostMmioImRespPoW) payload()            {}
func (HostMmioImRespPoW) Equal(o Payload) bool { _, ok := o.(HostMmioImRespPoW); return ok }

type HostDmaR struct {
	ID   uint64
	Addr uint64
	Size uint64
}

func (HostDmaR) payload() {}
func (p HostDmaR) Equal(o Payload) bool {
	op, ok := o.(HostDmaR)
	return ok && p == op
}

type HostDmaW struct {
	ID   uint64
	Addr uint64
	Size uint64
}

func (HostDmaW) payload() {}
func (p HostDmaW) Equal(o Payload) bool {
	op, ok := o.(HostDmaW)
	return ok && p == op
}

type HostDmaC struct {
	ID uint64
}

func (HostDmaC) payload() {}
func (p HostDmaC) Equal(o Payload) bool {
	op, ok := o.(HostDmaC)
	return ok && p == op
}

type HostMsiX struct {
	Vec uint64
}

func (HostMsiX) payload() {}
func (p HostMsiX) Equal(o Payload) bool {
	op, ok := o.(HostMsiX)
	return ok && p == op
}

type HostPostInt struct{}

func (HostPostInt) payload()            {}
func (HostPostInt) Equal(o Payload) bool { _, ok := o.(HostPostInt); return ok }

type HostClearInt struct{}

func (HostClearInt) payload()            {}
func (HostClearInt) Equal(o Payload) bool { _, ok := o.(HostClearInt); return ok }

type HostConf struct {
	Dev    uint64
	Func   uint64
	Reg    uint64
	Bytes  uint64
	Data   uint64
	IsRead bool
}

func (HostConf) payload() {}
func (p HostConf) Equal(o Payload) bool {
	op, ok := o.(HostConf)
	return ok && p == op
}

type HostPciRW struct {
	Offset uint64
	Size   uint64
	IsRead bool
}

func (HostPciRW) payload() {}
func (p HostPciRW) Equal(o Payload) bool {
	op, ok := o.(HostPciRW)
	return ok && p == op
}

type NicMmioR struct {
	Off    uint64
	Len    uint64
	Val    uint64
	Posted *bool
}

func (NicMmioR) payload() {}
func (p NicMmioR) Equal(o Payload) bool {
	op, ok := o.(NicMmioR)
	if !ok {
		return false
	}
	return p.Off == op.Off && p.Len == op.Len && p.Val == op.Val && boolPtrEqual(p.Posted, op.Posted)
}

type NicMmioW struct {
	Off    uint64
	Len    uint64
	Val    uint64
	Posted *bool
}

func (NicMmioW) payload() {}
func (p NicMmioW) Equal(o Payload) bool {
	op, ok := o.(NicMmioW)
	if !ok {
		return false
	}
	return p.Off == op.Off && p.Len == op.Len && p.Val == op.Val && boolPtrEqual(p.Posted, op.Posted)
}

// NicDmaI/Ex/En/CR/CW share the same {id, addr, len} shape, kept as
// distinct types for the same reason as the Host Mmio pair above.
type NicDmaI struct {
	ID   uint64
	Addr uint64
	Len  uint64
}

func (NicDmaI) payload() {}
func (p NicDmaI) Equal(o Payload) bool { op, ok := o.(NicDmaI); return ok && p == op }

type NicDmaEx struct {
	ID   uint64
	Addr uint64
	Len  uint64
}

func (NicDmaEx) payload() {}
func (p NicDmaEx) Equal(o Payload) bool { op, ok := o.(NicDmaEx); return ok && p == op }

type NicDmaEn struct {
	ID   uint64
	Addr uint64
	Len  uint64
}

func (NicDmaEn) payload() {}
func (p NicDmaEn) Equal(o Payload) bool { op, ok := o.(NicDmaEn); return ok && p == op }

type NicDmaCR struct {
	ID   uint64
	Addr uint64
	Len  uint64
}

func (NicDmaCR) payload() {}
func (p NicDmaCR) Equal(o Payload) bool { op, ok := o.(NicDmaCR); return ok && p == op }

type NicDmaCW struct {
	ID   uint64
	Addr uint64
	Len  uint64
}

func (NicDmaCW) payload() {}
func (p NicDmaCW) Equal(o Payload) bool { op, ok := o.(NicDmaCW); return ok && p == op }

type NicTx struct {
	Len uint64
}

func (NicTx) payload() {}
func (p NicTx) Equal(o Payload) bool { op, ok := o.(NicTx); return ok && p == op }

type NicRx struct {
	Port uint64
	Len  uint64
}

func (NicRx) payload() {}
func (p NicRx) Equal(o Payload) bool { op, ok := o.(NicRx); return ok && p == op }

type NicMsix struct {
	Vec     uint64
	IsMsixX bool
}

func (NicMsix) payload() {}
func (p NicMsix) Equal(o Payload) bool { op, ok := o.(NicMsix); return ok && p == op }

type SetIX struct {
	Intr uint64
}

func (SetIX) payload() {}
func (p SetIX) Equal(o Payload) bool { op, ok := o.(SetIX); return ok && p == op }

// NetworkEvent is the shared shape of NetworkEnqueue/Dequeue/Drop (§3);
// the Kind on the Event distinguishes the three.
type NetworkEvent struct {
	Node        uint64
	Device      uint64
	DeviceKind  DeviceKind
	PayloadSize uint64
	EthHeader   *EthernetHeader
	IPv4Header  *IPv4Header
	Boundary    Boundary
}

func (p NetworkEvent) equalFields(op NetworkEvent) bool {
	if p.Node != op.Node || p.Device != op.Device || p.DeviceKind != op.DeviceKind ||
		p.PayloadSize != op.PayloadSize || p.Boundary != op.Boundary {
		return false
	}
	if (p.EthHeader == nil) != (op.EthHeader == nil) {
		return false
	}
	if p.EthHeader != nil && *p.EthHeader != *op.EthHeader {
		return false
	}
	if (p.IPv4Header == nil) != (op.IPv4Header == nil) {
		return false
	}
	if p.IPv4Header != nil && *p.IPv4Header != *op.IPv4Header {
		return false
	}
	return true
}

type NetworkEnqueue struct{ NetworkEvent }

func (NetworkEnqueue) payload() {}
func (p NetworkEnqueue) Equal(o Payload) bool {
	op, ok := o.(NetworkEnqueue)
	return ok && p.equalFields(op.NetworkEvent)
}

type NetworkDequeue struct{ NetworkEvent }

func (NetworkDequeue) payload() {}
func (p NetworkDequeue) Equal(o Payload) bool {
	op, ok := o.(NetworkDequeue)
	return ok && p.equalFields(op.NetworkEvent)
}

type NetworkDrop struct{ NetworkEvent }

func (NetworkDrop) payload() {}
func (p NetworkDrop) Equal(o Payload) bool {
	op, ok := o.(NetworkDrop)
	return ok && p.equalFields(op.NetworkEvent)
}

type SimSendSync struct{}

func (SimSendSync) payload()            {}
func (SimSendSync) Equal(o Payload) bool { _, ok := o.(SimSendSync); return ok }

type SimProcInEvent struct{}

func (SimProcInEvent) payload()            {}
func (SimProcInEvent) Equal(o Payload) bool { _, ok := o.(SimProcInEvent); return ok }
