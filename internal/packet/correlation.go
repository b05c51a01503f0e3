package packet

// CorrelationKind discriminates the shape of a CorrelationKey, mirroring
// the tagged variant spec.md §9 calls for so the Prober stays
// protocol-agnostic above this package.
type CorrelationKind uint8

const (
	CorrelationICMPEcho CorrelationKind = iota
	CorrelationUDPPorts
	CorrelationTCPTuple
)

// CorrelationKey is the protocol-specific tuple used to match an inbound
// ICMP message to the probe that provoked it. It is a plain comparable
// struct so it can be used directly as a map key in the Prober's in-flight
// table; unused fields for a given Kind are left zero.
type CorrelationKey struct {
	Kind       CorrelationKind
	Identifier uint16
	Sequence   uint16
	SrcPort    uint16
	DstPort    uint16
}

// ICMPEchoKey builds the correlation key for an ICMP Echo probe.
func ICMPEchoKey(identifier, sequence uint16) CorrelationKey {
	return CorrelationKey{Kind: CorrelationICMPEcho, Identifier: identifier, Sequence: sequence}
}

// UDPPortsKey builds the correlation key for a UDP probe.
func UDPPortsKey(srcPort, dstPort uint16) CorrelationKey {
	return CorrelationKey{Kind: CorrelationUDPPorts, SrcPort: srcPort, DstPort: dstPort}
}

// TCPTupleKey builds the correlation key for a TCP SYN probe. Unlike the
// ICMP and UDP keys, it carries no sequence number: the production
// channel hands the SYN to the kernel via connect(2), which picks its
// own initial sequence number, so the sender has no sequence value to
// match against an embedded datagram's. Source ports are unique per
// in-flight probe (prober.Config.TCPSourceBase advances one per probe),
// so the (src, dst) pair alone is sufficient to correlate a response.
func TCPTupleKey(srcPort, dstPort uint16) CorrelationKey {
	return CorrelationKey{Kind: CorrelationTCPTuple, SrcPort: srcPort, DstPort: dstPort}
}
