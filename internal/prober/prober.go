// Package prober implements the probe scheduler and response correlator
// (spec §4.3): it decides when to emit the next probe, owns the in-flight
// probe table, and translates inbound responses into per-hop events.
//
// Nothing in the teacher drives probes this way — the teacher's
// ICMPTracer/UDPTracer/TCPTracer each run a fully synchronous
// send-then-block-read loop per TTL. This package restructures that same
// per-TTL correlation logic (the teacher's isOurProbe*/buildEchoRequest
// family) into the arena-owned buffer spec §9 mandates, so a single round
// can have several TTLs in flight at once, bounded by max_inflight.
package prober

import (
	"net"
	"time"

	"github.com/hervehildenbrand/trippy/internal/channel"
	"github.com/hervehildenbrand/trippy/internal/packet"
	"github.com/hervehildenbrand/trippy/pkg/hop"
)

// Config configures sequence/port allocation and round bounds. It is the
// subset of tracer.Config the Prober needs, passed in by the Tracer Loop
// so this package never imports the tracer package.
type Config struct {
	FirstTTL    uint8
	MaxTTL      uint8
	MinSequence uint16
	MaxInflight uint8
	Protocol    packet.Protocol
	PacketSize  uint16
	Pattern     byte

	// SourcePort is the fixed UDP source port, when configured (spec
	// §4.1: "source port = source_port (or an OS-chosen ephemeral if
	// unset)"). When zero, Identifier is reused as the source port so
	// the correlation key is known before the probe is sent.
	SourcePort uint16
	// DestPort is the UDP base destination port, or the fixed TCP
	// destination port (default 80).
	DestPort uint16
	// TCPSourceBase is the base source port for TCP SYN probes, which
	// vary their source port per sequence (spec §6).
	TCPSourceBase uint16
}

// EventKind distinguishes the two StateEvent shapes the Prober emits.
type EventKind int

const (
	EventSent EventKind = iota
	EventComplete
)

// StateEvent is forwarded to the state store for folding into per-hop
// statistics (spec §4.4).
type StateEvent struct {
	Kind EventKind
	TTL  uint8
	Addr net.IP
	RTT  time.Duration
}

type inflightRef struct {
	round int
	ttl   uint8
}

// Prober is not safe for concurrent use: spec §5 gives it a single owning
// thread (the Tracer Loop).
type Prober struct {
	cfg        Config
	identifier uint16
	dest       net.IP

	round            int
	currentTTL       uint8
	targetReached    bool
	targetReachedTTL uint8

	buffer    []hop.Probe // index ttl-1, length MaxTTL
	correlate map[packet.CorrelationKey]inflightRef
	inflight  int
}

// New creates a Prober for one destination. identifier is the 16-bit
// ICMP-echo discriminant, stable for the tracer's lifetime (spec §3).
func New(cfg Config, identifier uint16, dest net.IP) *Prober {
	p := &Prober{
		cfg:        cfg,
		identifier: identifier,
		dest:       dest,
		buffer:     make([]hop.Probe, cfg.MaxTTL),
		correlate:  make(map[packet.CorrelationKey]inflightRef),
	}
	p.StartRound(0)
	return p
}

// StartRound resets the arena for a new round: every buffer slot is
// cleared, the correlation map is emptied (in-flight probes from the prior
// round become unreachable and any late response is discarded as stray,
// per spec §4.3), and current_ttl resets to first_ttl.
func (p *Prober) StartRound(round int) {
	p.round = round
	p.currentTTL = p.cfg.FirstTTL
	p.targetReached = false
	p.targetReachedTTL = 0
	p.inflight = 0
	for i := range p.buffer {
		p.buffer[i] = hop.Probe{}
	}
	p.correlate = make(map[packet.CorrelationKey]inflightRef)
}

// Round returns the round index the Prober is currently scheduling for.
func (p *Prober) Round() int { return p.round }

// InflightCount returns the number of probes sent but not yet resolved
// this round.
func (p *Prober) InflightCount() int { return p.inflight }

// Buffer returns the live per-TTL probe slots for this round. Callers must
// not retain the slice across a StartRound call.
func (p *Prober) Buffer() []hop.Probe { return p.buffer }

// slot returns a pointer into the arena for the given TTL (1-based).
func (p *Prober) slot(ttl uint8) *hop.Probe { return &p.buffer[ttl-1] }

// Emit attempts one scheduling decision and reports whether it did
// something (emitted a probe, or marked one Skipped). The Tracer Loop
// calls Emit in a tight loop each iteration until it returns EmitNone or
// EmitDone, draining every opportunity available right now.
type EmitResult int

const (
	EmitNone EmitResult = iota
	EmitSent
	EmitSkipped
	EmitFailed // send error: probe marked NotSent, not counted as sent
	EmitDone   // current_ttl has advanced past max_ttl; nothing left this round
)

// Emit performs at most one scheduling step, per spec §4.3's per-tick
// behavior.
func (p *Prober) Emit(ch channel.Channel) (EmitResult, StateEvent, error) {
	if p.currentTTL > p.cfg.MaxTTL {
		return EmitDone, StateEvent{}, nil
	}

	if p.targetReached && p.currentTTL > p.targetReachedTTL {
		slot := p.slot(p.currentTTL)
		slot.TTL = p.currentTTL
		slot.Round = p.round
		slot.Status = hop.StatusSkipped
		p.currentTTL++
		return EmitSkipped, StateEvent{}, nil
	}

	if int(p.inflight) >= int(p.cfg.MaxInflight) {
		return EmitNone, StateEvent{}, nil
	}

	ttl := p.currentTTL
	seq := p.cfg.MinSequence + uint16(p.round)*uint16(p.cfg.MaxTTL) + uint16(ttl)
	key, outbound := p.buildOutbound(ttl, seq)
	for p.sequenceInUse(key) {
		seq++
		key, outbound = p.buildOutbound(ttl, seq)
	}

	sentAt, err := ch.SendProbe(outbound)
	p.currentTTL++
	if err != nil {
		slot := p.slot(ttl)
		slot.TTL = ttl
		slot.Round = p.round
		slot.Status = hop.StatusNotSent
		// No StateEvent: the probe never left the machine, so total_sent
		// must not count it (spec §7's NotSent is distinct from Skipped,
		// but both leave total_sent untouched).
		return EmitFailed, StateEvent{}, nil
	}

	slot := p.slot(ttl)
	*slot = hop.Probe{
		Sequence:   seq,
		Identifier: p.identifier,
		TTL:        ttl,
		Round:      p.round,
		SentAt:     sentAt,
		Status:     hop.StatusAwaitReply,
	}
	p.correlate[key] = inflightRef{round: p.round, ttl: ttl}
	p.inflight++
	return EmitSent, StateEvent{Kind: EventSent, TTL: ttl}, nil
}

// sequenceInUse reports whether key already names an in-flight probe,
// the rare collision spec §9 notes is possible only as max_inflight
// approaches 2^16.
func (p *Prober) sequenceInUse(key packet.CorrelationKey) bool {
	_, found := p.correlate[key]
	return found
}

func (p *Prober) buildOutbound(ttl uint8, seq uint16) (packet.CorrelationKey, channel.OutboundProbe) {
	switch p.cfg.Protocol {
	case packet.ProtocolUDP:
		srcPort := p.cfg.SourcePort
		if srcPort == 0 {
			srcPort = p.identifier
		}
		dstPort := p.cfg.DestPort + (seq - p.cfg.MinSequence)
		key := packet.UDPPortsKey(srcPort, dstPort)
		return key, channel.OutboundProbe{
			Proto: packet.ProtocolUDP, Dest: p.dest, TTL: ttl,
			SrcPort: srcPort, DstPort: dstPort,
			PacketSize: p.cfg.PacketSize, Pattern: p.cfg.Pattern,
		}
	case packet.ProtocolTCP:
		srcPort := p.cfg.TCPSourceBase + (seq - p.cfg.MinSequence)
		dstPort := p.cfg.DestPort
		key := packet.TCPTupleKey(srcPort, dstPort)
		return key, channel.OutboundProbe{
			Proto: packet.ProtocolTCP, Dest: p.dest, TTL: ttl,
			SrcPort: srcPort, DstPort: dstPort,
			PacketSize: p.cfg.PacketSize, Pattern: p.cfg.Pattern,
		}
	default:
		key := packet.ICMPEchoKey(p.identifier, seq)
		return key, channel.OutboundProbe{
			Proto: packet.ProtocolICMP, Dest: p.dest, TTL: ttl,
			Identifier: p.identifier, Sequence: seq,
			PacketSize: p.cfg.PacketSize, Pattern: p.cfg.Pattern,
		}
	}
}

// HandleResponse looks up resp's correlation key and, if it matches an
// in-flight probe from the current round, completes it and returns the
// resulting StateEvent. A response for an unknown key, a stale round, or
// an already-Complete probe (the ECMP tie-break, spec §4.3) is discarded:
// ok is false.
func (p *Prober) HandleResponse(resp *channel.ProbeResponse) (ttl uint8, ev StateEvent, ok bool) {
	ref, found := p.correlate[resp.Key]
	if !found || ref.round != p.round {
		return 0, StateEvent{}, false
	}
	slot := p.slot(ref.ttl)
	if slot.Status != hop.StatusAwaitReply {
		return 0, StateEvent{}, false // first response was authoritative
	}

	slot.ReceivedAt = resp.RecvAt
	slot.Host = resp.Host
	slot.Status = hop.StatusComplete
	slot.Kind = wireKindToHopKind(resp.Kind)
	p.inflight--

	if resp.Kind == packet.KindEchoReply || slot.Host.Equal(p.dest) {
		if !p.targetReached || ref.ttl < p.targetReachedTTL {
			p.targetReached = true
			p.targetReachedTTL = ref.ttl
		}
	}

	return ref.ttl, StateEvent{Kind: EventComplete, TTL: ref.ttl, Addr: slot.Host, RTT: slot.RTT()}, true
}

func wireKindToHopKind(k packet.ResponseKindWire) hop.ResponseKind {
	switch k {
	case packet.KindEchoReply:
		return hop.KindEchoReply
	case packet.KindDestinationUnreachable:
		return hop.KindDestinationUnreachable
	case packet.KindTCPConnected:
		return hop.KindTCPConnected
	default:
		return hop.KindTimeExceeded
	}
}

// TargetReached reports whether the destination has answered this round,
// and at which TTL.
func (p *Prober) TargetReached() (bool, uint8) { return p.targetReached, p.targetReachedTTL }

// ConsecutiveUnknownHops counts the streak of TTLs, scanning backward from
// the highest TTL attempted so far this round down to first_ttl, that are
// still AwaitReply or were never sent — the dead-path heuristic spec §4.5
// uses for max_unknown_hops. This measures the run at the current probing
// frontier, not a leading run from first_ttl: an early hop (almost always
// resolved in any real trace — hop 1 is typically the local gateway)
// breaking a leading-from-the-start streak must not mask a dead path
// further out. The streak breaks at the first TTL, scanning backward, that
// has resolved (Complete or Skipped).
func (p *Prober) ConsecutiveUnknownHops() int {
	n := 0
	for ttl := int(p.currentTTL) - 1; ttl >= int(p.cfg.FirstTTL); ttl-- {
		s := p.slot(uint8(ttl)).Status
		if s == hop.StatusAwaitReply || s == hop.StatusNotSent {
			n++
			continue
		}
		break
	}
	return n
}

// SweepAwaitReply finalizes every still-AwaitReply probe as a synthetic
// no-response completion at round end (spec §4.5): total_sent was already
// accounted for at emission time, so this only updates probe-local status
// for display, never re-touching State's totals (spec §9's resolved open
// question on no-response accounting).
func (p *Prober) SweepAwaitReply() {
	for i := range p.buffer {
		if p.buffer[i].Status == hop.StatusAwaitReply {
			p.buffer[i].Status = hop.StatusComplete
			p.buffer[i].Kind = hop.KindNone
		}
	}
	p.inflight = 0
}
