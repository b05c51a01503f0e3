// Package channel owns the send and receive raw sockets the tracing engine
// uses to emit probes and collect ICMP responses. It presents a narrow
// send/recv contract (spec §4.2) so the Prober never touches a socket
// directly.
package channel

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hervehildenbrand/trippy/internal/packet"
)

// SendError wraps a per-probe send failure. Per spec §7 this is recorded
// against the probe, never fatal to the tracer.
type SendError struct {
	Err error
}

func (e *SendError) Error() string { return fmt.Sprintf("send probe: %v", e.Err) }
func (e *SendError) Unwrap() error { return e.Err }

// RecvError wraps a non-timeout receive failure. Per spec §7 this is fatal
// to the tracer thread and is surfaced through Tracer.Run.
type RecvError struct {
	Err error
}

func (e *RecvError) Error() string { return fmt.Sprintf("recv probe response: %v", e.Err) }
func (e *RecvError) Unwrap() error { return e.Err }

// SocketError wraps a socket-creation failure. Fatal at construction.
type SocketError struct {
	Err error
}

func (e *SocketError) Error() string { return fmt.Sprintf("open socket: %v", e.Err) }
func (e *SocketError) Unwrap() error { return e.Err }

// ErrClosed is returned by Channel operations after Close has been called.
var ErrClosed = errors.New("channel closed")

// OutboundProbe describes one probe to emit. Identifier/Sequence address
// the ICMP-Echo correlation case; SrcPort/DstPort address UDP and TCP.
type OutboundProbe struct {
	Proto      packet.Protocol
	Dest       net.IP
	TTL        uint8
	Identifier uint16
	Sequence   uint16
	SrcPort    uint16
	DstPort    uint16
	PacketSize uint16
	Pattern    byte
}

// ProbeResponse is a fully decoded inbound ICMP message ready for the
// Prober to match against its in-flight table.
type ProbeResponse struct {
	Kind          packet.ResponseKindWire
	Host          net.IP
	RecvAt        time.Time
	Key           packet.CorrelationKey
	ChecksumValid bool
}

// Channel is the narrow contract the Prober drives. SendProbe and
// RecvProbeResponse never busy-wait: sockets may block, but only up to the
// given timeout.
type Channel interface {
	// SendProbe serialises and transmits one probe, setting the outgoing
	// TTL via a socket option. sentAt is read from the same monotonic
	// clock RecvProbeResponse uses, establishing the happens-before spec
	// §4.2 requires between a recorded sent_at and any later received_at.
	SendProbe(p OutboundProbe) (sentAt time.Time, err error)

	// RecvProbeResponse blocks up to timeout waiting for one inbound
	// message that parses into a recognized ICMP kind. It returns
	// (nil, nil) on timeout. Packets that fail to parse are dropped
	// silently, per spec §4.2.
	RecvProbeResponse(timeout time.Duration) (*ProbeResponse, error)

	// Close releases the underlying sockets.
	Close() error
}
