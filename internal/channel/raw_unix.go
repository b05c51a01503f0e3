//go:build !windows

package channel

import (
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/hervehildenbrand/trippy/internal/packet"
	"golang.org/x/net/icmp"
)

// Raw is the production Channel: one long-lived ICMP receive socket shared
// by all three probe protocols (every probe shape provokes an ICMP error
// or, for ICMP Echo, an ICMP reply) plus a short-lived per-probe send
// socket for UDP and TCP probes. Grounded on the teacher's
// internal/trace/icmp.go (icmp.ListenPacket + IPv4PacketConn().SetTTL) and
// udp.go/tcp.go (per-probe syscall socket with IP_TTL set per send),
// unified into one object with the lifetime of the whole tracer run
// instead of the teacher's per-Trace()-call scope.
type Raw struct {
	icmpConn *icmp.PacketConn

	mu         sync.Mutex
	closed     bool
	tcpPending []pendingTCP
}

// pendingTCP tracks a TCP SYN probe's send socket after connect(2) returns,
// so RecvProbeResponse can notice the handshake complete (or a RST arrive)
// by polling SO_ERROR. A TCP probe's destination usually never answers
// with an ICMP message the way an intermediate hop does, so this is the
// only signal "target reached" has for TCP. Grounded on the teacher's
// checkTCPConnection in internal/trace/tcp.go, adapted from an inline
// poll loop inside one blocking sendProbe call into state carried across
// RecvProbeResponse calls, since this engine's send and receive paths are
// no longer a single per-probe function.
type pendingTCP struct {
	fd       socketFD
	key      packet.CorrelationKey
	dest     net.IP
	deadline time.Time
}

// tcpPendingTTL bounds how long a send socket is kept open waiting for its
// handshake to resolve before it is closed and forgotten as unreachable.
const tcpPendingTTL = 2 * time.Second

// NewRaw opens the shared ICMP receive socket. Requires CAP_NET_RAW or
// root, per spec §6's privilege note.
func NewRaw() (*Raw, error) {
	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return nil, &SocketError{Err: err}
	}
	return &Raw{icmpConn: conn}, nil
}

func (r *Raw) SendProbe(p OutboundProbe) (time.Time, error) {
	switch p.Proto {
	case packet.ProtocolUDP:
		return r.sendUDP(p)
	case packet.ProtocolTCP:
		return r.sendTCP(p)
	default:
		return r.sendICMP(p)
	}
}

func (r *Raw) sendICMP(p OutboundProbe) (time.Time, error) {
	payloadLen, err := packet.PayloadLen(p.PacketSize, packet.ProtocolICMP)
	if err != nil {
		return time.Time{}, &SendError{Err: err}
	}
	msg, err := packet.EncodeEchoRequest(p.Identifier, p.Sequence, payloadLen, p.Pattern)
	if err != nil {
		return time.Time{}, &SendError{Err: err}
	}
	if err := r.icmpConn.IPv4PacketConn().SetTTL(int(p.TTL)); err != nil {
		return time.Time{}, &SendError{Err: err}
	}
	sentAt := time.Now()
	if _, err := r.icmpConn.WriteTo(msg, &net.IPAddr{IP: p.Dest}); err != nil {
		return time.Time{}, &SendError{Err: err}
	}
	return sentAt, nil
}

func (r *Raw) sendUDP(p OutboundProbe) (time.Time, error) {
	fd, err := createRawSocket(syscall.SOCK_DGRAM, syscall.IPPROTO_UDP)
	if err != nil {
		return time.Time{}, &SendError{Err: err}
	}
	defer closeSocket(fd)

	if err := setSocketTTL(fd, int(p.TTL)); err != nil {
		return time.Time{}, &SendError{Err: err}
	}
	if p.SrcPort != 0 {
		var local [4]byte
		if err := syscall.Bind(int(fd), sockaddrFor(local, int(p.SrcPort))); err != nil {
			return time.Time{}, &SendError{Err: err}
		}
	}

	payloadLen, err := packet.PayloadLen(p.PacketSize, packet.ProtocolUDP)
	if err != nil {
		return time.Time{}, &SendError{Err: err}
	}
	payload := make([]byte, payloadLen)
	for i := range payload {
		payload[i] = p.Pattern
	}

	var dst [4]byte
	copy(dst[:], p.Dest.To4())
	sentAt := time.Now()
	if err := sendToSocket(fd, payload, sockaddrFor(dst, int(p.DstPort))); err != nil {
		return time.Time{}, &SendError{Err: err}
	}
	return sentAt, nil
}

func (r *Raw) sendTCP(p OutboundProbe) (time.Time, error) {
	fd, err := createRawSocket(syscall.SOCK_STREAM, syscall.IPPROTO_TCP)
	if err != nil {
		return time.Time{}, &SendError{Err: err}
	}

	if err := setSocketTTL(fd, int(p.TTL)); err != nil {
		closeSocket(fd)
		return time.Time{}, &SendError{Err: err}
	}
	if err := setSocketNonBlocking(fd); err != nil {
		closeSocket(fd)
		return time.Time{}, &SendError{Err: err}
	}
	if p.SrcPort != 0 {
		var local [4]byte
		if err := syscall.Bind(int(fd), sockaddrFor(local, int(p.SrcPort))); err != nil {
			closeSocket(fd)
			return time.Time{}, &SendError{Err: err}
		}
	}

	var dst [4]byte
	copy(dst[:], p.Dest.To4())
	sentAt := time.Now()
	err = connectSocket(fd, sockaddrFor(dst, int(p.DstPort)))
	if err != nil && err != syscall.EINPROGRESS && err != syscall.ECONNREFUSED {
		closeSocket(fd)
		return time.Time{}, &SendError{Err: err}
	}

	// The handshake (or an immediate RST) usually hasn't resolved yet;
	// RecvProbeResponse polls SO_ERROR on this fd on every subsequent call
	// until it completes or tcpPendingTTL elapses.
	r.mu.Lock()
	r.tcpPending = append(r.tcpPending, pendingTCP{
		fd:       fd,
		key:      packet.TCPTupleKey(p.SrcPort, p.DstPort),
		dest:     p.Dest,
		deadline: sentAt.Add(tcpPendingTTL),
	})
	r.mu.Unlock()
	return sentAt, nil
}

// pollTCPPending checks every pending TCP send socket for a completed
// handshake or RST via SO_ERROR (ECONNREFUSED means the destination reset
// the connection; val == 0 with a known peer address means connected, since
// SO_ERROR also reads 0 while the connect is still in progress — both mean
// the destination itself answered) and returns the first one found, closing and removing
// it from the pending list. Sockets past their deadline are closed and
// dropped without reporting a response, the TCP equivalent of a timed-out
// probe that no ICMP message ever arrived for.
func (r *Raw) pollTCPPending() *ProbeResponse {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.tcpPending) == 0 {
		return nil
	}

	now := time.Now()
	var resolved *ProbeResponse
	kept := r.tcpPending[:0]
	for _, pend := range r.tcpPending {
		if resolved == nil {
			val, err := getSocketError(pend.fd)
			connected := false
			if err == nil && val == 0 {
				_, peerErr := syscall.Getpeername(int(pend.fd))
				connected = peerErr == nil
			}
			if err == nil && (connected || val == int(syscall.ECONNREFUSED)) {
				closeSocket(pend.fd)
				resolved = &ProbeResponse{
					Kind:          packet.KindTCPConnected,
					Host:          pend.dest,
					RecvAt:        now,
					Key:           pend.key,
					ChecksumValid: true,
				}
				continue
			}
		}
		if now.After(pend.deadline) {
			closeSocket(pend.fd)
			continue
		}
		kept = append(kept, pend)
	}
	r.tcpPending = kept
	return resolved
}

func (r *Raw) RecvProbeResponse(timeout time.Duration) (*ProbeResponse, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.mu.Unlock()

	if resp := r.pollTCPPending(); resp != nil {
		return resp, nil
	}

	if err := r.icmpConn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, &RecvError{Err: err}
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := r.icmpConn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, nil
			}
			return nil, &RecvError{Err: err}
		}
		recvAt := time.Now()

		resp, err := packet.Decode(buf[:n])
		if err != nil {
			continue // malformed or unrecognized: dropped silently per spec §4.1/§4.2
		}

		ipAddr, ok := peer.(*net.IPAddr)
		if !ok {
			continue
		}
		return &ProbeResponse{
			Kind:          resp.Kind,
			Host:          ipAddr.IP,
			RecvAt:        recvAt,
			Key:           resp.Key,
			ChecksumValid: resp.ChecksumValid,
		}, nil
	}
}

func (r *Raw) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	for _, pend := range r.tcpPending {
		closeSocket(pend.fd)
	}
	r.tcpPending = nil
	return r.icmpConn.Close()
}
