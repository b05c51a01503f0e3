package packet

import (
	"bytes"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// EncodeEchoRequest builds an ICMP Echo Request (RFC 792): type=8, code=0,
// the given identifier/sequence, and a payload of payloadLen bytes each
// equal to pattern. The checksum is computed by golang.org/x/net/icmp's
// Marshal, which sums header and payload exactly as RFC 1071 requires —
// the same library the teacher uses for every ICMP message it builds.
func EncodeEchoRequest(identifier, sequence uint16, payloadLen int, pattern byte) ([]byte, error) {
	payload := make([]byte, payloadLen)
	for i := range payload {
		payload[i] = pattern
	}
	msg := &icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   int(identifier),
			Seq:  int(sequence),
			Data: payload,
		},
	}
	return msg.Marshal(nil)
}

// Response is the decoded result of an inbound ICMP message relevant to
// the tracing engine.
type Response struct {
	Kind            ResponseKindWire
	Key             CorrelationKey
	ChecksumValid   bool
	OriginalPayload []byte // first bytes of the offending datagram's payload, when present
}

// ResponseKindWire mirrors hop.ResponseKind without importing pkg/hop, to
// keep this package free of a dependency on the statistics model.
type ResponseKindWire int

const (
	KindEchoReply ResponseKindWire = iota
	KindTimeExceeded
	KindDestinationUnreachable
	// KindTCPConnected marks a TCP probe resolved by the send socket
	// itself (SO_ERROR observing a completed handshake or an RST) rather
	// than by parsing an inbound ICMP message — the destination of a TCP
	// probe usually never emits one. Only internal/channel's production
	// Raw sender produces this kind.
	KindTCPConnected
)

// Decode parses a raw ICMP message (as read from an IPv4 ICMP socket: no
// outer IPv4 header, matching golang.org/x/net/icmp.ListenPacket's
// "ip4:icmp" framing) and extracts the correlation key of the probe it
// answers. Unrecognized ICMP types return ErrUnknownICMPType wrapped in a
// *DecodeError; callers drop the packet and continue, per spec §4.1/§7.
func Decode(raw []byte) (*Response, error) {
	if len(raw) < ICMPHeaderLen {
		return nil, newDecodeError(ErrPacketTooSmall)
	}
	valid := verifyChecksum(raw)

	msg, err := icmp.ParseMessage(1, raw) // protocol 1 = ICMPv4
	if err != nil {
		return nil, newDecodeError(err)
	}

	switch msg.Type {
	case ipv4.ICMPTypeEchoReply:
		body, ok := msg.Body.(*icmp.Echo)
		if !ok {
			return nil, newDecodeError(ErrUnknownICMPType)
		}
		return &Response{
			Kind:          KindEchoReply,
			Key:           ICMPEchoKey(uint16(body.ID), uint16(body.Seq)),
			ChecksumValid: valid,
			OriginalPayload: body.Data,
		}, nil

	case ipv4.ICMPTypeTimeExceeded:
		body, ok := msg.Body.(*icmp.TimeExceeded)
		if !ok {
			return nil, newDecodeError(ErrUnknownICMPType)
		}
		key, payload, err := keyFromEmbeddedDatagram(body.Data)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: KindTimeExceeded, Key: key, ChecksumValid: valid, OriginalPayload: payload}, nil

	case ipv4.ICMPTypeDestinationUnreachable:
		body, ok := msg.Body.(*icmp.DstUnreach)
		if !ok {
			return nil, newDecodeError(ErrUnknownICMPType)
		}
		key, payload, err := keyFromEmbeddedDatagram(body.Data)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: KindDestinationUnreachable, Key: key, ChecksumValid: valid, OriginalPayload: payload}, nil

	default:
		return nil, newDecodeError(ErrUnknownICMPType)
	}
}

// keyFromEmbeddedDatagram extracts a CorrelationKey from the first bytes of
// the datagram that provoked a Time Exceeded / Destination Unreachable
// message: the original IPv4 header (20+ bytes, length from the IHL
// nibble) followed by the first 8 bytes of its payload, per spec §4.1 and
// RFC 792.
func keyFromEmbeddedDatagram(data []byte) (CorrelationKey, []byte, error) {
	if len(data) < IPv4HeaderLen+4 {
		return CorrelationKey{}, nil, newDecodeError(ErrPacketTooSmall)
	}
	ihl := int(data[0]&0x0f) * 4
	if ihl < IPv4HeaderLen || len(data) < ihl+4 {
		return CorrelationKey{}, nil, newDecodeError(ErrPacketTooSmall)
	}
	proto := data[9]
	inner := data[ihl:]

	switch proto {
	case 1: // ICMP
		if len(inner) < 8 {
			return CorrelationKey{}, nil, newDecodeError(ErrPacketTooSmall)
		}
		identifier := uint16(inner[4])<<8 | uint16(inner[5])
		sequence := uint16(inner[6])<<8 | uint16(inner[7])
		return ICMPEchoKey(identifier, sequence), inner, nil

	case 17: // UDP
		if len(inner) < 4 {
			return CorrelationKey{}, nil, newDecodeError(ErrPacketTooSmall)
		}
		src := uint16(inner[0])<<8 | uint16(inner[1])
		dst := uint16(inner[2])<<8 | uint16(inner[3])
		return UDPPortsKey(src, dst), inner, nil

	case 6: // TCP
		if len(inner) < 4 {
			return CorrelationKey{}, nil, newDecodeError(ErrPacketTooSmall)
		}
		src := uint16(inner[0])<<8 | uint16(inner[1])
		dst := uint16(inner[2])<<8 | uint16(inner[3])
		return TCPTupleKey(src, dst), inner, nil

	default:
		return CorrelationKey{}, nil, newDecodeError(ErrUnknownICMPType)
	}
}

// EchoReplyPayloadPattern reports whether an Echo Reply's payload matches
// the pattern byte the probe was built with, a sanity check used by tests
// to verify encode/decode round trips carry the payload unmodified.
func EchoReplyPayloadPattern(payload []byte, pattern byte) bool {
	return bytes.Count(payload, []byte{pattern}) == len(payload)
}
