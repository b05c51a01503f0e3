package packet

import (
	"encoding/binary"
	"net"
)

// EncodeUDPProbe builds a UDP header (RFC 768) plus a payload padded to
// payloadLen bytes of pattern, with the checksum computed over the IPv4
// pseudo-header + UDP header + payload per RFC 768 §"Checksum". srcIP and
// dstIP are only used for the checksum pseudo-header; the IP header itself
// is not built here — per spec §4.1 the outgoing TTL and source/destination
// addressing are socket-level concerns owned by the Channel, not this
// codec.
func EncodeUDPProbe(srcIP, dstIP net.IP, srcPort, dstPort uint16, payloadLen int, pattern byte) []byte {
	payload := make([]byte, payloadLen)
	for i := range payload {
		payload[i] = pattern
	}

	total := UDPHeaderLen + len(payload)
	buf := make([]byte, total)
	binary.BigEndian.PutUint16(buf[0:2], srcPort)
	binary.BigEndian.PutUint16(buf[2:4], dstPort)
	binary.BigEndian.PutUint16(buf[4:6], uint16(total))
	// checksum field left zero while summing
	copy(buf[UDPHeaderLen:], payload)

	pseudo := udpPseudoHeader(srcIP, dstIP, uint16(total))
	sum := checksum(append(pseudo, buf...))
	if sum == 0 {
		sum = 0xffff // RFC 768: a computed checksum of zero is transmitted as all-ones
	}
	binary.BigEndian.PutUint16(buf[6:8], sum)
	return buf
}

func udpPseudoHeader(srcIP, dstIP net.IP, udpLen uint16) []byte {
	pseudo := make([]byte, 12)
	copy(pseudo[0:4], srcIP.To4())
	copy(pseudo[4:8], dstIP.To4())
	pseudo[8] = 0
	pseudo[9] = 17 // UDP protocol number
	binary.BigEndian.PutUint16(pseudo[10:12], udpLen)
	return pseudo
}

// DecodeUDPPorts reads the source/destination ports out of a raw UDP
// header. Decode does not call it; it reads the embedded ports of an ICMP
// error in keyFromEmbeddedDatagram.
func DecodeUDPPorts(raw []byte) (srcPort, dstPort uint16, ok bool) {
	if len(raw) < 4 {
		return 0, 0, false
	}
	return binary.BigEndian.Uint16(raw[0:2]), binary.BigEndian.Uint16(raw[2:4]), true
}
