package packet

import (
	"encoding/binary"
	"net"
)

const (
	tcpFlagSYN = 0x02
)

// EncodeTCPSYN builds a bare TCP SYN segment (RFC 793) with no payload: the
// given source/destination ports, an initial sequence number, and the
// checksum computed over the IPv4 pseudo-header + TCP header. As with
// EncodeUDPProbe, srcIP/dstIP are only used for the checksum; TTL and
// addressing remain the Channel's responsibility.
func EncodeTCPSYN(srcIP, dstIP net.IP, srcPort, dstPort uint16, seq uint32) []byte {
	buf := make([]byte, TCPHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], srcPort)
	binary.BigEndian.PutUint16(buf[2:4], dstPort)
	binary.BigEndian.PutUint32(buf[4:8], seq)
	binary.BigEndian.PutUint32(buf[8:12], 0) // ack number, unused for SYN
	buf[12] = (TCPHeaderLen / 4) << 4        // data offset, no options
	buf[13] = tcpFlagSYN
	binary.BigEndian.PutUint16(buf[14:16], 65535) // window
	// checksum field (16:18) left zero while summing
	binary.BigEndian.PutUint16(buf[18:20], 0) // urgent pointer

	pseudo := tcpPseudoHeader(srcIP, dstIP, uint16(len(buf)))
	sum := checksum(append(pseudo, buf...))
	binary.BigEndian.PutUint16(buf[16:18], sum)
	return buf
}

func tcpPseudoHeader(srcIP, dstIP net.IP, tcpLen uint16) []byte {
	pseudo := make([]byte, 12)
	copy(pseudo[0:4], srcIP.To4())
	copy(pseudo[4:8], dstIP.To4())
	pseudo[8] = 0
	pseudo[9] = 6 // TCP protocol number
	binary.BigEndian.PutUint16(pseudo[10:12], tcpLen)
	return pseudo
}

// DecodeTCPHeader reads the source/destination ports and sequence number
// out of a raw TCP header prefix.
func DecodeTCPHeader(raw []byte) (srcPort, dstPort uint16, seq uint32, ok bool) {
	if len(raw) < 8 {
		return 0, 0, 0, false
	}
	srcPort = binary.BigEndian.Uint16(raw[0:2])
	dstPort = binary.BigEndian.Uint16(raw[2:4])
	seq = binary.BigEndian.Uint32(raw[4:8])
	return srcPort, dstPort, seq, true
}
