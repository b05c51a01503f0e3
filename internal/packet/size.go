package packet

import "errors"

// ErrPacketSizeTooSmall is returned by PayloadLen when packet_size does not
// leave room for the IP and protocol headers, per spec §6's packet-size
// contract.
var ErrPacketSizeTooSmall = errors.New("packet_size too small for headers")

// PayloadLen computes the payload length for a probe of the given total
// IP-datagram size and protocol: packet_size minus the IPv4 header (20
// bytes) and the protocol header (8 bytes for ICMP/UDP, 20 for TCP).
func PayloadLen(packetSize uint16, proto Protocol) (int, error) {
	hdr := IPv4HeaderLen + HeaderLen(proto)
	if int(packetSize) < hdr {
		return 0, ErrPacketSizeTooSmall
	}
	return int(packetSize) - hdr, nil
}
