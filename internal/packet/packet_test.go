package packet

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

func fakeIPv4Header(proto byte) []byte {
	h := make([]byte, IPv4HeaderLen)
	h[0] = 0x45 // version 4, IHL 5 (20 bytes)
	h[9] = proto
	return h
}

// correlation projects the fields of a decoded Response that a round trip
// must preserve exactly, leaving OriginalPayload (whose exact bytes this
// package never promises to echo back verbatim) out of the comparison.
type correlation struct {
	Kind          ResponseKindWire
	Key           CorrelationKey
	ChecksumValid bool
}

func correlationOf(r *Response) correlation {
	return correlation{Kind: r.Kind, Key: r.Key, ChecksumValid: r.ChecksumValid}
}

func TestEncodeEchoRequest_RoundTripsAsEchoReply(t *testing.T) {
	raw, err := EncodeEchoRequest(1234, 7, 32, 0xAB)
	if err != nil {
		t.Fatalf("EncodeEchoRequest: %v", err)
	}

	// Flip the outbound Echo Request into an inbound Echo Reply, as the
	// destination host would: same ID/Seq/Data, type changed to 0.
	msg, err := icmp.ParseMessage(1, raw)
	if err != nil {
		t.Fatalf("parse outbound message: %v", err)
	}
	echo := msg.Body.(*icmp.Echo)
	reply := &icmp.Message{Type: ipv4.ICMPTypeEchoReply, Code: 0, Body: echo}
	replyBytes, err := reply.Marshal(nil)
	if err != nil {
		t.Fatalf("marshal reply: %v", err)
	}

	resp, err := Decode(replyBytes)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := correlation{Kind: KindEchoReply, Key: ICMPEchoKey(1234, 7), ChecksumValid: true}
	if diff := cmp.Diff(want, correlationOf(resp)); diff != "" {
		t.Errorf("decoded correlation mismatch (-want +got):\n%s", diff)
	}
	if !EchoReplyPayloadPattern(echo.Data, 0xAB) {
		t.Error("payload pattern not preserved across round trip")
	}
}

func TestDecode_TimeExceeded_ICMPEchoCorrelation(t *testing.T) {
	inner := fakeIPv4Header(1) // protocol 1 = ICMP
	icmpHdr := make([]byte, 8)
	binary.BigEndian.PutUint16(icmpHdr[4:6], 55) // identifier
	binary.BigEndian.PutUint16(icmpHdr[6:8], 9)  // sequence
	embedded := append(inner, icmpHdr...)

	msg := &icmp.Message{
		Type: ipv4.ICMPTypeTimeExceeded,
		Code: 0,
		Body: &icmp.TimeExceeded{Data: embedded},
	}
	raw, err := msg.Marshal(nil)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	resp, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := correlation{Kind: KindTimeExceeded, Key: ICMPEchoKey(55, 9), ChecksumValid: true}
	if diff := cmp.Diff(want, correlationOf(resp)); diff != "" {
		t.Errorf("decoded correlation mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_TimeExceeded_UDPCorrelation(t *testing.T) {
	inner := fakeIPv4Header(17) // protocol 17 = UDP
	udpHdr := make([]byte, 8)
	binary.BigEndian.PutUint16(udpHdr[0:2], 40001)
	binary.BigEndian.PutUint16(udpHdr[2:4], 33434)
	embedded := append(inner, udpHdr...)

	msg := &icmp.Message{
		Type: ipv4.ICMPTypeTimeExceeded,
		Code: 0,
		Body: &icmp.TimeExceeded{Data: embedded},
	}
	raw, err := msg.Marshal(nil)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	resp, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := correlation{Kind: KindTimeExceeded, Key: UDPPortsKey(40001, 33434), ChecksumValid: true}
	if diff := cmp.Diff(want, correlationOf(resp)); diff != "" {
		t.Errorf("decoded correlation mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_DestinationUnreachable_TCPCorrelation(t *testing.T) {
	inner := fakeIPv4Header(6) // protocol 6 = TCP
	tcpHdr := make([]byte, 8)
	binary.BigEndian.PutUint16(tcpHdr[0:2], 54000)
	binary.BigEndian.PutUint16(tcpHdr[2:4], 80)
	binary.BigEndian.PutUint16(tcpHdr[4:6], 0x1234) // embedded sequence, ignored by the key
	embedded := append(inner, tcpHdr...)

	msg := &icmp.Message{
		Type: ipv4.ICMPTypeDestinationUnreachable,
		Code: 3,
		Body: &icmp.DstUnreach{Data: embedded},
	}
	raw, err := msg.Marshal(nil)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	resp, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := correlation{Kind: KindDestinationUnreachable, Key: TCPTupleKey(54000, 80), ChecksumValid: true}
	if diff := cmp.Diff(want, correlationOf(resp)); diff != "" {
		t.Errorf("decoded correlation mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_PacketTooSmall(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected error for too-small packet")
	}
}

func TestEncodeUDPProbe_ChecksumVerifies(t *testing.T) {
	src := net.ParseIP("192.0.2.1")
	dst := net.ParseIP("198.51.100.1")
	buf := EncodeUDPProbe(src, dst, 40000, 33434, 12, 0x00)

	if len(buf) != UDPHeaderLen+12 {
		t.Fatalf("len = %d, want %d", len(buf), UDPHeaderLen+12)
	}
	srcPort, dstPort, ok := DecodeUDPPorts(buf)
	type ports struct {
		Src, Dst uint16
		OK       bool
	}
	if diff := cmp.Diff(ports{40000, 33434, true}, ports{srcPort, dstPort, ok}); diff != "" {
		t.Errorf("decoded UDP ports mismatch (-want +got):\n%s", diff)
	}

	pseudo := udpPseudoHeader(src, dst, uint16(len(buf)))
	full := append(pseudo, buf...)
	if !verifyChecksum(full) {
		t.Error("UDP checksum does not verify over pseudo-header + segment")
	}
}

func TestEncodeTCPSYN_SetsSYNFlagAndChecksumVerifies(t *testing.T) {
	src := net.ParseIP("192.0.2.1")
	dst := net.ParseIP("198.51.100.1")
	buf := EncodeTCPSYN(src, dst, 51000, 80, 0xdeadbeef)

	if len(buf) != TCPHeaderLen {
		t.Fatalf("len = %d, want %d", len(buf), TCPHeaderLen)
	}
	if buf[13]&tcpFlagSYN == 0 {
		t.Error("SYN flag not set")
	}
	srcPort, dstPort, seq, ok := DecodeTCPHeader(buf)
	type header struct {
		Src, Dst uint16
		Seq      uint32
		OK       bool
	}
	if diff := cmp.Diff(header{51000, 80, 0xdeadbeef, true}, header{srcPort, dstPort, seq, ok}); diff != "" {
		t.Errorf("decoded TCP header mismatch (-want +got):\n%s", diff)
	}

	pseudo := tcpPseudoHeader(src, dst, uint16(len(buf)))
	full := append(pseudo, buf...)
	if !verifyChecksum(full) {
		t.Error("TCP checksum does not verify over pseudo-header + segment")
	}
}

func TestPayloadLen_RejectsTooSmallPacketSize(t *testing.T) {
	if _, err := PayloadLen(10, ProtocolICMP); err == nil {
		t.Fatal("expected error for packet_size smaller than headers")
	}
	n, err := PayloadLen(64, ProtocolICMP)
	if err != nil {
		t.Fatalf("PayloadLen: %v", err)
	}
	if n != 64-IPv4HeaderLen-ICMPHeaderLen {
		t.Errorf("n = %d", n)
	}
}
