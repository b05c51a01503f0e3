package runner

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hervehildenbrand/trippy/internal/channel"
	"github.com/hervehildenbrand/trippy/internal/packet"
	"github.com/hervehildenbrand/trippy/internal/tracer"
)

func respondAfter(m *channel.Memory, dest net.IP, addrs map[uint8]net.IP, delay time.Duration) {
	m.OnSend(func(p channel.OutboundProbe, sentAt time.Time) {
		addr, ok := addrs[p.TTL]
		if !ok {
			return
		}
		kind := packet.KindTimeExceeded
		if addr.Equal(dest) {
			kind = packet.KindEchoReply
		}
		go func() {
			time.Sleep(delay)
			m.Deliver(&channel.ProbeResponse{
				Kind:   kind,
				Host:   addr,
				RecvAt: sentAt.Add(delay),
				Key:    packet.ICMPEchoKey(p.Identifier, p.Sequence),
			})
		}()
	})
}

func TestResolveTarget_AcceptsLiteralIPv4(t *testing.T) {
	ip, err := ResolveTarget("192.0.2.1", AddressFamilyAuto)
	if err != nil {
		t.Fatalf("ResolveTarget: %v", err)
	}
	if !ip.Equal(net.ParseIP("192.0.2.1")) {
		t.Errorf("got %v, want 192.0.2.1", ip)
	}
}

func TestResolveTarget_RejectsFamilyMismatch(t *testing.T) {
	if _, err := ResolveTarget("192.0.2.1", AddressFamilyIPv6); err == nil {
		t.Fatalf("expected error for IPv4 literal under -6")
	}
	if _, err := ResolveTarget("::1", AddressFamilyIPv4); err == nil {
		t.Fatalf("expected error for IPv6 literal under -4")
	}
}

func TestRun_ReturnsSnapshotAfterRequestedRounds(t *testing.T) {
	dest := net.ParseIP("192.0.2.1")
	mem := channel.NewMemory()
	respondAfter(mem, dest, map[uint8]net.IP{1: dest}, time.Millisecond)

	opts := Options{
		Target:        "192.0.2.1",
		Protocol:      tracer.ProtocolICMP,
		MaxTTL:        1,
		Rounds:        2,
		PollInterval:  time.Millisecond,
		SkipPrivCheck: true,
		Channel:       mem,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := Run(ctx, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.TargetIP.Equal(dest) {
		t.Errorf("TargetIP = %v, want %v", res.TargetIP, dest)
	}
	if res.Snapshot.RoundCount < 2 {
		t.Errorf("RoundCount = %d, want >= 2", res.Snapshot.RoundCount)
	}
	if !res.Snapshot.IsDone {
		t.Errorf("expected IsDone after Shutdown")
	}
}

func TestRun_StopsEarlyWhenContextCancelled(t *testing.T) {
	dest := net.ParseIP("192.0.2.1")
	mem := channel.NewMemory() // never responds: every probe times out

	opts := Options{
		Target:        "192.0.2.1",
		Protocol:      tracer.ProtocolICMP,
		MaxTTL:        1,
		Rounds:        0, // no round cutoff; only ctx cancellation stops it
		PollInterval:  time.Millisecond,
		SkipPrivCheck: true,
		Channel:       mem,
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	res, err := Run(ctx, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Snapshot.Hops) == 0 {
		t.Fatalf("expected a populated snapshot")
	}
}
