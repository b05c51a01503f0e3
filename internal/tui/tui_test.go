package tui

import (
	"context"
	"net"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hervehildenbrand/trippy/internal/channel"
	"github.com/hervehildenbrand/trippy/internal/resolve"
	"github.com/hervehildenbrand/trippy/internal/tracer"
	"github.com/hervehildenbrand/trippy/pkg/hop"
)

func hopViewWithAddr(ip string) hop.View {
	return hop.View{
		TTL:   1,
		Addrs: []hop.AddrStat{{Addr: net.ParseIP(ip), Count: 1}},
	}
}

func newTestTracer(t *testing.T) *tracer.Tracer {
	t.Helper()
	cfg := tracer.DefaultConfig()
	cfg.FirstTTL, cfg.MaxTTL = 1, 3
	tr, err := tracer.New(cfg, net.ParseIP("192.0.2.1"), channel.NewMemory(), 1)
	if err != nil {
		t.Fatalf("tracer.New: %v", err)
	}
	return tr
}

func TestUpdate_TickMsgPullsSnapshotAndReschedules(t *testing.T) {
	m := New("example.com", "192.0.2.1", newTestTracer(t), nil, nil)

	updated, cmd := m.Update(tickMsg(time.Now()))
	mm := updated.(*Model)

	if len(mm.snapshot.Hops) == 0 {
		t.Fatalf("expected snapshot to be populated")
	}
	if cmd == nil {
		t.Fatalf("expected a follow-up command to be scheduled while trace is not done")
	}
}

func TestUpdate_QuitKeyCancelsAndReturnsQuitCmd(t *testing.T) {
	canceled := false
	cancel := func() { canceled = true }
	m := New("example.com", "192.0.2.1", newTestTracer(t), nil, cancel)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !canceled {
		t.Errorf("expected cancel to be invoked on 'q'")
	}
	if cmd == nil {
		t.Fatalf("expected a tea.Quit command")
	}
}

func TestUpdate_ResolvedMsgWritesHostnameWithoutRace(t *testing.T) {
	m := New("example.com", "192.0.2.1", newTestTracer(t), nil, nil)
	m.hostnames["192.0.2.1"] = ""

	updated, _ := m.Update(resolvedMsg{addr: "192.0.2.1", hostname: "router1.example.net"})
	mm := updated.(*Model)

	if got := mm.hostnames["192.0.2.1"]; got != "router1.example.net" {
		t.Errorf("hostnames[192.0.2.1] = %q, want router1.example.net", got)
	}
}

func TestResolveNewAddrs_SkipsAlreadyCachedAddr(t *testing.T) {
	m := New("example.com", "192.0.2.1", newTestTracer(t), resolve.New(16), nil)
	m.hostnames["192.0.2.1"] = "cached.example.net"
	m.snapshot.Hops = append(m.snapshot.Hops, hopViewWithAddr("192.0.2.1"))

	cmds := m.resolveNewAddrs()
	if len(cmds) != 0 {
		t.Errorf("expected no lookup commands for an already-cached address, got %d", len(cmds))
	}
}

func TestResolveNewAddrs_ReturnsNilWithoutResolver(t *testing.T) {
	m := New("example.com", "192.0.2.1", newTestTracer(t), nil, nil)
	m.snapshot.Hops = append(m.snapshot.Hops, hopViewWithAddr("192.0.2.1"))

	if cmds := m.resolveNewAddrs(); cmds != nil {
		t.Errorf("expected nil commands when resolver is nil, got %d", len(cmds))
	}
}

func TestResolvedMsgCmd_ReturnsHostnameMessage(t *testing.T) {
	m := New("example.com", "192.0.2.1", newTestTracer(t), resolve.New(16), nil)
	m.snapshot.Hops = append(m.snapshot.Hops, hopViewWithAddr("192.0.2.1"))

	cmds := m.resolveNewAddrs()
	if len(cmds) != 1 {
		t.Fatalf("len(cmds) = %d, want 1", len(cmds))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan tea.Msg, 1)
	go func() { done <- cmds[0]() }()

	select {
	case msg := <-done:
		rm, ok := msg.(resolvedMsg)
		if !ok {
			t.Fatalf("got %T, want resolvedMsg", msg)
		}
		if rm.addr != "192.0.2.1" {
			t.Errorf("addr = %q, want 192.0.2.1", rm.addr)
		}
	case <-ctx.Done():
		t.Fatalf("lookup command did not complete in time")
	}
}
