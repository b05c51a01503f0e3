package report

import (
	"bytes"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/hervehildenbrand/trippy/pkg/hop"
)

func sampleSnapshot() hop.Snapshot {
	return hop.Snapshot{
		RoundCount: 3,
		IsDone:     true,
		Hops: []hop.View{
			{
				TTL:       1,
				Addrs:     []hop.AddrStat{{Addr: net.ParseIP("192.0.2.1"), Count: 3}},
				TotalSent: 3, TotalRecv: 3,
				Last: 10 * time.Millisecond, Best: 8 * time.Millisecond, Worst: 12 * time.Millisecond,
				Mean: 10 * time.Millisecond,
			},
			{
				TTL:       2,
				TotalSent: 3, TotalRecv: 0,
				LossPct: 1.0,
			},
		},
	}
}

func TestDetectFormat_InfersFromExtension(t *testing.T) {
	cases := map[string]Format{"out.json": FormatJSON, "out.csv": FormatCSV, "out.txt": FormatText, "out": FormatJSON}
	for name, want := range cases {
		if got := DetectFormat(name); got != want {
			t.Errorf("DetectFormat(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestJSONExporter_RoundTripsHopFields(t *testing.T) {
	var buf bytes.Buffer
	e := &JSONExporter{}
	if err := e.Export(&buf, Target{Host: "example.com", IP: "192.0.2.1"}, sampleSnapshot(), nil); err != nil {
		t.Fatalf("Export: %v", err)
	}

	var out ExportedTrace
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(out.Hops) != 2 {
		t.Fatalf("len(Hops) = %d, want 2", len(out.Hops))
	}
	if out.Hops[0].LastMs != 10 {
		t.Errorf("LastMs = %v, want 10", out.Hops[0].LastMs)
	}
	if out.Hops[1].LossPercent != 1.0 {
		t.Errorf("LossPercent = %v, want 1.0", out.Hops[1].LossPercent)
	}
}

func TestCSVExporter_WritesHeaderAndOneRowPerHop(t *testing.T) {
	var buf bytes.Buffer
	e := &CSVExporter{}
	if err := e.Export(&buf, Target{}, sampleSnapshot(), nil); err != nil {
		t.Fatalf("Export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 { // header + 2 hops
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
}

func TestTextExporter_MarksSilentHopWithNoResponse(t *testing.T) {
	var buf bytes.Buffer
	e := &TextExporter{}
	if err := e.Export(&buf, Target{Host: "example.com", IP: "192.0.2.1"}, hop.Snapshot{
		Hops: []hop.View{{TTL: 1}},
	}, nil); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(buf.String(), "no response") {
		t.Errorf("output = %q, want a no-response marker", buf.String())
	}
}

func TestTextExporter_UsesHostnameLookupWhenProvided(t *testing.T) {
	var buf bytes.Buffer
	e := &TextExporter{}
	hostnames := func(ip string) string {
		if ip == "192.0.2.1" {
			return "router1.example.net"
		}
		return ""
	}
	if err := e.Export(&buf, Target{}, sampleSnapshot(), hostnames); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(buf.String(), "router1.example.net") {
		t.Errorf("output missing resolved hostname: %q", buf.String())
	}
}
