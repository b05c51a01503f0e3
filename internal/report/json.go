package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/hervehildenbrand/trippy/pkg/hop"
)

// ExportedTrace is the JSON representation of one Snapshot.
type ExportedTrace struct {
	Target     string        `json:"target"`
	TargetIP   string        `json:"targetIP"`
	Protocol   string        `json:"protocol,omitempty"`
	IsDone     bool          `json:"isDone"`
	RoundCount int           `json:"roundCount"`
	Hops       []ExportedHop `json:"hops"`
}

// ExportedHop is the JSON representation of one hop.View.
type ExportedHop struct {
	TTL         uint8          `json:"ttl"`
	Addrs       []ExportedAddr `json:"addrs,omitempty"`
	Hostname    string         `json:"hostname,omitempty"`
	TotalSent   int            `json:"totalSent"`
	TotalRecv   int            `json:"totalRecv"`
	LastMs      float64        `json:"lastMs"`
	BestMs      float64        `json:"bestMs"`
	WorstMs     float64        `json:"worstMs"`
	MeanMs      float64        `json:"meanMs"`
	StdDevMs    float64        `json:"stdDevMs"`
	LossPercent float64        `json:"lossPercent"`
}

// ExportedAddr is the JSON representation of one hop.AddrStat.
type ExportedAddr struct {
	Addr  string `json:"addr"`
	Count int    `json:"count"`
}

// JSONExporter renders a Snapshot as newline-terminated JSON.
type JSONExporter struct {
	Pretty bool
}

func (e *JSONExporter) Export(w io.Writer, target Target, snap hop.Snapshot, hostnames HostnameLookup) error {
	if hostnames == nil {
		hostnames = noHostnames
	}
	out := ExportedTrace{
		Target:     target.Host,
		TargetIP:   target.IP,
		Protocol:   target.Protocol,
		IsDone:     snap.IsDone,
		RoundCount: snap.RoundCount,
		Hops:       make([]ExportedHop, 0, len(snap.Hops)),
	}
	for _, h := range snap.Hops {
		out.Hops = append(out.Hops, convertHop(h, hostnames))
	}

	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}

func convertHop(h hop.View, hostnames HostnameLookup) ExportedHop {
	addrs := make([]ExportedAddr, 0, len(h.Addrs))
	hostname := ""
	for _, a := range h.Addrs {
		addrs = append(addrs, ExportedAddr{Addr: a.Addr.String(), Count: a.Count})
	}
	if len(h.Addrs) > 0 {
		hostname = hostnames(h.Addrs[0].Addr.String())
	}
	return ExportedHop{
		TTL:         h.TTL,
		Addrs:       addrs,
		Hostname:    hostname,
		TotalSent:   h.TotalSent,
		TotalRecv:   h.TotalRecv,
		LastMs:      ms(h.Last),
		BestMs:      ms(h.Best),
		WorstMs:     ms(h.Worst),
		MeanMs:      ms(h.Mean),
		StdDevMs:    ms(h.StdDev),
		LossPercent: h.LossPct,
	}
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
