package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/hervehildenbrand/trippy/pkg/hop"
)

// CSVExporter renders a Snapshot as one row per hop.
type CSVExporter struct{}

func (e *CSVExporter) Export(w io.Writer, target Target, snap hop.Snapshot, hostnames HostnameLookup) error {
	if hostnames == nil {
		hostnames = noHostnames
	}
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"ttl", "addr", "hostname", "total_sent", "total_recv", "last_ms", "best_ms", "worst_ms", "mean_ms", "loss_percent"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, h := range snap.Hops {
		if err := writer.Write(hopRow(h, hostnames)); err != nil {
			return fmt.Errorf("write row for ttl %d: %w", h.TTL, err)
		}
	}
	return nil
}

func hopRow(h hop.View, hostnames HostnameLookup) []string {
	addr, hostname := "", ""
	if len(h.Addrs) > 0 {
		addr = h.Addrs[0].Addr.String()
		hostname = hostnames(addr)
	}
	return []string{
		fmt.Sprintf("%d", h.TTL),
		addr,
		hostname,
		fmt.Sprintf("%d", h.TotalSent),
		fmt.Sprintf("%d", h.TotalRecv),
		fmt.Sprintf("%.2f", ms(h.Last)),
		fmt.Sprintf("%.2f", ms(h.Best)),
		fmt.Sprintf("%.2f", ms(h.Worst)),
		fmt.Sprintf("%.2f", ms(h.Mean)),
		fmt.Sprintf("%.2f", h.LossPct*100),
	}
}
