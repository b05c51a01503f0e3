package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/hervehildenbrand/trippy/pkg/hop"
)

// TextExporter renders a Snapshot as a human-readable table, the same
// shape the teacher's batch mode prints after a run completes.
type TextExporter struct{}

func (e *TextExporter) Export(w io.Writer, target Target, snap hop.Snapshot, hostnames HostnameLookup) error {
	if hostnames == nil {
		hostnames = noHostnames
	}
	fmt.Fprintf(w, "Trace to %s (%s)\n", target.Host, target.IP)
	if target.Protocol != "" {
		fmt.Fprintf(w, "Protocol: %s\n", target.Protocol)
	}
	fmt.Fprintln(w, strings.Repeat("=", 70))

	for _, h := range snap.Hops {
		writeHop(w, h, hostnames)
	}

	fmt.Fprintln(w, strings.Repeat("=", 70))
	if snap.IsDone {
		fmt.Fprintf(w, "Trace finished after %d rounds\n", snap.RoundCount)
	} else {
		fmt.Fprintf(w, "Trace in progress, %d rounds so far\n", snap.RoundCount)
	}
	return nil
}

func writeHop(w io.Writer, h hop.View, hostnames HostnameLookup) {
	if len(h.Addrs) == 0 {
		fmt.Fprintf(w, "%2d  * * * (no response)\n", h.TTL)
		return
	}

	line := fmt.Sprintf("%2d  %s", h.TTL, h.Addrs[0].Addr)
	if name := hostnames(h.Addrs[0].Addr.String()); name != "" {
		line += fmt.Sprintf(" (%s)", name)
	}
	fmt.Fprintln(w, line)

	if len(h.Addrs) > 1 {
		var extra []string
		for _, a := range h.Addrs[1:] {
			extra = append(extra, fmt.Sprintf("%s x%d", a.Addr, a.Count))
		}
		fmt.Fprintf(w, "    also: %s\n", strings.Join(extra, ", "))
	}

	fmt.Fprintf(w, "    last/best/worst/mean: %.2f/%.2f/%.2f/%.2fms  loss: %.1f%%\n",
		ms(h.Last), ms(h.Best), ms(h.Worst), ms(h.Mean), h.LossPct*100)
}
