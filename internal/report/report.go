// Package report implements the batch report formatters spec §1 lists as
// an external collaborator: JSON, CSV, and human-readable text renderings
// of a hop.Snapshot, for one-shot (non-interactive) runs of trippy.
//
// Grounded on the teacher's internal/export package (Exporter interface,
// Format detection, per-format exporters), adapted from its
// hop.TraceResult/hop.Hop/hop.Enrichment-shaped model to this engine's
// hop.Snapshot/hop.View, and with the ASN/geo/MPLS enrichment columns
// dropped along with the enrichment sources that produced them (see
// DESIGN.md).
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hervehildenbrand/trippy/pkg/hop"
)

// Target describes the destination metadata a report's header lines
// need, independent of the per-hop statistics in the Snapshot itself.
type Target struct {
	Host     string
	IP       string
	Protocol string
}

// HostnameLookup resolves an IP to a display hostname, or returns "" if
// none is known. Formatters call it once per hop address while rendering;
// the callers in this module back it with internal/resolve.Resolver.Lookup
// under a per-call timeout.
type HostnameLookup func(ip string) string

// Exporter renders one Snapshot to w.
type Exporter interface {
	Export(w io.Writer, target Target, snap hop.Snapshot, hostnames HostnameLookup) error
}

// Format selects an Exporter implementation.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatText Format = "text"
)

// DetectFormat infers a Format from a filename's extension, defaulting to
// JSON when the extension is unrecognized.
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV
	case ".txt", ".text":
		return FormatText
	default:
		return FormatJSON
	}
}

// NewExporter constructs the Exporter for format.
func NewExporter(format Format) (Exporter, error) {
	switch format {
	case FormatJSON:
		return &JSONExporter{}, nil
	case FormatCSV:
		return &CSVExporter{}, nil
	case FormatText, "txt":
		return &TextExporter{}, nil
	default:
		return nil, fmt.Errorf("report: unsupported format %q", format)
	}
}

// WriteFile renders snap to filename, inferring the format from the
// extension when format is empty.
func WriteFile(filename string, format Format, target Target, snap hop.Snapshot, hostnames HostnameLookup) error {
	if format == "" {
		format = DetectFormat(filename)
	}
	exporter, err := NewExporter(format)
	if err != nil {
		return err
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", filename, err)
	}
	defer f.Close()

	if err := exporter.Export(f, target, snap, hostnames); err != nil {
		return fmt.Errorf("report: export to %s: %w", filename, err)
	}
	return nil
}

func noHostnames(string) string { return "" }
