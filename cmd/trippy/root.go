package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hervehildenbrand/trippy/internal/channel"
	"github.com/hervehildenbrand/trippy/internal/mcpserver"
	"github.com/hervehildenbrand/trippy/internal/privilege"
	"github.com/hervehildenbrand/trippy/internal/report"
	"github.com/hervehildenbrand/trippy/internal/resolve"
	"github.com/hervehildenbrand/trippy/internal/runner"
	"github.com/hervehildenbrand/trippy/internal/tracer"
	"github.com/hervehildenbrand/trippy/internal/tui"
)

// Config holds the parsed CLI configuration, the same shape the teacher's
// cmd/gtrace/root.go builds from cobra flags.
type Config struct {
	Target      string
	Protocol    string
	MaxHops     int
	Rounds      int
	Timeout     string
	Simple      bool
	NoResolve   bool
	Output      string
	Format      string
	IPv4Only    bool
	IPv6Only    bool
	DryRun      bool
	ResolveSize int
}

var validProtocols = map[string]bool{"icmp": true, "udp": true, "tcp": true}

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "trippy <target>",
		Short: "Interactive network path diagnostic tool",
		Long: `trippy probes a path hop by hop like traceroute, but keeps probing in
rounds and accumulates per-hop loss and latency statistics like mtr,
rendered as a live terminal table or exported as JSON/CSV/text.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !validProtocols[cfg.Protocol] {
				return fmt.Errorf("invalid protocol %q: must be icmp, udp, or tcp", cfg.Protocol)
			}
			if cfg.IPv4Only && cfg.IPv6Only {
				return fmt.Errorf("-4/--ipv4 and -6/--ipv6 are mutually exclusive")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Target = args[0]
			if cfg.DryRun {
				return nil
			}
			return runTrippy(cmd, &cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.Protocol, "protocol", "icmp", "Probe protocol: icmp|udp|tcp")
	cmd.Flags().IntVar(&cfg.MaxHops, "max-hops", 30, "Maximum TTL to probe")
	cmd.Flags().IntVar(&cfg.Rounds, "rounds", 0, "Rounds to run before printing the report in --simple/--output mode (0 = 3 rounds)")
	cmd.Flags().StringVar(&cfg.Timeout, "timeout", "100ms", "Read timeout for each wait for a probe response")
	cmd.Flags().BoolVar(&cfg.Simple, "simple", false, "Print a final report instead of the live TUI")
	cmd.Flags().BoolVar(&cfg.NoResolve, "no-resolve", false, "Disable reverse DNS lookups")
	cmd.Flags().StringVarP(&cfg.Output, "output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().StringVar(&cfg.Format, "format", "", "Report format: json|csv|text (inferred from --output when omitted)")
	cmd.Flags().BoolVarP(&cfg.IPv4Only, "ipv4", "4", false, "Use IPv4 only")
	cmd.Flags().BoolVarP(&cfg.IPv6Only, "ipv6", "6", false, "Use IPv6 only")
	cmd.Flags().BoolVar(&cfg.DryRun, "dry-run", false, "Validate arguments without probing")
	cmd.Flags().IntVar(&cfg.ResolveSize, "resolve-cache-size", 256, "Reverse-DNS cache capacity")

	cmd.AddCommand(newMCPCmd())

	return cmd
}

func newMCPCmd() *cobra.Command {
	var noResolve bool
	var resolveSize int

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the traceroute tool over the Model Context Protocol (stdio)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resolver *resolve.Resolver
			if !noResolve {
				resolver = resolve.New(resolveSize)
			}
			ctx, cancel := signalContext()
			defer cancel()
			return mcpserver.Serve(ctx, resolver)
		},
	}
	cmd.Flags().BoolVar(&noResolve, "no-resolve", false, "Disable reverse DNS lookups in tool results")
	cmd.Flags().IntVar(&resolveSize, "resolve-cache-size", 256, "Reverse-DNS cache capacity")
	return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func protocolFromFlag(name string) tracer.Protocol {
	switch name {
	case "udp":
		return tracer.ProtocolUDP
	case "tcp":
		return tracer.ProtocolTCP
	default:
		return tracer.ProtocolICMP
	}
}

func addressFamily(cfg *Config) runner.AddressFamily {
	if cfg.IPv4Only {
		return runner.AddressFamilyIPv4
	}
	if cfg.IPv6Only {
		return runner.AddressFamilyIPv6
	}
	return runner.AddressFamilyAuto
}

func runTrippy(cmd *cobra.Command, cfg *Config) error {
	if err := privilege.Check(); err != nil {
		return err
	}

	readTimeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}

	var resolver *resolve.Resolver
	if !cfg.NoResolve {
		resolver = resolve.New(cfg.ResolveSize)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if cfg.Simple || cfg.Output != "" || !isInteractiveStdout(cmd) {
		return runSimple(ctx, cmd, cfg, resolver, readTimeout)
	}
	return runInteractive(ctx, cmd, cfg, resolver, readTimeout)
}

// isInteractiveStdout reports whether cmd's stdout is an attached terminal.
// The live Bubbletea table needs a real TTY to draw into; when stdout is
// redirected to a file or a pipe, trippy falls back to a single batch
// report the same way the teacher's cmd/gtrace/root.go checked isatty
// before handing off to its display.RunTUI.
func isInteractiveStdout(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func runSimple(ctx context.Context, cmd *cobra.Command, cfg *Config, resolver *resolve.Resolver, readTimeout time.Duration) error {
	rounds := cfg.Rounds
	if rounds == 0 {
		rounds = 3
	}

	result, err := runner.Run(ctx, runner.Options{
		Target:      cfg.Target,
		Family:      addressFamily(cfg),
		Protocol:    protocolFromFlag(cfg.Protocol),
		MaxTTL:      uint8(cfg.MaxHops),
		ReadTimeout: readTimeout,
		Rounds:      rounds,
	})
	if err != nil {
		return err
	}

	var hostnames report.HostnameLookup
	if resolver != nil {
		hostnames = func(ip string) string {
			lookupCtx, lookupCancel := context.WithTimeout(ctx, 500*time.Millisecond)
			defer lookupCancel()
			name, err := resolver.Lookup(lookupCtx, net.ParseIP(ip))
			if err != nil {
				return ""
			}
			return name
		}
	}

	target := report.Target{Host: cfg.Target, IP: result.TargetIP.String(), Protocol: cfg.Protocol}

	if cfg.Output != "" {
		format := report.DetectFormat(cfg.Output)
		if cfg.Format != "" {
			format = report.Format(cfg.Format)
		}
		if err := report.WriteFile(cfg.Output, format, target, result.Snapshot, hostnames); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", cfg.Output)
		return nil
	}

	exp, err := report.NewExporter(report.FormatText)
	if err != nil {
		return err
	}
	return exp.Export(cmd.OutOrStdout(), target, result.Snapshot, hostnames)
}

func runInteractive(ctx context.Context, cmd *cobra.Command, cfg *Config, resolver *resolve.Resolver, readTimeout time.Duration) error {
	targetIP, err := runner.ResolveTarget(cfg.Target, addressFamily(cfg))
	if err != nil {
		return err
	}

	raw, err := channel.NewRaw()
	if err != nil {
		return err
	}
	defer raw.Close()

	tcfg := tracer.DefaultConfig()
	tcfg.Protocol = protocolFromFlag(cfg.Protocol)
	tcfg.MaxTTL = uint8(cfg.MaxHops)
	tcfg.ReadTimeout = readTimeout

	tr, err := tracer.New(tcfg, targetIP, raw, uint16(time.Now().UnixNano()))
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	runErrCh := make(chan error, 1)
	go func() { runErrCh <- tr.Run(runCtx) }()

	model := tui.New(cfg.Target, targetIP.String(), tr, resolver, cancel)
	if err := tui.Run(model); err != nil {
		cancel()
		<-runErrCh
		return fmt.Errorf("TUI error: %w", err)
	}

	cancel()
	return <-runErrCh
}
