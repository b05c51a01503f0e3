// Package runner ties the tracing engine to a concrete destination and
// drives it for a caller-supplied number of rounds, returning a final
// snapshot. It exists because both the CLI (cmd/trippy's --simple/--output
// batch mode, which feeds internal/report) and internal/mcpserver need the identical
// resolve-target → check-privilege → open-socket → run-N-rounds sequence
// the teacher's cmd/gtrace/root.go inlines once per entrypoint; factoring
// it out avoids repeating that sequence a third time for the MCP tool.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/hervehildenbrand/trippy/internal/channel"
	"github.com/hervehildenbrand/trippy/internal/privilege"
	"github.com/hervehildenbrand/trippy/internal/tracer"
	"github.com/hervehildenbrand/trippy/pkg/hop"
)

// AddressFamily restricts target resolution, mirroring the teacher's -4/-6
// flags.
type AddressFamily int

const (
	AddressFamilyAuto AddressFamily = iota
	AddressFamilyIPv4
	AddressFamilyIPv6
)

// Options configures one bounded trace run.
type Options struct {
	Target        string
	Family        AddressFamily
	Protocol      tracer.Protocol
	MaxTTL        uint8
	ReadTimeout   time.Duration // 0 keeps tracer.DefaultConfig's read_timeout
	Rounds        int           // number of rounds to run before stopping; 0 means run until ctx is done
	PollInterval  time.Duration
	SkipPrivCheck bool // set by tests driving channel.Memory, which needs no raw socket
	Channel       channel.Channel

	// Logger receives structured diagnostic events (run start/stop,
	// privilege and socket errors); it never emits the user-facing report
	// itself. Defaults to slog.Default() when nil.
	Logger *slog.Logger
}

// ResolveTarget parses target as a literal IP or resolves it via DNS,
// grounded on the teacher's internal/trace.ResolveTarget, enforcing the
// requested address family either way.
func ResolveTarget(target string, family AddressFamily) (net.IP, error) {
	if ip := net.ParseIP(target); ip != nil {
		if err := checkFamily(ip, family); err != nil {
			return nil, err
		}
		return ip, nil
	}

	ips, err := net.LookupIP(target)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", target, err)
	}
	for _, ip := range ips {
		if checkFamily(ip, family) == nil {
			return ip, nil
		}
	}
	return nil, fmt.Errorf("no address for %q matches the requested address family", target)
}

func checkFamily(ip net.IP, family AddressFamily) error {
	isV4 := ip.To4() != nil
	switch family {
	case AddressFamilyIPv4:
		if !isV4 {
			return errors.New("IPv6 address provided but IPv4 required")
		}
	case AddressFamilyIPv6:
		if isV4 {
			return errors.New("IPv4 address provided but IPv6 required")
		}
	}
	return nil
}

// Result is the outcome of a bounded run.
type Result struct {
	TargetIP net.IP
	Snapshot hop.Snapshot
}

// Run resolves opts.Target, opens a raw channel (unless opts.Channel was
// supplied, the seam tests use to inject channel.Memory), drives the
// tracer for opts.Rounds rounds, and returns the final snapshot.
func Run(ctx context.Context, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	targetIP, err := ResolveTarget(opts.Target, opts.Family)
	if err != nil {
		log.Error("resolve target failed", "target", opts.Target, "error", err)
		return nil, err
	}
	log.Debug("target resolved", "target", opts.Target, "ip", targetIP.String())

	if !opts.SkipPrivCheck && opts.Channel == nil {
		if err := privilege.Check(); err != nil {
			log.Error("privilege check failed", "error", err)
			return nil, err
		}
	}

	ch := opts.Channel
	if ch == nil {
		raw, err := channel.NewRaw()
		if err != nil {
			log.Error("open raw socket failed", "error", err)
			return nil, err
		}
		defer raw.Close()
		ch = raw
	}

	cfg := tracer.DefaultConfig()
	cfg.Protocol = opts.Protocol
	if opts.MaxTTL != 0 {
		cfg.MaxTTL = opts.MaxTTL
	}
	if opts.ReadTimeout != 0 {
		cfg.ReadTimeout = opts.ReadTimeout
	}

	identifier := uint16(time.Now().UnixNano())
	tr, err := tracer.New(cfg, targetIP, ch, identifier)
	if err != nil {
		log.Error("tracer configuration invalid", "error", err)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- tr.Run(runCtx) }()

	log.Info("trace started", "target", opts.Target, "ip", targetIP.String(), "protocol", cfg.Protocol.String(), "rounds", opts.Rounds)

	poll := opts.PollInterval
	if poll <= 0 {
		poll = 20 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case err := <-runErrCh:
			if err != nil {
				log.Error("trace ended with error", "target", opts.Target, "error", err)
				return nil, err
			}
			snap := tr.Snapshot()
			log.Info("trace finished", "target", opts.Target, "rounds", snap.RoundCount, "hops", len(snap.Hops))
			return &Result{TargetIP: targetIP, Snapshot: snap}, nil
		case <-ctx.Done():
			tr.Shutdown()
			<-runErrCh
			snap := tr.Snapshot()
			log.Info("trace cancelled", "target", opts.Target, "rounds", snap.RoundCount)
			return &Result{TargetIP: targetIP, Snapshot: snap}, nil
		case <-ticker.C:
			snap := tr.Snapshot()
			if opts.Rounds > 0 && snap.RoundCount >= opts.Rounds {
				tr.Shutdown()
				<-runErrCh
				log.Info("trace finished", "target", opts.Target, "rounds", snap.RoundCount, "hops", len(snap.Hops))
				return &Result{TargetIP: targetIP, Snapshot: tr.Snapshot()}, nil
			}
		}
	}
}
