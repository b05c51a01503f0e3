// Package tracer drives the round-based probing loop (spec §4.5): it
// orchestrates the Prober and State components within time-bounded
// rounds, detects round boundaries, and handles cooperative cancellation.
//
// Grounded on the teacher's internal/trace/tracer.go (Config/Validate
// shape, error taxonomy) and continuous.go (the cycle-driving loop,
// restructured from a cycle-per-Trace()-call model into a single
// always-running round loop with internal round boundaries instead of
// discrete Trace() invocations).
package tracer

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/hervehildenbrand/trippy/internal/channel"
	"github.com/hervehildenbrand/trippy/internal/packet"
	"github.com/hervehildenbrand/trippy/internal/prober"
	"github.com/hervehildenbrand/trippy/internal/state"
	"github.com/hervehildenbrand/trippy/pkg/hop"
)

// Protocol mirrors packet.Protocol at the public API boundary so callers
// configuring a Tracer never need to import internal/packet directly.
type Protocol = packet.Protocol

const (
	ProtocolICMP = packet.ProtocolICMP
	ProtocolUDP  = packet.ProtocolUDP
	ProtocolTCP  = packet.ProtocolTCP
)

// Config is the full Configuration enumerated in spec §3.
type Config struct {
	FirstTTL    uint8
	MaxTTL      uint8
	MinSequence uint16
	MaxInflight uint8
	Protocol    Protocol
	PacketSize  uint16
	Pattern     byte
	SourcePort  uint16 // 0 means unconfigured
	DestPort    uint16 // UDP base / TCP fixed destination port

	MinRoundDuration time.Duration
	MaxRoundDuration time.Duration
	GraceDuration    time.Duration
	ReadTimeout      time.Duration
	MaxUnknownHops   uint8

	SampleCap int
}

// DefaultConfig mirrors the teacher's DefaultConfig, adapted to the round
// model's additional timing fields.
func DefaultConfig() Config {
	return Config{
		FirstTTL:         1,
		MaxTTL:           30,
		MinSequence:      33000,
		MaxInflight:      16,
		Protocol:         ProtocolICMP,
		PacketSize:       64,
		Pattern:          0,
		DestPort:         33434,
		MinRoundDuration: time.Second,
		MaxRoundDuration: 5 * time.Second,
		GraceDuration:    50 * time.Millisecond,
		ReadTimeout:      100 * time.Millisecond,
		MaxUnknownHops:   10,
		SampleCap:        64,
	}
}

// ConfigError reports an invalid Configuration; fatal at construction
// (spec §7).
type ConfigError struct{ Err error }

func (e *ConfigError) Error() string { return fmt.Sprintf("invalid tracer config: %v", e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// Validate checks the Configuration invariants spec §6 names explicitly.
func (c Config) Validate() error {
	if c.FirstTTL == 0 || c.FirstTTL > c.MaxTTL {
		return &ConfigError{Err: fmt.Errorf("first_ttl (%d) must be in [1, max_ttl (%d)]", c.FirstTTL, c.MaxTTL)}
	}
	if c.MaxInflight == 0 {
		return &ConfigError{Err: fmt.Errorf("max_inflight must be positive")}
	}
	if _, err := packet.PayloadLen(c.PacketSize, c.Protocol); err != nil {
		return &ConfigError{Err: err}
	}
	if c.MinRoundDuration <= 0 || c.MaxRoundDuration <= 0 {
		return &ConfigError{Err: fmt.Errorf("round durations must be positive")}
	}
	if c.MaxRoundDuration < c.MinRoundDuration {
		return &ConfigError{Err: fmt.Errorf("max_round_duration must be >= min_round_duration")}
	}
	if c.ReadTimeout <= 0 {
		return &ConfigError{Err: fmt.Errorf("read_timeout must be positive")}
	}
	return nil
}

// Tracer is the public engine entrypoint (spec §6).
type Tracer struct {
	cfg      Config
	dest     net.IP
	ch       channel.Channel
	prober   *prober.Prober
	state    *state.Store
	shutdown atomic.Bool
}

// New validates cfg and constructs a Tracer against dest, communicating
// over ch. identifier is the 16-bit ICMP-echo discriminant for this run;
// callers derive it once (cmd/trippy and internal/runner take the low 16
// bits of the start time in nanoseconds) and hold it stable across the
// tracer's lifetime.
func New(cfg Config, dest net.IP, ch channel.Channel, identifier uint16) (*Tracer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dest == nil || dest.To4() == nil {
		return nil, &ConfigError{Err: fmt.Errorf("destination must be a valid IPv4 address")}
	}

	pCfg := prober.Config{
		FirstTTL:      cfg.FirstTTL,
		MaxTTL:        cfg.MaxTTL,
		MinSequence:   cfg.MinSequence,
		MaxInflight:   cfg.MaxInflight,
		Protocol:      cfg.Protocol,
		PacketSize:    cfg.PacketSize,
		Pattern:       cfg.Pattern,
		SourcePort:    cfg.SourcePort,
		DestPort:      cfg.DestPort,
		TCPSourceBase: 20000,
	}

	return &Tracer{
		cfg:    cfg,
		dest:   dest,
		ch:     ch,
		prober: prober.New(pCfg, identifier, dest),
		state:  state.New(cfg.FirstTTL, cfg.MaxTTL, cfg.SampleCap),
	}, nil
}

// Run blocks, driving rounds until ctx is cancelled or Shutdown is
// called. It returns the fatal error that stopped the loop, or nil on
// clean cancellation.
func (t *Tracer) Run(ctx context.Context) error {
	defer t.state.SetDone(true)

	round := 0
	for {
		if ctx.Err() != nil || t.shutdown.Load() {
			return nil
		}

		if err := t.runRound(ctx, round); err != nil {
			return err
		}
		round++
		t.state.SetRoundCount(round)
	}
}

// runRound drives a single round to completion per spec §4.5's three-step
// loop and round-end conditions.
func (t *Tracer) runRound(ctx context.Context, round int) error {
	t.prober.StartRound(round)
	roundStart := time.Now()
	var targetReachedAt time.Time

	for {
		if ctx.Err() != nil || t.shutdown.Load() {
			return nil
		}

		// Step 1: emit everything ready to go right now.
		for {
			res, ev, err := t.prober.Emit(t.ch)
			if err != nil {
				return err
			}
			if ev.TTL != 0 {
				t.state.Apply(ev)
			}
			if res == prober.EmitNone || res == prober.EmitDone {
				break
			}
		}

		// Step 2: read at most one response, bounded by read_timeout.
		resp, err := t.ch.RecvProbeResponse(t.cfg.ReadTimeout)
		if err != nil {
			return err
		}
		if resp != nil {
			if _, ev, ok := t.prober.HandleResponse(resp); ok {
				t.state.Apply(ev)
			}
		}

		reached, _ := t.prober.TargetReached()
		if reached && targetReachedAt.IsZero() {
			targetReachedAt = time.Now()
		}

		// Step 3: check round-boundary conditions.
		elapsed := time.Since(roundStart)
		if t.roundShouldEnd(elapsed, reached, targetReachedAt) {
			t.prober.SweepAwaitReply()
			return nil
		}
	}
}

// roundShouldEnd implements spec §4.5's three round-end disjuncts.
func (t *Tracer) roundShouldEnd(elapsed time.Duration, reached bool, reachedAt time.Time) bool {
	if elapsed >= t.cfg.MaxRoundDuration {
		return true
	}
	if elapsed < t.cfg.MinRoundDuration {
		return false
	}
	if reached && !reachedAt.IsZero() && time.Since(reachedAt) >= t.cfg.GraceDuration {
		return true
	}
	if t.prober.ConsecutiveUnknownHops() >= int(t.cfg.MaxUnknownHops) {
		return true
	}
	return false
}

// Snapshot returns the current immutable view of per-hop statistics.
func (t *Tracer) Snapshot() hop.Snapshot { return t.state.Snapshot() }

// Reset clears accumulated statistics without stopping the loop.
func (t *Tracer) Reset() { t.state.Reset() }

// Shutdown requests cooperative termination; Run returns after the
// current iteration's read_timeout elapses at the latest.
func (t *Tracer) Shutdown() { t.shutdown.Store(true) }
