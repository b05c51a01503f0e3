// Package state holds the per-hop statistics store: the single mutable
// record of everything the tracing engine has learned so far, read by
// every consumer (TUI, reporters, MCP tools) through an immutable
// Snapshot (spec §4.4).
package state

import (
	"sync"

	"github.com/hervehildenbrand/trippy/internal/prober"
	"github.com/hervehildenbrand/trippy/pkg/hop"
)

// Store is safe for concurrent use: one owning thread folds events in
// while any number of readers call Snapshot, synchronized by a single
// mutex (spec §5's "simplest acceptable discipline: exclusive lock for
// the fold").
type Store struct {
	mu sync.Mutex

	firstTTL  uint8
	maxTTL    uint8
	sampleCap int

	hops       []*hop.Hop // index ttl-1
	highestHit uint8      // highest TTL that has ever produced a response
	roundCount int
	done       bool
}

// New creates a Store spanning TTLs [firstTTL, maxTTL]. sampleCap bounds
// the retained RTT sample history per hop.
func New(firstTTL, maxTTL uint8, sampleCap int) *Store {
	hops := make([]*hop.Hop, maxTTL)
	for ttl := uint8(1); ttl <= maxTTL; ttl++ {
		hops[ttl-1] = hop.NewHop(ttl, sampleCap)
	}
	return &Store{
		firstTTL:  firstTTL,
		maxTTL:    maxTTL,
		sampleCap: sampleCap,
		hops:      hops,
	}
}

// Apply folds one prober.StateEvent into the store. Called from the
// Tracer Loop's owning thread only.
func (s *Store) Apply(ev prober.StateEvent) {
	if ev.TTL == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.hopAt(ev.TTL)
	switch ev.Kind {
	case prober.EventSent:
		h.RecordSent()
	case prober.EventComplete:
		if ev.Addr == nil {
			return // synthetic no-response sweep: nothing to fold
		}
		h.RecordComplete(ev.Addr, ev.RTT)
		if ev.TTL > s.highestHit {
			s.highestHit = ev.TTL
		}
	}
}

func (s *Store) hopAt(ttl uint8) *hop.Hop {
	return s.hops[ttl-1]
}

// SetRoundCount records the number of completed rounds, surfaced in the
// next Snapshot.
func (s *Store) SetRoundCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roundCount = n
}

// SetDone marks the trace as finished (context cancelled, or a one-shot
// run completed its round budget).
func (s *Store) SetDone(done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = done
}

// Reset clears every hop's accumulated statistics in place, for a report
// or TUI "restart" action. round_count is identity, not statistics, and
// keeps counting monotonically across a Reset: the round loop never
// stops, so a Snapshot taken between this call and the next round
// boundary must never see the count go backwards. The highest TTL that
// has ever responded is kept too, so the Snapshot's TTL range survives.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.hops {
		h.Reset()
	}
	s.done = false
}

// Snapshot returns an immutable view of every hop from first_ttl up to
// the highest TTL that has ever produced a response, or up to max_ttl if
// no TTL has produced a response yet (spec §4.4).
func (s *Store) Snapshot() hop.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := s.highestHit
	if last < s.firstTTL {
		last = s.maxTTL
	}

	views := make([]hop.View, 0, int(last-s.firstTTL)+1)
	for ttl := s.firstTTL; ttl <= last; ttl++ {
		views = append(views, hop.ViewOf(s.hopAt(ttl)))
	}
	return hop.Snapshot{
		Hops:       views,
		IsDone:     s.done,
		RoundCount: s.roundCount,
	}
}
