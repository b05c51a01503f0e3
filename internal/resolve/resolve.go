// Package resolve implements the pluggable reverse-DNS name resolver
// spec §1 lists as an external collaborator to the tracing engine: it
// turns the IPv4 addresses in a hop.Snapshot into hostnames for display,
// off the engine's hot path.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
)

// Resolver performs cached reverse-DNS lookups.
type Resolver struct {
	dns *net.Resolver

	mu      sync.Mutex
	cache   map[string]string
	maxSize int
	hits    int64
	misses  int64
}

// Stats reports cache effectiveness: hit/miss counts and current size.
// No consumer surfaces these yet; CacheStats exists for operators
// instrumenting a Resolver directly (e.g. from a test or a future
// metrics exporter) rather than for any existing display surface.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int
}

// New creates a Resolver backed by the system's default DNS resolver,
// caching up to maxSize hostnames. Grounded on the teacher's
// internal/enrich/rdns.go lookup logic and cache.go's bounded-map
// eviction strategy, merged into one type since a resolver with no
// cache in front of it would hammer DNS once per round per hop.
func New(maxSize int) *Resolver {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Resolver{
		dns:     net.DefaultResolver,
		cache:   make(map[string]string),
		maxSize: maxSize,
	}
}

// Lookup returns the first PTR hostname for ip, or "" if none exists.
// Results are cached by the string form of ip.
func (r *Resolver) Lookup(ctx context.Context, ip net.IP) (string, error) {
	if ip == nil {
		return "", errors.New("resolve: nil IP address")
	}
	key := ip.String()

	r.mu.Lock()
	if host, ok := r.cache[key]; ok {
		r.hits++
		r.mu.Unlock()
		return host, nil
	}
	r.misses++
	r.mu.Unlock()

	names, err := r.dns.LookupAddr(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolve: reverse lookup of %s: %w", key, err)
	}

	host := ""
	if len(names) > 0 {
		host = strings.TrimSuffix(names[0], ".")
	}

	r.mu.Lock()
	r.evictIfFull()
	r.cache[key] = host
	r.mu.Unlock()

	return host, nil
}

// evictIfFull clears half the cache once it reaches maxSize. Called with
// mu held.
func (r *Resolver) evictIfFull() {
	if len(r.cache) < r.maxSize {
		return
	}
	cleared := 0
	for k := range r.cache {
		delete(r.cache, k)
		cleared++
		if cleared >= r.maxSize/2 {
			break
		}
	}
}

// CacheStats returns a snapshot of hit/miss/size counters.
func (r *Resolver) CacheStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Hits: r.hits, Misses: r.misses, Size: len(r.cache)}
}
