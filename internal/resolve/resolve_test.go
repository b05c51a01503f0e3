package resolve

import (
	"context"
	"net"
	"testing"
)

func TestLookup_NilIPReturnsError(t *testing.T) {
	r := New(16)
	if _, err := r.Lookup(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil IP")
	}
}

func TestLookup_CachesSecondCallAsHit(t *testing.T) {
	r := New(16)
	ip := net.ParseIP("127.0.0.1")

	// First call: likely resolves via the system resolver (or errors in a
	// sandboxed environment without DNS, in which case nothing is
	// cached and this test only exercises the miss-counting path).
	_, err := r.Lookup(context.Background(), ip)
	stats := r.CacheStats()
	if stats.Misses != 1 {
		t.Fatalf("Misses = %d, want 1", stats.Misses)
	}
	if err != nil {
		return
	}

	// Second call: served from the cache.
	_, _ = r.Lookup(context.Background(), ip)
	stats = r.CacheStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("Hits/Misses = %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
}

func TestEvictIfFull_ClearsHalfTheCacheAtCapacity(t *testing.T) {
	r := New(4)
	r.cache["a"] = "host-a"
	r.cache["b"] = "host-b"
	r.cache["c"] = "host-c"
	r.cache["d"] = "host-d"

	r.mu.Lock()
	r.evictIfFull()
	r.cache["e"] = "host-e"
	r.mu.Unlock()

	if len(r.cache) > 3 {
		t.Fatalf("len(cache) = %d, want eviction to have made room", len(r.cache))
	}
}
