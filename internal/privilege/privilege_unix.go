//go:build !windows

// Package privilege checks whether the current process can open the raw
// sockets the tracing engine needs, before engine construction (spec §6:
// "the collaborator responsible for privilege drop runs before tracer
// construction").
package privilege

import (
	"fmt"
	"os"
	"strings"
)

// Check verifies the process can open raw sockets, returning a
// human-readable error naming the remedy when it cannot.
func Check() error {
	if os.Geteuid() == 0 {
		return nil
	}
	if hasNetRawCapability() {
		return nil
	}
	return fmt.Errorf("trippy requires elevated privileges for raw socket access.\n\nRun with: sudo %s", strings.Join(os.Args, " "))
}

// hasNetRawCapability checks CAP_NET_RAW in the process's effective
// capability set via /proc/self/status. Linux-specific; returns false on
// other Unix systems where the file doesn't exist (macOS, BSD lack
// capabilities entirely, so root is the only path to raw sockets there).
func hasNetRawCapability() bool {
	data, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "CapEff:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return false
		}
		var capMask uint64
		if _, err := fmt.Sscanf(fields[1], "%x", &capMask); err != nil {
			return false
		}
		const capNetRaw = 1 << 13
		return capMask&capNetRaw != 0
	}
	return false
}
