//go:build windows

package channel

import (
	"errors"
	"time"
)

// Raw is not implemented on Windows in this engine: the core scope (spec
// §1) targets the raw-socket send/recv model syscall.Socket gives on
// Unix. The teacher carries a parallel Windows socket primitive set
// (internal/trace/socket_windows.go); wiring a full Windows raw-socket
// backend is out of scope for the core engine and left as a follow-up.
type Raw struct{}

var errWindowsUnsupported = errors.New("raw channel: windows is not supported by the core engine")

func NewRaw() (*Raw, error) {
	return nil, &SocketError{Err: errWindowsUnsupported}
}

func (r *Raw) SendProbe(p OutboundProbe) (time.Time, error) {
	return time.Time{}, &SendError{Err: errWindowsUnsupported}
}

func (r *Raw) RecvProbeResponse(timeout time.Duration) (*ProbeResponse, error) {
	return nil, &RecvError{Err: errWindowsUnsupported}
}

func (r *Raw) Close() error { return nil }
