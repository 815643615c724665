package ports

import (
	"fmt"
	"net"
)

// MaxPort is the highest valid TCP port; lenient resolution never scans
// past it.
const MaxPort = 65535

// Mapping is one declared host-to-guest port forward.
type Mapping struct {
	HostPort int
	VMPort   int
	// Explicit demands exactly HostPort: if it is taken, resolution fails
	// instead of substituting another port. Lenient mappings (Explicit
	// false) accept the nearest free port at or above HostPort.
	Explicit bool
}

// Resolved is a mapping with the host port that was actually chosen.
// HostPort equals the declared port for explicit mappings and is >= it
// for lenient ones.
type Resolved struct {
	HostPort int `json:"host_port"`
	VMPort   int `json:"vm_port"`
}

// Reason classifies a port resolution failure.
type Reason string

const (
	// ReasonExplicitUnavailable: an explicit mapping's host port is taken.
	ReasonExplicitUnavailable Reason = "explicit_unavailable"
	// ReasonRangeExhausted: a lenient scan ran past MaxPort without
	// finding a free port.
	ReasonRangeExhausted Reason = "range_exhausted"
)

// PortConflict reports a mapping that could not be satisfied.
type PortConflict struct {
	Requested int
	Reason    Reason
}

func (e *PortConflict) Error() string {
	if e.Reason == ReasonExplicitUnavailable {
		return fmt.Sprintf("host port %d is in use and the mapping requests it explicitly", e.Requested)
	}
	return fmt.Sprintf("no free host port at or above %d", e.Requested)
}

// Prober reports whether a host port is currently bound by some process.
type Prober interface {
	InUse(port int) bool
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(port int) bool

func (f ProberFunc) InUse(port int) bool { return f(port) }

// ListenProber probes by attempting a wildcard TCP bind. A failed bind
// means something already listens there; a successful one is closed
// immediately.
type ListenProber struct{}

func (ListenProber) InUse(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return true
	}
	_ = l.Close()
	return false
}
