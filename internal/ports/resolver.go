package ports

import "sync"

// Claimed is the set of host ports already handed out during one
// resolution run. It is shared across every VM in the run so two VMs can
// never be assigned the same host port, even when both use lenient
// mappings with identical starting ports. It lives exactly as long as the
// run and is discarded afterwards.
type Claimed struct {
	mu    sync.Mutex
	ports map[int]bool
}

// NewClaimed returns an empty claimed-port set.
func NewClaimed() *Claimed {
	return &Claimed{ports: make(map[int]bool)}
}

// TryClaim marks port as taken if the prober says it is free and no
// earlier mapping in this run claimed it. The probe and the insert happen
// under one lock, so concurrent callers cannot both win the same port.
func (c *Claimed) TryClaim(port int, probe Prober) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ports[port] || probe.InUse(port) {
		return false
	}
	c.ports[port] = true
	return true
}

// Has reports whether port was claimed during this run.
func (c *Claimed) Has(port int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ports[port]
}

// Resolver decides the actual host port for each declared mapping.
type Resolver struct {
	Probe Prober
}

// NewResolver returns a Resolver backed by real TCP bind probes.
func NewResolver() *Resolver {
	return &Resolver{Probe: ListenProber{}}
}

// Resolve walks the mappings in declared order and picks a host port for
// each, claiming it in the shared set as it goes. Explicit mappings get
// exactly their declared port or a *PortConflict; lenient mappings scan
// upward from the declared port, skipping ports that are bound on the
// host or already claimed in this run, failing only when the scan passes
// MaxPort.
//
// Given an unchanged snapshot of host port occupancy and the same declared
// order, the result is deterministic.
func (r *Resolver) Resolve(mappings []Mapping, claimed *Claimed) ([]Resolved, error) {
	resolved := make([]Resolved, 0, len(mappings))
	for _, m := range mappings {
		if m.Explicit {
			if !claimed.TryClaim(m.HostPort, r.Probe) {
				return nil, &PortConflict{Requested: m.HostPort, Reason: ReasonExplicitUnavailable}
			}
			resolved = append(resolved, Resolved{HostPort: m.HostPort, VMPort: m.VMPort})
			continue
		}

		port := m.HostPort
		for port <= MaxPort && !claimed.TryClaim(port, r.Probe) {
			port++
		}
		if port > MaxPort {
			return nil, &PortConflict{Requested: m.HostPort, Reason: ReasonRangeExhausted}
		}
		resolved = append(resolved, Resolved{HostPort: port, VMPort: m.VMPort})
	}
	return resolved, nil
}
