// Package plan turns declared VM launch profiles into fully resolved,
// validated launch plans: the final option list and the host ports that
// will actually be bound.
package plan

import (
	"fmt"

	"github.com/vmgr-dev/vmgr/internal/option"
	"github.com/vmgr-dev/vmgr/internal/ports"
)

// LaunchPlan is the resolved launch description for one VM. It is built
// fresh per resolution run, never mutated afterwards, and handed straight
// to the launcher.
type LaunchPlan struct {
	ImageName string
	Options   []option.Option
	Ports     []ports.Resolved
	Declared  []ports.Mapping // original mappings, same order as Ports
	Daemonize bool
}

// Bindings describes the resolved forwards for operator reporting, one
// line per mapping, noting when a lenient mapping landed above its
// requested port.
func (p *LaunchPlan) Bindings() []string {
	lines := make([]string, len(p.Ports))
	for i, r := range p.Ports {
		line := fmt.Sprintf("host %d -> guest %d", r.HostPort, r.VMPort)
		if i < len(p.Declared) && p.Declared[i].HostPort != r.HostPort {
			line += fmt.Sprintf(" (requested %d, unavailable)", p.Declared[i].HostPort)
		}
		lines[i] = line
	}
	return lines
}

// VMFailure pairs a VM with the error that stopped its build.
type VMFailure struct {
	ImageName string
	Err       error
}

func (f VMFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.ImageName, f.Err)
}

func (f VMFailure) Unwrap() error { return f.Err }

// Result is the aggregate outcome of one resolution run: every VM is
// attempted, successes and failures are collected in declared order, and
// no partial plan is ever emitted for a failed VM.
type Result struct {
	RunID    string
	Plans    []*LaunchPlan
	Failures []VMFailure
}

// Failed reports whether any VM in the run failed to resolve.
func (r *Result) Failed() bool { return len(r.Failures) > 0 }
