package plan

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/vmgr-dev/vmgr/internal/config"
	"github.com/vmgr-dev/vmgr/internal/nic"
	"github.com/vmgr-dev/vmgr/internal/option"
	"github.com/vmgr-dev/vmgr/internal/ports"
)

// Builder assembles launch plans: ports are resolved first, then global
// and VM options are merged, then the NIC directive is synthesized from
// the resolved forwards, then the result is validated.
type Builder struct {
	Resolver *ports.Resolver
}

// NewBuilder returns a Builder resolving ports against the live host.
func NewBuilder() *Builder {
	return &Builder{Resolver: ports.NewResolver()}
}

// Build resolves a single VM against the shared claimed-port set.
// A failure aborts only this VM's build; the claimed set keeps any ports
// already granted to earlier mappings of other VMs.
func (b *Builder) Build(cfg *config.Config, vm *config.VM, claimed *ports.Claimed) (*LaunchPlan, error) {
	if vm.ImageName == "" {
		return nil, &config.ValidationError{Detail: "VM has no image name"}
	}

	resolved, err := b.Resolver.Resolve(vm.PortMappings, claimed)
	if err != nil {
		return nil, fmt.Errorf("resolve port mappings: %w", err)
	}

	merged := option.Merge(cfg.GlobalOptions, vm.Options, vm.UseGlobalOptions)
	final := nic.Synthesize(merged, resolved, nic.GlobalBase(cfg.GlobalOptions))

	if len(resolved) != len(vm.PortMappings) {
		return nil, fmt.Errorf("resolved %d of %d port mappings", len(resolved), len(vm.PortMappings))
	}
	if n := option.CountKind(final, option.NicKind); n > 1 {
		return nil, fmt.Errorf("%d %s options survived merging, want at most one", n, option.NicKind)
	}

	return &LaunchPlan{
		ImageName: vm.ImageName,
		Options:   final,
		Ports:     resolved,
		Declared:  vm.PortMappings,
		Daemonize: vm.Daemonize,
	}, nil
}

// BuildAll resolves every declared VM in one run, sharing a single
// claimed-port set so no two VMs are granted the same host port. VMs are
// resolved in declared order, which keeps lenient allocations
// deterministic for a given snapshot of host port occupancy. Every VM is
// attempted; per-VM failures are collected rather than aborting the run.
func (b *Builder) BuildAll(cfg *config.Config) *Result {
	res := &Result{RunID: uuid.NewString()}
	claimed := ports.NewClaimed()

	for i := range cfg.VMs {
		vm := &cfg.VMs[i]
		p, err := b.Build(cfg, vm, claimed)
		if err != nil {
			res.Failures = append(res.Failures, VMFailure{ImageName: vm.ImageName, Err: err})
			continue
		}
		res.Plans = append(res.Plans, p)
	}
	return res
}
