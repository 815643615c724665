package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// busyProber marks a fixed set of ports as bound on the host.
func busyProber(busy ...int) Prober {
	set := make(map[int]bool, len(busy))
	for _, p := range busy {
		set[p] = true
	}
	return ProberFunc(func(port int) bool { return set[port] })
}

func TestResolveExplicitFree(t *testing.T) {
	r := &Resolver{Probe: busyProber()}

	resolved, err := r.Resolve([]Mapping{{HostPort: 5555, VMPort: 22, Explicit: true}}, NewClaimed())
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, Resolved{HostPort: 5555, VMPort: 22}, resolved[0])
}

func TestResolveExplicitUnavailable(t *testing.T) {
	r := &Resolver{Probe: busyProber(5555)}

	resolved, err := r.Resolve([]Mapping{{HostPort: 5555, VMPort: 22, Explicit: true}}, NewClaimed())
	assert.Nil(t, resolved)

	var conflict *PortConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 5555, conflict.Requested)
	assert.Equal(t, ReasonExplicitUnavailable, conflict.Reason)
}

func TestResolveLenientScansUpward(t *testing.T) {
	tests := []struct {
		name string
		busy []int
		want int
	}{
		{
			name: "declared port free",
			busy: nil,
			want: 8081,
		},
		{
			name: "declared port taken",
			busy: []int{8081},
			want: 8082,
		},
		{
			name: "several consecutive taken",
			busy: []int{8081, 8082, 8083},
			want: 8084,
		},
		{
			name: "gap is not skipped",
			busy: []int{8081, 8083},
			want: 8082,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Resolver{Probe: busyProber(tt.busy...)}

			resolved, err := r.Resolve([]Mapping{{HostPort: 8081, VMPort: 443, Explicit: false}}, NewClaimed())
			require.NoError(t, err)
			require.Len(t, resolved, 1)
			assert.Equal(t, tt.want, resolved[0].HostPort)
			assert.GreaterOrEqual(t, resolved[0].HostPort, 8081)
		})
	}
}

func TestResolveLenientRangeExhausted(t *testing.T) {
	r := &Resolver{Probe: ProberFunc(func(int) bool { return true })}

	resolved, err := r.Resolve([]Mapping{{HostPort: 65530, VMPort: 80, Explicit: false}}, NewClaimed())
	assert.Nil(t, resolved)

	var conflict *PortConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 65530, conflict.Requested)
	assert.Equal(t, ReasonRangeExhausted, conflict.Reason)
}

func TestResolveNeverSubstitutesForExplicit(t *testing.T) {
	// Explicit mapping whose port is taken must fail even though the
	// next port up is free.
	r := &Resolver{Probe: busyProber(5555)}

	_, err := r.Resolve([]Mapping{{HostPort: 5555, VMPort: 22, Explicit: true}}, NewClaimed())
	var conflict *PortConflict
	require.ErrorAs(t, err, &conflict)
}

func TestResolveClaimedSharedAcrossVMs(t *testing.T) {
	// Two VMs declaring identical lenient mappings in one run must not
	// collide: the second slides past whatever the first claimed.
	r := &Resolver{Probe: busyProber()}
	claimed := NewClaimed()
	mappings := []Mapping{
		{HostPort: 5555, VMPort: 22, Explicit: false},
		{HostPort: 8081, VMPort: 443, Explicit: false},
	}

	vmA, err := r.Resolve(mappings, claimed)
	require.NoError(t, err)
	vmB, err := r.Resolve(mappings, claimed)
	require.NoError(t, err)

	assert.Equal(t, []Resolved{{HostPort: 5555, VMPort: 22}, {HostPort: 8081, VMPort: 443}}, vmA)
	assert.Equal(t, []Resolved{{HostPort: 5556, VMPort: 22}, {HostPort: 8082, VMPort: 443}}, vmB)
}

func TestResolveExplicitConflictsWithEarlierClaim(t *testing.T) {
	r := &Resolver{Probe: busyProber()}
	claimed := NewClaimed()

	_, err := r.Resolve([]Mapping{{HostPort: 5555, VMPort: 22, Explicit: false}}, claimed)
	require.NoError(t, err)

	_, err = r.Resolve([]Mapping{{HostPort: 5555, VMPort: 2222, Explicit: true}}, claimed)
	var conflict *PortConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonExplicitUnavailable, conflict.Reason)
}

func TestResolveDeterministic(t *testing.T) {
	probe := busyProber(5555, 8081)
	mappings := []Mapping{
		{HostPort: 5555, VMPort: 22, Explicit: false},
		{HostPort: 8081, VMPort: 443, Explicit: false},
	}

	r := &Resolver{Probe: probe}
	first, err := r.Resolve(mappings, NewClaimed())
	require.NoError(t, err)
	second, err := r.Resolve(mappings, NewClaimed())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestClaimedTryClaim(t *testing.T) {
	claimed := NewClaimed()
	probe := busyProber()

	assert.True(t, claimed.TryClaim(9000, probe))
	assert.True(t, claimed.Has(9000))
	// Second claim of the same port loses.
	assert.False(t, claimed.TryClaim(9000, probe))
	// A port busy on the host is never claimed.
	assert.False(t, claimed.TryClaim(9001, busyProber(9001)))
	assert.False(t, claimed.Has(9001))
}
