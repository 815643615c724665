package nic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vmgr-dev/vmgr/internal/option"
	"github.com/vmgr-dev/vmgr/internal/ports"
)

func opts(raws ...string) []option.Option {
	out := make([]option.Option, len(raws))
	for i, r := range raws {
		out[i] = option.New(r)
	}
	return out
}

func TestClause(t *testing.T) {
	assert.Equal(t, "hostfwd=tcp::5555-:22", Clause(ports.Resolved{HostPort: 5555, VMPort: 22}))
}

func TestGlobalBase(t *testing.T) {
	assert.Equal(t, "user,model=virtio", GlobalBase(opts("-m 8G", "-nic user,model=virtio")))
	assert.Equal(t, "", GlobalBase(opts("-m 8G")))
	assert.Equal(t, "", GlobalBase(nil))
}

func TestSynthesize(t *testing.T) {
	forwards := []ports.Resolved{
		{HostPort: 5555, VMPort: 22},
		{HostPort: 8082, VMPort: 443},
	}

	tests := []struct {
		name       string
		merged     []option.Option
		resolved   []ports.Resolved
		globalBase string
		want       []option.Option
	}{
		{
			name:     "forwards appended to existing nic in place",
			merged:   opts("-nic user,model=e1000", "-m 8G"),
			resolved: forwards,
			want:     opts("-nic user,model=e1000,hostfwd=tcp::5555-:22,hostfwd=tcp::8082-:443", "-m 8G"),
		},
		{
			name:     "bare nic gets only the clauses",
			merged:   opts("-nic"),
			resolved: forwards,
			want:     opts("-nic hostfwd=tcp::5555-:22,hostfwd=tcp::8082-:443"),
		},
		{
			name:       "synthesized nic uses global base",
			merged:     opts("-m 8G"),
			resolved:   forwards,
			globalBase: "user,model=virtio",
			want:       opts("-m 8G", "-nic user,model=virtio,hostfwd=tcp::5555-:22,hostfwd=tcp::8082-:443"),
		},
		{
			name:     "synthesized nic without base is clauses only",
			merged:   opts("-m 8G"),
			resolved: forwards,
			want:     opts("-m 8G", "-nic hostfwd=tcp::5555-:22,hostfwd=tcp::8082-:443"),
		},
		{
			name:     "no forwards and no nic adds nothing",
			merged:   opts("-m 8G", "-daemonize"),
			resolved: nil,
			want:     opts("-m 8G", "-daemonize"),
		},
		{
			name:     "no forwards leaves existing nic unchanged",
			merged:   opts("-nic user,model=virtio"),
			resolved: nil,
			want:     opts("-nic user,model=virtio"),
		},
		{
			name:       "no forwards ignores global base",
			merged:     opts("-m 8G"),
			resolved:   nil,
			globalBase: "user,model=virtio",
			want:       opts("-m 8G"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Synthesize(tt.merged, tt.resolved, tt.globalBase)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, option.CountKind(got, option.NicKind), 1)
		})
	}
}

func TestSynthesizeDoesNotMutateInput(t *testing.T) {
	merged := opts("-nic user", "-m 8G")
	_ = Synthesize(merged, []ports.Resolved{{HostPort: 5555, VMPort: 22}}, "")
	assert.Equal(t, opts("-nic user", "-m 8G"), merged)
}
