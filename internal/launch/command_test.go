package launch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vmgr-dev/vmgr/internal/option"
	"github.com/vmgr-dev/vmgr/internal/plan"
)

func opts(raws ...string) []option.Option {
	out := make([]option.Option, len(raws))
	for i, r := range raws {
		out[i] = option.New(r)
	}
	return out
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name string
		plan *plan.LaunchPlan
		want []string
	}{
		{
			name: "daemonized",
			plan: &plan.LaunchPlan{
				ImageName: "ubuntu-server",
				Options:   opts("-m 8G", "-nic user,hostfwd=tcp::5555-:22"),
				Daemonize: true,
			},
			want: []string{
				QemuBinary, "-daemonize",
				"-drive", "file=/images/ubuntu-server.img",
				"-m", "8G",
				"-nic", "user,hostfwd=tcp::5555-:22",
			},
		},
		{
			name: "foreground",
			plan: &plan.LaunchPlan{
				ImageName: "debian",
				Options:   opts("-cpu host"),
				Daemonize: false,
			},
			want: []string{
				QemuBinary, "-nographic",
				"-drive", "file=/images/ubuntu-server.img",
				"-cpu", "host",
			},
		},
		{
			name: "operator daemonize flags are not duplicated",
			plan: &plan.LaunchPlan{
				ImageName: "dupe",
				Options:   opts("-daemonize", "-nographic", "-m 4G"),
				Daemonize: true,
			},
			want: []string{
				QemuBinary, "-daemonize",
				"-drive", "file=/images/ubuntu-server.img",
				"-m", "4G",
			},
		},
		{
			name: "no options",
			plan: &plan.LaunchPlan{
				ImageName: "bare",
				Daemonize: false,
			},
			want: []string{
				QemuBinary, "-nographic",
				"-drive", "file=/images/ubuntu-server.img",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Command(tt.plan, "/images/ubuntu-server.img")
			assert.Equal(t, tt.want, got)
		})
	}
}
