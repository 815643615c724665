// Package launch turns resolved launch plans into running hypervisor
// processes and tracks the instances it started.
package launch

import (
	"github.com/vmgr-dev/vmgr/internal/plan"
)

// QemuBinary is the hypervisor invoked for every plan.
const QemuBinary = "qemu-system-x86_64"

// Command expands a launch plan into the argv to execute. Daemonized VMs
// get -daemonize, foreground ones -nographic; either flag appearing in the
// operator's own options is skipped so the pair never shows up twice.
func Command(p *plan.LaunchPlan, imagePath string) []string {
	args := []string{QemuBinary}
	if p.Daemonize {
		args = append(args, "-daemonize")
	} else {
		args = append(args, "-nographic")
	}
	args = append(args, "-drive", "file="+imagePath)

	for _, o := range p.Options {
		if o.Kind == "-daemonize" || o.Kind == "-nographic" {
			continue
		}
		args = append(args, o.Tokens()...)
	}
	return args
}
