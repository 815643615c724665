// Package nic derives the VM's single network-interface directive from
// the merged option list and the resolved port forwards.
package nic

import (
	"fmt"
	"strings"

	"github.com/vmgr-dev/vmgr/internal/option"
	"github.com/vmgr-dev/vmgr/internal/ports"
)

// Clause formats the hostfwd clause for one resolved forward.
func Clause(r ports.Resolved) string {
	return fmt.Sprintf("hostfwd=tcp::%d-:%d", r.HostPort, r.VMPort)
}

func clauses(resolved []ports.Resolved) string {
	parts := make([]string, len(resolved))
	for i, r := range resolved {
		parts[i] = Clause(r)
	}
	return strings.Join(parts, ",")
}

// GlobalBase returns the value of the "-nic" option in the global defaults,
// "" if there is none. It is the model/type prefix used when a NIC
// directive has to be synthesized from scratch.
func GlobalBase(global []option.Option) string {
	if i := option.FindKind(global, option.NicKind); i >= 0 {
		return global[i].Value()
	}
	return ""
}

// Synthesize produces the final option list from the merged options and the
// resolved forwards. The input is never mutated.
//
//   - If the merged options already carry a "-nic" and there are forwards,
//     the hostfwd clauses are appended to that option's value, keeping its
//     position. No second "-nic" is ever added.
//   - If there is no "-nic" and no forwards, nothing is added.
//   - If there is no "-nic" but there are forwards, a new "-nic" is
//     appended. Its value is globalBase followed by the clauses when a
//     global default NIC exists; with no base anywhere the value is just
//     the clauses and the hypervisor falls back to its default user-mode
//     backend and model.
//
// The result contains at most one "-nic" option.
func Synthesize(merged []option.Option, resolved []ports.Resolved, globalBase string) []option.Option {
	out := append([]option.Option(nil), merged...)

	i := option.FindKind(out, option.NicKind)
	if len(resolved) == 0 {
		return out
	}

	fwd := clauses(resolved)
	if i >= 0 {
		base := out[i].Value()
		if base == "" {
			out[i] = option.New(option.NicKind + " " + fwd)
		} else {
			out[i] = option.New(option.NicKind + " " + base + "," + fwd)
		}
		return out
	}

	value := fwd
	if globalBase != "" {
		value = globalBase + "," + fwd
	}
	return append(out, option.New(option.NicKind+" "+value))
}
