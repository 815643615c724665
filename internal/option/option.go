package option

import "strings"

// Option is a single hypervisor run option as declared by the operator,
// e.g. "-m 8G", "-daemonize" or "-nic user,model=virtio".
//
// Options are opaque to this program except for their Kind: the leading
// flag token, which drives override precedence during merging and the
// single-NIC rule.
type Option struct {
	Kind string // leading flag token, e.g. "-nic"
	Raw  string // full option string, whitespace-normalized
}

// NicKind is the option kind carrying the VM's network-interface directive.
// The hypervisor accepts at most one of these per invocation.
const NicKind = "-nic"

// New parses a raw option string into an Option. Tab characters are
// normalized to single spaces so "-m\t8G" and "-m 8G" are the same option.
func New(raw string) Option {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "\t", " "))
	kind := raw
	if i := strings.IndexByte(raw, ' '); i >= 0 {
		kind = raw[:i]
	}
	return Option{Kind: kind, Raw: raw}
}

// Value returns everything after the kind token, "" if the option is the
// bare flag.
func (o Option) Value() string {
	rest := strings.TrimPrefix(o.Raw, o.Kind)
	return strings.TrimLeft(rest, " ")
}

// Tokens splits the option into the argv tokens it contributes,
// e.g. "-m 8G" -> ["-m", "8G"].
func (o Option) Tokens() []string {
	return strings.Fields(o.Raw)
}

// IsNic reports whether this option is the network-interface directive.
func (o Option) IsNic() bool {
	return o.Kind == NicKind
}

func (o Option) String() string {
	return o.Raw
}
