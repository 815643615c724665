package option

// Merge combines global default options with a VM's own options.
//
// With useGlobal false the VM's options are returned verbatim, in declared
// order, and the global list is ignored entirely.
//
// With useGlobal true, precedence is by option kind: if the VM declares any
// option of a kind that also appears in the global list, every global
// occurrence of that kind is dropped (replaced, not appended to). Kinds
// present on only one side pass through unchanged.
//
// Ordering contract: global-only options first, in their declared order,
// then the VM's options in their declared order. Tests pin this down; the
// launcher relies on it being stable between runs.
func Merge(global, vm []Option, useGlobal bool) []Option {
	if !useGlobal {
		return append([]Option(nil), vm...)
	}

	overridden := make(map[string]bool, len(vm))
	for _, o := range vm {
		overridden[o.Kind] = true
	}

	merged := make([]Option, 0, len(global)+len(vm))
	for _, o := range global {
		if !overridden[o.Kind] {
			merged = append(merged, o)
		}
	}
	return append(merged, vm...)
}

// FindKind returns the index of the first option of the given kind,
// or -1 if none is present.
func FindKind(opts []Option, kind string) int {
	for i, o := range opts {
		if o.Kind == kind {
			return i
		}
	}
	return -1
}

// CountKind returns how many options of the given kind are present.
func CountKind(opts []Option, kind string) int {
	n := 0
	for _, o := range opts {
		if o.Kind == kind {
			n++
		}
	}
	return n
}
