package rules

import (
	"github.com/scriptward/scriptward/internal/model"
)

// Options adjusts a preset's rule bundle. Nil slices mean "use the
// documented default"; an empty non-nil slice disables the default.
type Options struct {
	// ReservedPrefixes overrides the reserved identifier prefixes.
	ReservedPrefixes []string
	// AllowedNames carves names out of the reserved-prefix check.
	AllowedNames []string
	// ExtraGlobals extends the globals allow-list beyond the sandbox
	// builtins.
	ExtraGlobals []string
	// DisallowLoops names loop kinds to reject. At the strict level a
	// nil slice defaults to banning "while".
	DisallowLoops []string
}

// ForLevel composes the rule bundle for a security level. Standard
// carries the always-on rules; strict adds the loop ban and the
// try/catch ban. The bundle order is the report order for issues at
// equal positions before sorting.
func ForLevel(level model.SecurityLevel, opts Options) []Rule {
	bundle := []Rule{
		NewReservedPrefix(opts.ReservedPrefixes, opts.AllowedNames),
		ComputedDestructuring{},
		NewDisallowedGlobals(opts.ExtraGlobals),
	}
	loops := opts.DisallowLoops
	if level == model.LevelStrict {
		if loops == nil {
			loops = []string{"while"}
		}
		if len(loops) > 0 {
			bundle = append(bundle, NewDisallowedLoops(loops...))
		}
		bundle = append(bundle, NoTryCatch{})
		return bundle
	}
	if len(loops) > 0 {
		bundle = append(bundle, NewDisallowedLoops(loops...))
	}
	return bundle
}
