package rules

import (
	"fmt"
	"strings"

	"github.com/scriptward/scriptward/internal/model"
	"github.com/scriptward/scriptward/internal/script"
)

// DefaultReservedPrefixes are the identifier prefixes the runtime keeps
// for itself. Scripts may not declare, shadow, or assign through them.
func DefaultReservedPrefixes() []string {
	return []string{"__enclave_", "__sidecar_"}
}

// DefaultAllowedNames are reserved-looking names the runtime itself
// injects and scripts may legitimately read.
func DefaultAllowedNames() []string {
	return []string{"__enclave_args__"}
}

// ReservedPrefix blocks declarations of, assignments to, and member
// writes through identifiers carrying a reserved prefix. Declaration,
// plain assignment, and member assignment report distinct codes so a
// caller can treat them differently.
type ReservedPrefix struct {
	prefixes []string
	allow    map[string]bool
}

func NewReservedPrefix(prefixes, allow []string) *ReservedPrefix {
	if prefixes == nil {
		prefixes = DefaultReservedPrefixes()
	}
	if allow == nil {
		allow = DefaultAllowedNames()
	}
	r := &ReservedPrefix{prefixes: prefixes, allow: make(map[string]bool, len(allow))}
	for _, name := range allow {
		r.allow[name] = true
	}
	return r
}

func (r *ReservedPrefix) Name() string { return "reserved-prefix" }

func (r *ReservedPrefix) Description() string {
	return "blocks declaration of and assignment to runtime-internal identifiers"
}

func (r *ReservedPrefix) Severity() model.Severity { return model.SeverityFatal }

func (r *ReservedPrefix) EnabledByDefault() bool { return true }

// matchPrefix returns the reserved prefix name carries, if any.
// Allow-listed names never match.
func (r *ReservedPrefix) matchPrefix(name string) (string, bool) {
	if r.allow[name] {
		return "", false
	}
	for _, p := range r.prefixes {
		if strings.HasPrefix(name, p) {
			return p, true
		}
	}
	return "", false
}

func (r *ReservedPrefix) Validate(ctx *Context) {
	script.Walk(ctx.Program, func(n script.Node, ancestors []script.Node) {
		switch t := n.(type) {
		case *script.Ident:
			if len(ancestors) == 0 {
				return
			}
			if !isBindingIdent(t, ancestors[len(ancestors)-1]) {
				return
			}
			if prefix, ok := r.matchPrefix(t.Name); ok {
				ctx.Report(model.Issue{
					Code:     model.CodeReservedPrefixDecl,
					Message:  fmt.Sprintf("declaration of %q uses reserved prefix %q", t.Name, prefix),
					Severity: r.Severity(),
					Pos:      t.Pos(),
					End:      t.End(),
					Data:     map[string]any{"name": t.Name, "prefix": prefix},
				})
			}
		case *script.Assign:
			r.checkWriteTarget(ctx, t.Target)
		case *script.Update:
			r.checkWriteTarget(ctx, t.X)
		}
	})
}

func (r *ReservedPrefix) checkWriteTarget(ctx *Context, target script.Expr) {
	switch t := target.(type) {
	case *script.Ident:
		if prefix, ok := r.matchPrefix(t.Name); ok {
			ctx.Report(model.Issue{
				Code:     model.CodeReservedPrefixAssign,
				Message:  fmt.Sprintf("assignment to %q uses reserved prefix %q", t.Name, prefix),
				Severity: r.Severity(),
				Pos:      t.Pos(),
				End:      t.End(),
				Data:     map[string]any{"name": t.Name, "prefix": prefix},
			})
		}
	case *script.Member:
		name, known := staticPropName(t)
		if !known {
			return
		}
		if prefix, ok := r.matchPrefix(name); ok {
			ctx.Report(model.Issue{
				Code:     model.CodeReservedPrefixMember,
				Message:  fmt.Sprintf("member assignment to %q uses reserved prefix %q", name, prefix),
				Severity: r.Severity(),
				Pos:      t.Pos(),
				End:      t.End(),
				Data:     map[string]any{"name": name, "prefix": prefix},
			})
		}
	}
}
