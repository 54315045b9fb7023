package rules

import (
	"fmt"

	"github.com/scriptward/scriptward/internal/model"
	"github.com/scriptward/scriptward/internal/script"
)

// DefaultGlobals returns every name the sandbox runtime itself places
// in scope. The runtime environment is built from the same contract;
// a mismatch between the two is a bug.
func DefaultGlobals() []string {
	return []string{
		"len", "str", "num", "keys", "append", "range",
		"abs", "min", "max", "floor", "ceil", "round",
		"jsonParse", "jsonStringify",
		"callTool",
		"__enclave_args__",
	}
}

// DisallowedGlobals rejects references to names that are neither
// declared in the script nor on the globals allow-list. Scope here is
// flat: any declaration anywhere in the script admits the name. True
// lexical visibility is enforced again at runtime; this rule exists to
// catch reaches for host names (eval, process, window) statically.
type DisallowedGlobals struct {
	allowed map[string]bool
}

func NewDisallowedGlobals(extra []string) *DisallowedGlobals {
	base := DefaultGlobals()
	r := &DisallowedGlobals{allowed: make(map[string]bool, len(base)+len(extra))}
	for _, name := range base {
		r.allowed[name] = true
	}
	for _, name := range extra {
		r.allowed[name] = true
	}
	return r
}

func (r *DisallowedGlobals) Name() string { return "disallowed-global" }

func (r *DisallowedGlobals) Description() string {
	return "rejects references to names outside the script and the globals allow-list"
}

func (r *DisallowedGlobals) Severity() model.Severity { return model.SeverityFatal }

func (r *DisallowedGlobals) EnabledByDefault() bool { return true }

func (r *DisallowedGlobals) Validate(ctx *Context) {
	declared := map[string]bool{}
	script.Walk(ctx.Program, func(n script.Node, ancestors []script.Node) {
		id, ok := n.(*script.Ident)
		if !ok || len(ancestors) == 0 {
			return
		}
		if isBindingIdent(id, ancestors[len(ancestors)-1]) {
			declared[id.Name] = true
		}
	})
	script.Walk(ctx.Program, func(n script.Node, ancestors []script.Node) {
		id, ok := n.(*script.Ident)
		if !ok || len(ancestors) == 0 {
			return
		}
		if isBindingIdent(id, ancestors[len(ancestors)-1]) {
			return
		}
		if declared[id.Name] || r.allowed[id.Name] {
			return
		}
		ctx.Report(model.Issue{
			Code:     model.CodeDisallowedGlobal,
			Message:  fmt.Sprintf("%q is not an allowed global", id.Name),
			Severity: r.Severity(),
			Pos:      id.Pos(),
			End:      id.End(),
			Data:     map[string]any{"name": id.Name},
		})
	})
}
