package rules

import (
	"fmt"

	"github.com/scriptward/scriptward/internal/model"
	"github.com/scriptward/scriptward/internal/script"
)

// DisallowedLoops rejects loop statements by kind. Kinds are "while",
// "for", and "for-of". The runtime step budget bounds loop cost anyway;
// this rule lets a deployment forbid the open-ended forms statically.
type DisallowedLoops struct {
	kinds map[string]bool
}

func NewDisallowedLoops(kinds ...string) *DisallowedLoops {
	r := &DisallowedLoops{kinds: make(map[string]bool, len(kinds))}
	for _, k := range kinds {
		r.kinds[k] = true
	}
	return r
}

func (r *DisallowedLoops) Name() string { return "disallowed-loop" }

func (r *DisallowedLoops) Description() string {
	return "rejects loop statements of configured kinds"
}

func (r *DisallowedLoops) Severity() model.Severity { return model.SeverityFatal }

func (r *DisallowedLoops) EnabledByDefault() bool { return false }

func (r *DisallowedLoops) Validate(ctx *Context) {
	script.Walk(ctx.Program, func(n script.Node, _ []script.Node) {
		var kind string
		switch n.(type) {
		case *script.While:
			kind = "while"
		case *script.For:
			kind = "for"
		case *script.ForOf:
			kind = "for-of"
		default:
			return
		}
		if !r.kinds[kind] {
			return
		}
		ctx.Report(model.Issue{
			Code:     model.CodeDisallowedLoop,
			Message:  fmt.Sprintf("%s loops are not allowed", kind),
			Severity: r.Severity(),
			Pos:      n.Pos(),
			End:      n.End(),
			Data:     map[string]any{"kind": kind},
		})
	})
}
