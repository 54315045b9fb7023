package rules

import (
	"github.com/scriptward/scriptward/internal/model"
	"github.com/scriptward/scriptward/internal/script"
)

// ComputedDestructuring rejects computed property keys in destructuring
// patterns. A computed key resolves at runtime, so the key expression
// can assemble a sensitive property name that no literal scan would
// catch. String literal keys in bracket form are rejected too: the
// policy is over the syntactic shape, not the provable value. Computed
// keys in object construction stay legal.
type ComputedDestructuring struct{}

func (ComputedDestructuring) Name() string { return "no-computed-destructuring" }

func (ComputedDestructuring) Description() string {
	return "rejects computed property keys in destructuring patterns"
}

func (ComputedDestructuring) Severity() model.Severity { return model.SeverityFatal }

func (ComputedDestructuring) EnabledByDefault() bool { return true }

func (r ComputedDestructuring) Validate(ctx *Context) {
	script.Walk(ctx.Program, func(n script.Node, _ []script.Node) {
		prop, ok := n.(*script.PatternProp)
		if !ok || !prop.Computed {
			return
		}
		ctx.Report(model.Issue{
			Code:     model.CodeComputedDestructuring,
			Message:  "computed property keys are not allowed in destructuring patterns",
			Severity: r.Severity(),
			Pos:      prop.Pos(),
			End:      prop.End(),
		})
	})
}
