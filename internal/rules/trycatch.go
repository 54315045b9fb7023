package rules

import (
	"github.com/scriptward/scriptward/internal/model"
	"github.com/scriptward/scriptward/internal/script"
)

// NoTryCatch rejects try/catch statements. Bundled at the strict level,
// where the runtime also refuses to route errors into catch blocks:
// the static rule gives authors the news before execution rather than
// at their first error.
type NoTryCatch struct{}

func (NoTryCatch) Name() string { return "no-try-catch" }

func (NoTryCatch) Description() string {
	return "rejects try/catch statements"
}

func (NoTryCatch) Severity() model.Severity { return model.SeverityFatal }

func (NoTryCatch) EnabledByDefault() bool { return false }

func (r NoTryCatch) Validate(ctx *Context) {
	script.Walk(ctx.Program, func(n script.Node, _ []script.Node) {
		if _, ok := n.(*script.Try); !ok {
			return
		}
		ctx.Report(model.Issue{
			Code:     model.CodeNoTryCatch,
			Message:  "try/catch is not allowed at this security level",
			Severity: r.Severity(),
			Pos:      n.Pos(),
			End:      n.End(),
		})
	})
}
