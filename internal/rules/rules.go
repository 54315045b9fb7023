// Package rules is the structural validation layer. Each rule is a
// stateless check over the parsed syntax tree; a validator bundles an
// ordered rule set and reports every violation in document order.
package rules

import (
	"sort"

	"github.com/scriptward/scriptward/internal/model"
	"github.com/scriptward/scriptward/internal/script"
)

// Rule is one structural check. Rules hold configuration only; all
// per-run state lives in the Context.
type Rule interface {
	Name() string
	Description() string
	Severity() model.Severity
	EnabledByDefault() bool
	Validate(ctx *Context)
}

// Context carries one parsed program through a rule set. Rules call
// Report any number of times.
type Context struct {
	Program *script.Program
	Source  string
	issues  []model.Issue
}

// Report records a finding.
func (c *Context) Report(is model.Issue) { c.issues = append(c.issues, is) }

// Validator applies a rule set to source text.
type Validator struct {
	rules []Rule
}

func New(rules ...Rule) *Validator { return &Validator{rules: rules} }

// Rules returns the configured rule set in application order.
func (v *Validator) Rules() []Rule { return v.rules }

// Validate parses the source and applies every rule. A parse failure
// yields a single PARSE_ERROR issue. The result is valid only when no
// fatal issue was reported.
func (v *Validator) Validate(source string) model.Result {
	prog, err := script.Parse(source)
	if err != nil {
		is := model.Issue{
			Code:     model.CodeParseError,
			Message:  err.Error(),
			Severity: model.SeverityFatal,
		}
		if se, ok := err.(*script.SyntaxError); ok {
			is.Message = se.Msg
			is.Pos = se.Pos
		}
		return model.Result{Issues: []model.Issue{is}}
	}
	return v.ValidateProgram(prog, source)
}

// ValidateProgram applies the rule set to an already-parsed program.
// Issues are sorted into document order; ties keep a stable code order
// so repeated runs produce byte-identical reports.
func (v *Validator) ValidateProgram(prog *script.Program, source string) model.Result {
	ctx := &Context{Program: prog, Source: source}
	for _, r := range v.rules {
		r.Validate(ctx)
	}
	sort.SliceStable(ctx.issues, func(i, j int) bool {
		a, b := ctx.issues[i], ctx.issues[j]
		if a.Pos.Offset != b.Pos.Offset {
			return a.Pos.Offset < b.Pos.Offset
		}
		return a.Code < b.Code
	})
	return model.ResultFromIssues(ctx.issues)
}

// isBindingIdent reports whether ident n sits in name-binding position
// under parent: a declaration target, function name or parameter, loop
// binding, catch parameter, or destructuring pattern element. Idents in
// computed pattern keys are uses, not bindings.
func isBindingIdent(n *script.Ident, parent script.Node) bool {
	switch p := parent.(type) {
	case *script.Declarator:
		if t, ok := p.Target.(*script.Ident); ok && t == n {
			return true
		}
	case *script.FuncDecl:
		if p.Name == n {
			return true
		}
		for _, prm := range p.Params {
			if prm == n {
				return true
			}
		}
	case *script.ForOf:
		if t, ok := p.Target.(*script.Ident); ok && t == n {
			return true
		}
	case *script.Try:
		if p.CatchParam == n {
			return true
		}
	case *script.ArrayPattern:
		return true
	case *script.PatternProp:
		if v, ok := p.Value.(*script.Ident); ok && v == n {
			return true
		}
	}
	return false
}

// staticPropName returns the property name of a member access when it
// is statically known: dotted, or computed with a string literal key.
func staticPropName(m *script.Member) (string, bool) {
	if !m.Computed {
		return m.Prop, true
	}
	if s, ok := m.PropExpr.(*script.StringLit); ok {
		return s.Value, true
	}
	return "", false
}
