package script

import (
	"strings"
	"testing"
)

func parseOK(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	return prog
}

func parseFail(t *testing.T, src string) *SyntaxError {
	t.Helper()
	_, err := Parse(src)
	if err == nil {
		t.Fatal("expected parse error, got nil")
	}
	se, ok := err.(*SyntaxError)
	if !ok {
		t.Fatalf("expected *SyntaxError, got %T: %v", err, err)
	}
	return se
}

func TestParseRepresentativeScript(t *testing.T) {
	src := `
function classify(items) {
  let out = [];
  for (let item of items) {
    if (item.score >= 0.5) {
      out = append(out, item.name);
    } else {
      continue;
    }
  }
  return out;
}

const limit = 10;
let i = 0;
while (i < limit) {
  i += 1;
}
for (let j = 0; j < 3; j++) {
  let msg = ` + "`step ${j} of 3`" + `;
}
try {
  callTool("search", { query: "x" });
} catch (e) {
  let reason = e.message;
}
`
	prog := parseOK(t, src)
	if len(prog.Body) != 6 {
		t.Fatalf("expected 6 top-level statements, got %d", len(prog.Body))
	}
	if _, ok := prog.Body[0].(*FuncDecl); !ok {
		t.Errorf("statement 0: expected *FuncDecl, got %T", prog.Body[0])
	}
	if _, ok := prog.Body[3].(*While); !ok {
		t.Errorf("statement 3: expected *While, got %T", prog.Body[3])
	}
	if _, ok := prog.Body[5].(*Try); !ok {
		t.Errorf("statement 5: expected *Try, got %T", prog.Body[5])
	}
}

func TestParseMultiDeclarator(t *testing.T) {
	prog := parseOK(t, "let a = 1, b, c = 3")
	decl := prog.Body[0].(*VarDecl)
	if len(decl.Decls) != 3 {
		t.Fatalf("expected 3 declarators, got %d", len(decl.Decls))
	}
	if decl.Decls[1].Init != nil {
		t.Error("declarator b should have no initializer")
	}
}

func TestParseConstRequiresInit(t *testing.T) {
	se := parseFail(t, "const x")
	if !strings.Contains(se.Msg, "initializer") {
		t.Errorf("expected initializer error, got %q", se.Msg)
	}
}

func TestParseDestructuringRequiresInit(t *testing.T) {
	se := parseFail(t, "let { a }")
	if !strings.Contains(se.Msg, "initializer") {
		t.Errorf("expected initializer error, got %q", se.Msg)
	}
}

func TestParseObjectPattern(t *testing.T) {
	prog := parseOK(t, `let { a, b: renamed, "k": c, [key]: d, nested: { e } } = obj`)
	decl := prog.Body[0].(*VarDecl)
	pat := decl.Decls[0].Target.(*ObjectPattern)
	if len(pat.Props) != 5 {
		t.Fatalf("expected 5 pattern properties, got %d", len(pat.Props))
	}
	if pat.Props[0].Key != "a" {
		t.Errorf("prop 0: expected shorthand key a, got %q", pat.Props[0].Key)
	}
	if id, ok := pat.Props[1].Value.(*Ident); !ok || id.Name != "renamed" {
		t.Errorf("prop 1: expected rename to ident renamed, got %+v", pat.Props[1].Value)
	}
	if !pat.Props[3].Computed {
		t.Error("prop 3: expected computed key")
	}
	if _, ok := pat.Props[4].Value.(*ObjectPattern); !ok {
		t.Errorf("prop 4: expected nested object pattern, got %T", pat.Props[4].Value)
	}
}

func TestParseArrayPatternWithHoles(t *testing.T) {
	prog := parseOK(t, "let [a, , b] = arr")
	pat := prog.Body[0].(*VarDecl).Decls[0].Target.(*ArrayPattern)
	if len(pat.Elems) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(pat.Elems))
	}
	if pat.Elems[1] != nil {
		t.Error("element 1 should be an elision hole")
	}
}

func TestParseForOf(t *testing.T) {
	prog := parseOK(t, "for (const [k, v] of pairs) { use(k, v) }")
	fo := prog.Body[0].(*ForOf)
	if fo.Kind != "const" {
		t.Errorf("expected const binding, got %q", fo.Kind)
	}
	if _, ok := fo.Target.(*ArrayPattern); !ok {
		t.Errorf("expected array pattern target, got %T", fo.Target)
	}
}

func TestParseForOfRequiresDeclaration(t *testing.T) {
	parseFail(t, "for (x of arr) { }")
}

func TestParseClassicForEmptyClauses(t *testing.T) {
	prog := parseOK(t, "for (;;) { break }")
	f := prog.Body[0].(*For)
	if f.Init != nil || f.Cond != nil || f.Post != nil {
		t.Error("expected all three clauses empty")
	}
}

func TestParseBodiesRequireBraces(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"if", "if (a) b = 1"},
		{"else", "if (a) { } else b = 1"},
		{"while", "while (a) b = 1"},
		{"for", "for (let i = 0; i < 3; i++) b = 1"},
		{"for-of", "for (let x of xs) b = 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parseFail(t, tt.src)
		})
	}
}

func TestParseElseIfChain(t *testing.T) {
	prog := parseOK(t, "if (a) { } else if (b) { } else { }")
	stmt := prog.Body[0].(*If)
	chained, ok := stmt.Else.(*If)
	if !ok {
		t.Fatalf("expected chained *If, got %T", stmt.Else)
	}
	if chained.Else == nil {
		t.Error("expected final else block")
	}
}

func TestParsePrecedence(t *testing.T) {
	prog := parseOK(t, "let x = 1 + 2 * 3")
	add := prog.Body[0].(*VarDecl).Decls[0].Init.(*Binary)
	if add.Op != "+" {
		t.Fatalf("expected + at root, got %q", add.Op)
	}
	mul, ok := add.Y.(*Binary)
	if !ok || mul.Op != "*" {
		t.Fatalf("expected * on right of +, got %+v", add.Y)
	}
}

func TestParseLogicalBindsLooserThanEquality(t *testing.T) {
	prog := parseOK(t, "let x = a === b && c !== d")
	and := prog.Body[0].(*VarDecl).Decls[0].Init.(*Logical)
	if and.Op != "&&" {
		t.Fatalf("expected && at root, got %q", and.Op)
	}
	if left, ok := and.X.(*Binary); !ok || left.Op != "===" {
		t.Fatalf("expected === on left, got %+v", and.X)
	}
}

func TestParseTernary(t *testing.T) {
	prog := parseOK(t, "let x = a ? b : c ? d : e")
	cond := prog.Body[0].(*VarDecl).Decls[0].Init.(*Cond)
	if _, ok := cond.Else.(*Cond); !ok {
		t.Errorf("ternary should nest to the right, got %T", cond.Else)
	}
}

func TestParseAssignTargets(t *testing.T) {
	parseOK(t, "a = 1; a.b = 2; a[0] += 3")
	parseFail(t, "1 = 2")
	parseFail(t, "f() = 3")
	parseFail(t, "(a + b) = 4")
}

func TestParseUpdateTargets(t *testing.T) {
	parseOK(t, "a++; --b; obj.n++")
	parseFail(t, "5++")
	parseFail(t, "++f()")
}

func TestParseMemberChain(t *testing.T) {
	prog := parseOK(t, `let v = a.b[c].d("x")["y"]`)
	call := findFirst[*Call](prog)
	if call == nil {
		t.Fatal("expected a call in the chain")
	}
	outer := prog.Body[0].(*VarDecl).Decls[0].Init.(*Member)
	if !outer.Computed {
		t.Error("outermost access should be computed")
	}
}

func TestParseObjectLiteral(t *testing.T) {
	prog := parseOK(t, `let o = { a: 1, "b c": 2, [k]: 3, shorthand, 4: "four" }`)
	obj := prog.Body[0].(*VarDecl).Decls[0].Init.(*ObjectLit)
	if len(obj.Props) != 5 {
		t.Fatalf("expected 5 properties, got %d", len(obj.Props))
	}
	if obj.Props[1].Key != "b c" {
		t.Errorf("expected string key %q, got %q", "b c", obj.Props[1].Key)
	}
	if !obj.Props[2].Computed {
		t.Error("expected computed property")
	}
	if id, ok := obj.Props[3].Value.(*Ident); !ok || id.Name != "shorthand" {
		t.Errorf("expected shorthand value ident, got %+v", obj.Props[3].Value)
	}
}

func TestParseTemplateLiteral(t *testing.T) {
	prog := parseOK(t, "let s = `sum is ${a + b}!`")
	lit := prog.Body[0].(*VarDecl).Decls[0].Init.(*TemplateLit)
	if len(lit.Parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(lit.Parts))
	}
	bin, ok := lit.Parts[1].Expr.(*Binary)
	if !ok || bin.Op != "+" {
		t.Fatalf("expected + expression in interpolation, got %+v", lit.Parts[1].Expr)
	}
}

func TestParseTemplateInterpolationPositions(t *testing.T) {
	src := "let s = `v=${value}`"
	prog := parseOK(t, src)
	lit := prog.Body[0].(*VarDecl).Decls[0].Init.(*TemplateLit)
	id := lit.Parts[1].Expr.(*Ident)
	if src[id.Pos().Offset:id.End().Offset] != "value" {
		t.Errorf("interpolated ident span %d..%d does not cover source text", id.Pos().Offset, id.End().Offset)
	}
}

func TestParseTemplateTrailingGarbage(t *testing.T) {
	parseFail(t, "let s = `${a b}`")
}

func TestParseSemicolonsOptional(t *testing.T) {
	parseOK(t, "let a = 1\nlet b = 2\nreturnish(a, b)")
}

func TestParseBareReturn(t *testing.T) {
	prog := parseOK(t, "function f() { return }")
	fn := prog.Body[0].(*FuncDecl)
	ret := fn.Body.Stmts[0].(*Return)
	if ret.Value != nil {
		t.Error("bare return should carry no value")
	}
}

func TestParseTryRequiresCatch(t *testing.T) {
	parseFail(t, "try { risky() }")
}

func TestParseCatchWithoutParam(t *testing.T) {
	prog := parseOK(t, "try { risky() } catch { recover() }")
	stmt := prog.Body[0].(*Try)
	if stmt.CatchParam != nil {
		t.Error("expected nil catch parameter")
	}
}

func TestParseNestingDepthLimit(t *testing.T) {
	deep := strings.Repeat("(", 100) + "1" + strings.Repeat(")", 100)
	se := parseFail(t, "let x = "+deep)
	if !strings.Contains(se.Msg, "nesting") {
		t.Errorf("expected nesting error, got %q", se.Msg)
	}
}

func TestParseErrorPosition(t *testing.T) {
	se := parseFail(t, "let x = \nlet")
	if se.Pos.Line != 2 {
		t.Errorf("expected error on line 2, got %d", se.Pos.Line)
	}
}

func TestWalkVisitsEveryNodeWithAncestors(t *testing.T) {
	prog := parseOK(t, "function f(a) { if (a) { return a + 1 } return 0 }")
	var idents, withProg int
	Walk(prog, func(n Node, ancestors []Node) {
		if _, ok := n.(*Ident); ok {
			idents++
		}
		if len(ancestors) > 0 && ancestors[0] == Node(prog) {
			withProg++
		}
	})
	// f, a (param), a (cond), a (operand)
	if idents != 4 {
		t.Errorf("expected 4 identifiers, got %d", idents)
	}
	if withProg == 0 {
		t.Error("ancestors should start at the program root")
	}
}

func findFirst[T Node](root Node) T {
	var found T
	var ok bool
	Walk(root, func(n Node, _ []Node) {
		if ok {
			return
		}
		if v, isT := n.(T); isT {
			found = v
			ok = true
		}
	})
	return found
}

func FuzzParse(f *testing.F) {
	f.Add("let a = 1")
	f.Add("function f(x) { return x * 2 }")
	f.Add("for (let i = 0; i < 10; i++) { total += i }")
	f.Add("let { a, b: [c, d] } = obj")
	f.Add("let s = `v=${x + 1}`")
	f.Add("try { callTool('t', {}) } catch (e) { log(e.message) }")
	f.Add("a ? b : c")
	f.Add("`${`")
	f.Add("((((((((")

	f.Fuzz(func(t *testing.T, src string) {
		prog, err := Parse(src)
		if err != nil {
			if _, ok := err.(*SyntaxError); !ok {
				t.Fatalf("non-syntax error from Parse: %T %v", err, err)
			}
			return
		}
		// Walking a successful parse must not panic
		Walk(prog, func(n Node, _ []Node) {
			_ = n.Pos()
		})
	})
}
