package script

import "github.com/scriptward/scriptward/internal/model"

// Node is implemented by every syntax tree node.
type Node interface {
	Pos() model.Position
	End() model.Position
}

// Stmt is implemented by statement nodes.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is implemented by expression nodes.
type Expr interface {
	Node
	exprNode()
}

// Pattern is implemented by binding targets: identifiers and
// object/array destructuring patterns.
type Pattern interface {
	Node
	patternNode()
}

// span carries the source extent of a node. End offsets are exact;
// End line/column are approximate for multi-line tokens.
type span struct {
	P model.Position
	E model.Position
}

func (s span) Pos() model.Position { return s.P }
func (s span) End() model.Position { return s.E }

// Program is the root node of a parsed script.
type Program struct {
	span
	Body []Stmt
}

// VarDecl is a let/const declaration with one or more declarators.
type VarDecl struct {
	span
	Kind  string // "let" or "const"
	Decls []*Declarator
}

// Declarator binds one pattern to an optional initializer.
type Declarator struct {
	span
	Target Pattern
	Init   Expr // nil when absent (const requires one)
}

// FuncDecl is a named function declaration.
type FuncDecl struct {
	span
	Name   *Ident
	Params []*Ident
	Body   *Block
}

// Block is a braced statement list.
type Block struct {
	span
	Stmts []Stmt
}

// ExprStmt wraps an expression used as a statement.
type ExprStmt struct {
	span
	X Expr
}

// If is an if/else statement. Else is nil, a *Block, or a nested *If.
type If struct {
	span
	Cond Expr
	Then *Block
	Else Stmt
}

// While is a while loop.
type While struct {
	span
	Cond Expr
	Body *Block
}

// For is a classic three-clause for loop; any clause may be nil.
type For struct {
	span
	Init Stmt // *VarDecl or *ExprStmt
	Cond Expr
	Post Expr
	Body *Block
}

// ForOf iterates the elements of an array value.
type ForOf struct {
	span
	Kind   string // "let" or "const"
	Target Pattern
	Iter   Expr
	Body   *Block
}

// Break terminates the innermost loop.
type Break struct{ span }

// Continue advances the innermost loop.
type Continue struct{ span }

// Return exits the enclosing function (or the script, at top level).
type Return struct {
	span
	Value Expr // nil for bare return
}

// Try is a try/catch statement. The catch clause is required.
type Try struct {
	span
	Body       *Block
	CatchParam *Ident // nil for catch {}
	Catch      *Block
}

// Ident is an identifier reference or binding.
type Ident struct {
	span
	Name string
}

// NumberLit is a numeric literal.
type NumberLit struct {
	span
	Value float64
}

// StringLit is a decoded string literal.
type StringLit struct {
	span
	Value string
}

// BoolLit is true or false.
type BoolLit struct {
	span
	Value bool
}

// NullLit is the null literal.
type NullLit struct{ span }

// TemplateLit is a template literal with interleaved static text and
// interpolated expressions.
type TemplateLit struct {
	span
	Parts []TemplatePart
}

// TemplatePart is one template segment; Expr is nil for static text.
type TemplatePart struct {
	Text string
	Expr Expr
}

// ArrayLit is an array literal.
type ArrayLit struct {
	span
	Elems []Expr
}

// ObjectLit is an object literal.
type ObjectLit struct {
	span
	Props []*ObjectProp
}

// ObjectProp is one object literal property. Computed keys are legal
// in construction position.
type ObjectProp struct {
	span
	Key      string
	Computed bool
	KeyExpr  Expr // set iff Computed
	Value    Expr
}

// Unary is a prefix operator expression: !, -, typeof.
type Unary struct {
	span
	Op string
	X  Expr
}

// Update is ++ or -- in prefix or postfix position.
type Update struct {
	span
	Op     string // "++" or "--"
	Prefix bool
	X      Expr // *Ident or *Member
}

// Binary is an arithmetic or comparison expression.
type Binary struct {
	span
	Op   string
	X, Y Expr
}

// Logical is && or || with short-circuit evaluation.
type Logical struct {
	span
	Op   string
	X, Y Expr
}

// Cond is the ternary conditional expression.
type Cond struct {
	span
	Cond, Then, Else Expr
}

// Assign is plain or compound assignment. Target is *Ident or *Member.
type Assign struct {
	span
	Op     string // "=", "+=", "-=", "*=", "/="
	Target Expr
	Value  Expr
}

// Member is property access, dotted or computed.
type Member struct {
	span
	X        Expr
	Prop     string
	Computed bool
	PropExpr Expr // set iff Computed
}

// Call is a function or builtin invocation.
type Call struct {
	span
	Callee Expr
	Args   []Expr
}

// ObjectPattern destructures an object in a declaration.
type ObjectPattern struct {
	span
	Props []*PatternProp
}

// PatternProp is one destructuring property. Computed keys parse here
// so the validator can reject each one with a position.
type PatternProp struct {
	span
	Key      string
	Computed bool
	KeyExpr  Expr // set iff Computed
	Value    Pattern
}

// ArrayPattern destructures an array in a declaration. Nil elements
// are elision holes.
type ArrayPattern struct {
	span
	Elems []Pattern
}

func (*VarDecl) stmtNode()  {}
func (*FuncDecl) stmtNode() {}
func (*Block) stmtNode()    {}
func (*ExprStmt) stmtNode() {}
func (*If) stmtNode()       {}
func (*While) stmtNode()    {}
func (*For) stmtNode()      {}
func (*ForOf) stmtNode()    {}
func (*Break) stmtNode()    {}
func (*Continue) stmtNode() {}
func (*Return) stmtNode()   {}
func (*Try) stmtNode()      {}

func (*Ident) exprNode()       {}
func (*NumberLit) exprNode()   {}
func (*StringLit) exprNode()   {}
func (*BoolLit) exprNode()     {}
func (*NullLit) exprNode()     {}
func (*TemplateLit) exprNode() {}
func (*ArrayLit) exprNode()    {}
func (*ObjectLit) exprNode()   {}
func (*Unary) exprNode()       {}
func (*Update) exprNode()      {}
func (*Binary) exprNode()      {}
func (*Logical) exprNode()     {}
func (*Cond) exprNode()        {}
func (*Assign) exprNode()      {}
func (*Member) exprNode()      {}
func (*Call) exprNode()        {}

func (*Ident) patternNode()         {}
func (*ObjectPattern) patternNode() {}
func (*ArrayPattern) patternNode()  {}

// Walk traverses the tree depth-first in document order, calling fn for
// every node with its ancestor chain (outermost first). The ancestors
// slice is reused between calls and must not be retained.
func Walk(root Node, fn func(n Node, ancestors []Node)) {
	w := &walker{fn: fn}
	w.walk(root)
}

type walker struct {
	fn    func(Node, []Node)
	stack []Node
}

func (w *walker) walk(n Node) {
	if n == nil {
		return
	}
	w.fn(n, w.stack)
	w.stack = append(w.stack, n)
	defer func() { w.stack = w.stack[:len(w.stack)-1] }()

	switch t := n.(type) {
	case *Program:
		for _, s := range t.Body {
			w.walk(s)
		}
	case *VarDecl:
		for _, d := range t.Decls {
			w.walk(d)
		}
	case *Declarator:
		w.walk(t.Target)
		w.walk(t.Init)
	case *FuncDecl:
		w.walk(t.Name)
		for _, p := range t.Params {
			w.walk(p)
		}
		w.walk(t.Body)
	case *Block:
		for _, s := range t.Stmts {
			w.walk(s)
		}
	case *ExprStmt:
		w.walk(t.X)
	case *If:
		w.walk(t.Cond)
		w.walk(t.Then)
		w.walk(t.Else)
	case *While:
		w.walk(t.Cond)
		w.walk(t.Body)
	case *For:
		w.walk(t.Init)
		w.walk(t.Cond)
		w.walk(t.Post)
		w.walk(t.Body)
	case *ForOf:
		w.walk(t.Target)
		w.walk(t.Iter)
		w.walk(t.Body)
	case *Return:
		w.walk(t.Value)
	case *Try:
		w.walk(t.Body)
		if t.CatchParam != nil {
			w.walk(t.CatchParam)
		}
		w.walk(t.Catch)
	case *TemplateLit:
		for _, p := range t.Parts {
			w.walk(p.Expr)
		}
	case *ArrayLit:
		for _, e := range t.Elems {
			w.walk(e)
		}
	case *ObjectLit:
		for _, p := range t.Props {
			w.walk(p)
		}
	case *ObjectProp:
		w.walk(t.KeyExpr)
		w.walk(t.Value)
	case *Unary:
		w.walk(t.X)
	case *Update:
		w.walk(t.X)
	case *Binary:
		w.walk(t.X)
		w.walk(t.Y)
	case *Logical:
		w.walk(t.X)
		w.walk(t.Y)
	case *Cond:
		w.walk(t.Cond)
		w.walk(t.Then)
		w.walk(t.Else)
	case *Assign:
		w.walk(t.Target)
		w.walk(t.Value)
	case *Member:
		w.walk(t.X)
		w.walk(t.PropExpr)
	case *Call:
		w.walk(t.Callee)
		for _, a := range t.Args {
			w.walk(a)
		}
	case *ObjectPattern:
		for _, p := range t.Props {
			w.walk(p)
		}
	case *PatternProp:
		w.walk(t.KeyExpr)
		w.walk(t.Value)
	case *ArrayPattern:
		for _, e := range t.Elems {
			w.walk(e)
		}
	}
}
