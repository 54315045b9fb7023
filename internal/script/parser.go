package script

import (
	"fmt"

	"github.com/scriptward/scriptward/internal/guard"
	"github.com/scriptward/scriptward/internal/model"
)

// Parser builds a syntax tree from a token stream. Structural nesting
// is re-checked during recursion against the same frozen cap the
// pre-scanner uses; upstream approval is not trusted at this boundary.
type Parser struct {
	toks    []Token
	cur     int
	nest    int
	maxNest int
}

// Parse lexes and parses a complete script.
func Parse(src string) (*Program, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks, maxNest: guard.Mandatory().MaxNestingDepth}
	return p.parseProgram()
}

// parseExprAt parses a standalone expression (a template interpolation
// body) positioned at its true source location.
func parseExprAt(src string, line, col, offset int) (Expr, error) {
	toks, err := newLexerAt(src, line, col, offset).Lex()
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks, maxNest: guard.Mandatory().MaxNestingDepth}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.at(EOF) {
		return nil, p.errAt(p.peek(), "unexpected %s after interpolated expression", p.peek().Type)
	}
	return e, nil
}

func (p *Parser) peek() Token { return p.toks[p.cur] }

func (p *Parser) at(t TokenType) bool { return p.toks[p.cur].Type == t }

func (p *Parser) advance() Token {
	t := p.toks[p.cur]
	if t.Type != EOF {
		p.cur++
	}
	return t
}

func (p *Parser) match(t TokenType) bool {
	if p.at(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(t TokenType, where string) (Token, error) {
	if p.at(t) {
		return p.advance(), nil
	}
	return Token{}, p.errAt(p.peek(), "expected %s in %s, found %s", t, where, p.peek().Type)
}

func (p *Parser) errAt(tok Token, format string, args ...any) error {
	return &SyntaxError{
		Msg: fmt.Sprintf(format, args...),
		Pos: tokPos(tok),
	}
}

func (p *Parser) enterNest(tok Token) error {
	p.nest++
	if p.nest > p.maxNest {
		return p.errAt(tok, "nesting exceeds depth %d", p.maxNest)
	}
	return nil
}

func (p *Parser) leaveNest() { p.nest-- }

func tokPos(t Token) model.Position {
	return model.Position{Offset: t.Offset, Line: t.Line, Column: t.Col}
}

func tokEnd(t Token) model.Position {
	return model.Position{Offset: t.Offset + len(t.Lexeme), Line: t.Line, Column: t.Col + len(t.Lexeme)}
}

func mkspan(start, end model.Position) span { return span{P: start, E: end} }

// --- Statements ---

func (p *Parser) parseProgram() (*Program, error) {
	prog := &Program{}
	start := tokPos(p.peek())
	for !p.at(EOF) {
		if p.match(SEMI) {
			continue
		}
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.Body = append(prog.Body, s)
	}
	prog.span = mkspan(start, tokEnd(p.prevOrFirst()))
	return prog, nil
}

func (p *Parser) prevOrFirst() Token {
	if p.cur == 0 {
		return p.toks[0]
	}
	return p.toks[p.cur-1]
}

func (p *Parser) parseStatement() (Stmt, error) {
	switch p.peek().Type {
	case LET, CONST:
		return p.parseVarDecl()
	case FUNCTION:
		return p.parseFuncDecl()
	case IF:
		return p.parseIf()
	case WHILE:
		return p.parseWhile()
	case FOR:
		return p.parseFor()
	case TRY:
		return p.parseTry()
	case BREAK:
		t := p.advance()
		p.match(SEMI)
		return &Break{span: mkspan(tokPos(t), tokEnd(t))}, nil
	case CONTINUE:
		t := p.advance()
		p.match(SEMI)
		return &Continue{span: mkspan(tokPos(t), tokEnd(t))}, nil
	case RETURN:
		return p.parseReturn()
	case LBRACE:
		return p.parseBlock()
	default:
		return p.parseExprStmt()
	}
}

func (p *Parser) parseVarDecl() (*VarDecl, error) {
	kindTok := p.advance()
	decl := &VarDecl{Kind: kindTok.Lexeme}
	for {
		d, err := p.parseDeclarator(decl.Kind)
		if err != nil {
			return nil, err
		}
		decl.Decls = append(decl.Decls, d)
		if !p.match(COMMA) {
			break
		}
	}
	p.match(SEMI)
	decl.span = mkspan(tokPos(kindTok), decl.Decls[len(decl.Decls)-1].End())
	return decl, nil
}

func (p *Parser) parseDeclarator(kind string) (*Declarator, error) {
	startTok := p.peek()
	target, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	d := &Declarator{Target: target}
	end := target.End()
	if p.match(ASSIGN) {
		init, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		d.Init = init
		end = init.End()
	} else {
		if kind == "const" {
			return nil, p.errAt(startTok, "const declaration requires an initializer")
		}
		if _, ok := target.(*Ident); !ok {
			return nil, p.errAt(startTok, "destructuring declaration requires an initializer")
		}
	}
	d.span = mkspan(tokPos(startTok), end)
	return d, nil
}

func (p *Parser) parsePattern() (Pattern, error) {
	switch p.peek().Type {
	case IDENT:
		t := p.advance()
		return &Ident{span: mkspan(tokPos(t), tokEnd(t)), Name: t.Lexeme}, nil
	case LBRACE:
		return p.parseObjectPattern()
	case LBRACKET:
		return p.parseArrayPattern()
	default:
		return nil, p.errAt(p.peek(), "expected identifier or destructuring pattern, found %s", p.peek().Type)
	}
}

func (p *Parser) parseObjectPattern() (*ObjectPattern, error) {
	open, err := p.expect(LBRACE, "object pattern")
	if err != nil {
		return nil, err
	}
	if err := p.enterNest(open); err != nil {
		return nil, err
	}
	defer p.leaveNest()

	pat := &ObjectPattern{}
	for !p.at(RBRACE) && !p.at(EOF) {
		prop, err := p.parsePatternProp()
		if err != nil {
			return nil, err
		}
		pat.Props = append(pat.Props, prop)
		if !p.match(COMMA) {
			break
		}
	}
	closeTok, err := p.expect(RBRACE, "object pattern")
	if err != nil {
		return nil, err
	}
	pat.span = mkspan(tokPos(open), tokEnd(closeTok))
	return pat, nil
}

func (p *Parser) parsePatternProp() (*PatternProp, error) {
	startTok := p.peek()
	prop := &PatternProp{}
	switch startTok.Type {
	case LBRACKET:
		p.advance()
		keyExpr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RBRACKET, "computed pattern key"); err != nil {
			return nil, err
		}
		if _, err := p.expect(COLON, "computed pattern key"); err != nil {
			return nil, err
		}
		value, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		prop.Computed = true
		prop.KeyExpr = keyExpr
		prop.Value = value
	case STRING:
		t := p.advance()
		if _, err := p.expect(COLON, "string pattern key"); err != nil {
			return nil, err
		}
		value, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		prop.Key = t.Literal.(string)
		prop.Value = value
	case IDENT:
		t := p.advance()
		prop.Key = t.Lexeme
		if p.match(COLON) {
			value, err := p.parsePattern()
			if err != nil {
				return nil, err
			}
			prop.Value = value
		} else {
			prop.Value = &Ident{span: mkspan(tokPos(t), tokEnd(t)), Name: t.Lexeme}
		}
	default:
		return nil, p.errAt(startTok, "expected property in object pattern, found %s", startTok.Type)
	}
	prop.span = mkspan(tokPos(startTok), prop.Value.End())
	return prop, nil
}

func (p *Parser) parseArrayPattern() (*ArrayPattern, error) {
	open, err := p.expect(LBRACKET, "array pattern")
	if err != nil {
		return nil, err
	}
	if err := p.enterNest(open); err != nil {
		return nil, err
	}
	defer p.leaveNest()

	pat := &ArrayPattern{}
	for !p.at(RBRACKET) && !p.at(EOF) {
		if p.at(COMMA) {
			pat.Elems = append(pat.Elems, nil) // elision hole
			p.advance()
			continue
		}
		el, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		pat.Elems = append(pat.Elems, el)
		if !p.match(COMMA) {
			break
		}
	}
	closeTok, err := p.expect(RBRACKET, "array pattern")
	if err != nil {
		return nil, err
	}
	pat.span = mkspan(tokPos(open), tokEnd(closeTok))
	return pat, nil
}

func (p *Parser) parseFuncDecl() (*FuncDecl, error) {
	fnTok := p.advance()
	nameTok, err := p.expect(IDENT, "function declaration")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN, "function parameters"); err != nil {
		return nil, err
	}
	fn := &FuncDecl{Name: &Ident{span: mkspan(tokPos(nameTok), tokEnd(nameTok)), Name: nameTok.Lexeme}}
	for !p.at(RPAREN) && !p.at(EOF) {
		paramTok, err := p.expect(IDENT, "function parameters")
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, &Ident{span: mkspan(tokPos(paramTok), tokEnd(paramTok)), Name: paramTok.Lexeme})
		if !p.match(COMMA) {
			break
		}
	}
	if _, err := p.expect(RPAREN, "function parameters"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	fn.Body = body
	fn.span = mkspan(tokPos(fnTok), body.End())
	return fn, nil
}

func (p *Parser) parseBlock() (*Block, error) {
	open, err := p.expect(LBRACE, "block")
	if err != nil {
		return nil, err
	}
	if err := p.enterNest(open); err != nil {
		return nil, err
	}
	defer p.leaveNest()

	blk := &Block{}
	for !p.at(RBRACE) && !p.at(EOF) {
		if p.match(SEMI) {
			continue
		}
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		blk.Stmts = append(blk.Stmts, s)
	}
	closeTok, err := p.expect(RBRACE, "block")
	if err != nil {
		return nil, err
	}
	blk.span = mkspan(tokPos(open), tokEnd(closeTok))
	return blk, nil
}

func (p *Parser) parseIf() (*If, error) {
	ifTok := p.advance()
	if _, err := p.expect(LPAREN, "if condition"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN, "if condition"); err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &If{Cond: cond, Then: then}
	end := then.End()
	if p.match(ELSE) {
		var els Stmt
		if p.at(IF) {
			els, err = p.parseIf()
		} else {
			els, err = p.parseBlock()
		}
		if err != nil {
			return nil, err
		}
		stmt.Else = els
		end = els.End()
	}
	stmt.span = mkspan(tokPos(ifTok), end)
	return stmt, nil
}

func (p *Parser) parseWhile() (*While, error) {
	whileTok := p.advance()
	if _, err := p.expect(LPAREN, "while condition"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN, "while condition"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &While{span: mkspan(tokPos(whileTok), body.End()), Cond: cond, Body: body}, nil
}

func (p *Parser) parseFor() (Stmt, error) {
	forTok := p.advance()
	if _, err := p.expect(LPAREN, "for clauses"); err != nil {
		return nil, err
	}

	if p.at(LET) || p.at(CONST) {
		kindTok := p.advance()
		target, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		if p.match(OF) {
			iter, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RPAREN, "for-of clauses"); err != nil {
				return nil, err
			}
			body, err := p.parseBlock()
			if err != nil {
				return nil, err
			}
			return &ForOf{
				span:   mkspan(tokPos(forTok), body.End()),
				Kind:   kindTok.Lexeme,
				Target: target,
				Iter:   iter,
				Body:   body,
			}, nil
		}
		init, err := p.finishForInit(kindTok, target)
		if err != nil {
			return nil, err
		}
		return p.finishClassicFor(forTok, init)
	}

	var init Stmt
	if !p.at(SEMI) {
		startTok := p.peek()
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		init = &ExprStmt{span: mkspan(tokPos(startTok), x.End()), X: x}
	}
	if _, err := p.expect(SEMI, "for clauses"); err != nil {
		return nil, err
	}
	return p.finishClassicFor(forTok, init)
}

// finishForInit builds the declaration statement for a classic for
// whose first pattern has already been consumed.
func (p *Parser) finishForInit(kindTok Token, target Pattern) (*VarDecl, error) {
	decl := &VarDecl{Kind: kindTok.Lexeme}
	first := &Declarator{Target: target}
	end := target.End()
	if p.match(ASSIGN) {
		init, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		first.Init = init
		end = init.End()
	} else if kindTok.Type == CONST {
		return nil, p.errAt(kindTok, "const declaration requires an initializer")
	}
	first.span = mkspan(target.Pos(), end)
	decl.Decls = append(decl.Decls, first)
	for p.match(COMMA) {
		d, err := p.parseDeclarator(decl.Kind)
		if err != nil {
			return nil, err
		}
		decl.Decls = append(decl.Decls, d)
	}
	if _, err := p.expect(SEMI, "for clauses"); err != nil {
		return nil, err
	}
	decl.span = mkspan(tokPos(kindTok), decl.Decls[len(decl.Decls)-1].End())
	return decl, nil
}

func (p *Parser) finishClassicFor(forTok Token, init Stmt) (Stmt, error) {
	var cond, post Expr
	var err error
	if !p.at(SEMI) {
		cond, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(SEMI, "for clauses"); err != nil {
		return nil, err
	}
	if !p.at(RPAREN) {
		post, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(RPAREN, "for clauses"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &For{
		span: mkspan(tokPos(forTok), body.End()),
		Init: init,
		Cond: cond,
		Post: post,
		Body: body,
	}, nil
}

func (p *Parser) parseTry() (*Try, error) {
	tryTok := p.advance()
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(CATCH, "try statement"); err != nil {
		return nil, err
	}
	stmt := &Try{Body: body}
	if p.match(LPAREN) {
		paramTok, err := p.expect(IDENT, "catch clause")
		if err != nil {
			return nil, err
		}
		stmt.CatchParam = &Ident{span: mkspan(tokPos(paramTok), tokEnd(paramTok)), Name: paramTok.Lexeme}
		if _, err := p.expect(RPAREN, "catch clause"); err != nil {
			return nil, err
		}
	}
	catch, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt.Catch = catch
	stmt.span = mkspan(tokPos(tryTok), catch.End())
	return stmt, nil
}

func (p *Parser) parseReturn() (*Return, error) {
	retTok := p.advance()
	stmt := &Return{}
	end := tokEnd(retTok)
	if !p.at(SEMI) && !p.at(RBRACE) && !p.at(EOF) {
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Value = v
		end = v.End()
	}
	p.match(SEMI)
	stmt.span = mkspan(tokPos(retTok), end)
	return stmt, nil
}

func (p *Parser) parseExprStmt() (*ExprStmt, error) {
	startTok := p.peek()
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.match(SEMI)
	return &ExprStmt{span: mkspan(tokPos(startTok), x.End()), X: x}, nil
}

// --- Expressions ---

func (p *Parser) parseExpr() (Expr, error) { return p.parseAssign() }

func (p *Parser) parseAssign() (Expr, error) {
	left, err := p.parseCond()
	if err != nil {
		return nil, err
	}
	var op string
	switch p.peek().Type {
	case ASSIGN:
		op = "="
	case PLUSEQ:
		op = "+="
	case MINUSEQ:
		op = "-="
	case STAREQ:
		op = "*="
	case SLASHEQ:
		op = "/="
	default:
		return left, nil
	}
	opTok := p.advance()
	if !isAssignTarget(left) {
		return nil, p.errAt(opTok, "invalid assignment target")
	}
	value, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	return &Assign{
		span:   mkspan(left.Pos(), value.End()),
		Op:     op,
		Target: left,
		Value:  value,
	}, nil
}

func isAssignTarget(e Expr) bool {
	switch e.(type) {
	case *Ident, *Member:
		return true
	}
	return false
}

func (p *Parser) parseCond() (Expr, error) {
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.match(QUESTION) {
		return cond, nil
	}
	then, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON, "conditional expression"); err != nil {
		return nil, err
	}
	els, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	return &Cond{span: mkspan(cond.Pos(), els.End()), Cond: cond, Then: then, Else: els}, nil
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(OROR) {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Logical{span: mkspan(left.Pos(), right.End()), Op: "||", X: left, Y: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.at(ANDAND) {
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &Logical{span: mkspan(left.Pos(), right.End()), Op: "&&", X: left, Y: right}
	}
	return left, nil
}

func (p *Parser) parseEquality() (Expr, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.peek().Type {
		case EQ:
			op = "=="
		case NEQ:
			op = "!="
		case SEQ:
			op = "==="
		case SNEQ:
			op = "!=="
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = &Binary{span: mkspan(left.Pos(), right.End()), Op: op, X: left, Y: right}
	}
}

func (p *Parser) parseRelational() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.peek().Type {
		case LT:
			op = "<"
		case LTE:
			op = "<="
		case GT:
			op = ">"
		case GTE:
			op = ">="
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &Binary{span: mkspan(left.Pos(), right.End()), Op: op, X: left, Y: right}
	}
}

func (p *Parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.peek().Type {
		case PLUS:
			op = "+"
		case MINUS:
			op = "-"
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{span: mkspan(left.Pos(), right.End()), Op: op, X: left, Y: right}
	}
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.peek().Type {
		case STAR:
			op = "*"
		case SLASH:
			op = "/"
		case PERCENT:
			op = "%"
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{span: mkspan(left.Pos(), right.End()), Op: op, X: left, Y: right}
	}
}

func (p *Parser) parseUnary() (Expr, error) {
	switch p.peek().Type {
	case NOT, MINUS, TYPEOF:
		opTok := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{span: mkspan(tokPos(opTok), x.End()), Op: opTok.Lexeme, X: x}, nil
	case INC, DEC:
		opTok := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if !isAssignTarget(x) {
			return nil, p.errAt(opTok, "invalid %s target", opTok.Lexeme)
		}
		return &Update{span: mkspan(tokPos(opTok), x.End()), Op: opTok.Lexeme, Prefix: true, X: x}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case LPAREN:
			open := p.advance()
			if err := p.enterNest(open); err != nil {
				return nil, err
			}
			call := &Call{Callee: x}
			for !p.at(RPAREN) && !p.at(EOF) {
				arg, err := p.parseAssign()
				if err != nil {
					p.leaveNest()
					return nil, err
				}
				call.Args = append(call.Args, arg)
				if !p.match(COMMA) {
					break
				}
			}
			closeTok, err := p.expect(RPAREN, "call arguments")
			p.leaveNest()
			if err != nil {
				return nil, err
			}
			call.span = mkspan(x.Pos(), tokEnd(closeTok))
			x = call
		case DOT:
			p.advance()
			propTok, err := p.expect(IDENT, "property access")
			if err != nil {
				return nil, err
			}
			x = &Member{span: mkspan(x.Pos(), tokEnd(propTok)), X: x, Prop: propTok.Lexeme}
		case LBRACKET:
			open := p.advance()
			if err := p.enterNest(open); err != nil {
				return nil, err
			}
			propExpr, err := p.parseExpr()
			if err != nil {
				p.leaveNest()
				return nil, err
			}
			closeTok, err := p.expect(RBRACKET, "computed property access")
			p.leaveNest()
			if err != nil {
				return nil, err
			}
			x = &Member{span: mkspan(x.Pos(), tokEnd(closeTok)), X: x, Computed: true, PropExpr: propExpr}
		case INC, DEC:
			opTok := p.advance()
			if !isAssignTarget(x) {
				return nil, p.errAt(opTok, "invalid %s target", opTok.Lexeme)
			}
			x = &Update{span: mkspan(x.Pos(), tokEnd(opTok)), Op: opTok.Lexeme, X: x}
		default:
			return x, nil
		}
	}
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case NUMBER:
		p.advance()
		return &NumberLit{span: mkspan(tokPos(tok), tokEnd(tok)), Value: tok.Literal.(float64)}, nil
	case STRING:
		p.advance()
		return &StringLit{span: mkspan(tokPos(tok), tokEnd(tok)), Value: tok.Literal.(string)}, nil
	case TRUE, FALSE:
		p.advance()
		return &BoolLit{span: mkspan(tokPos(tok), tokEnd(tok)), Value: tok.Type == TRUE}, nil
	case NULL:
		p.advance()
		return &NullLit{span: mkspan(tokPos(tok), tokEnd(tok))}, nil
	case IDENT:
		p.advance()
		return &Ident{span: mkspan(tokPos(tok), tokEnd(tok)), Name: tok.Lexeme}, nil
	case TEMPLATE:
		p.advance()
		return p.buildTemplate(tok)
	case LPAREN:
		open := p.advance()
		if err := p.enterNest(open); err != nil {
			return nil, err
		}
		x, err := p.parseExpr()
		if err != nil {
			p.leaveNest()
			return nil, err
		}
		_, err = p.expect(RPAREN, "parenthesized expression")
		p.leaveNest()
		if err != nil {
			return nil, err
		}
		return x, nil
	case LBRACKET:
		return p.parseArrayLit()
	case LBRACE:
		return p.parseObjectLit()
	default:
		return nil, p.errAt(tok, "unexpected %s", tok.Type)
	}
}

func (p *Parser) buildTemplate(tok Token) (Expr, error) {
	chunks := tok.Literal.([]TemplateChunk)
	lit := &TemplateLit{span: mkspan(tokPos(tok), tokEnd(tok))}
	for _, c := range chunks {
		if !c.IsExpr {
			lit.Parts = append(lit.Parts, TemplatePart{Text: c.Text})
			continue
		}
		e, err := parseExprAt(c.Expr, c.Line, c.Col, c.Offset)
		if err != nil {
			return nil, err
		}
		lit.Parts = append(lit.Parts, TemplatePart{Expr: e})
	}
	return lit, nil
}

func (p *Parser) parseArrayLit() (Expr, error) {
	open := p.advance()
	if err := p.enterNest(open); err != nil {
		return nil, err
	}
	defer p.leaveNest()

	arr := &ArrayLit{}
	for !p.at(RBRACKET) && !p.at(EOF) {
		el, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		arr.Elems = append(arr.Elems, el)
		if !p.match(COMMA) {
			break
		}
	}
	closeTok, err := p.expect(RBRACKET, "array literal")
	if err != nil {
		return nil, err
	}
	arr.span = mkspan(tokPos(open), tokEnd(closeTok))
	return arr, nil
}

func (p *Parser) parseObjectLit() (Expr, error) {
	open := p.advance()
	if err := p.enterNest(open); err != nil {
		return nil, err
	}
	defer p.leaveNest()

	obj := &ObjectLit{}
	for !p.at(RBRACE) && !p.at(EOF) {
		prop, err := p.parseObjectProp()
		if err != nil {
			return nil, err
		}
		obj.Props = append(obj.Props, prop)
		if !p.match(COMMA) {
			break
		}
	}
	closeTok, err := p.expect(RBRACE, "object literal")
	if err != nil {
		return nil, err
	}
	obj.span = mkspan(tokPos(open), tokEnd(closeTok))
	return obj, nil
}

func (p *Parser) parseObjectProp() (*ObjectProp, error) {
	startTok := p.peek()
	prop := &ObjectProp{}
	switch startTok.Type {
	case LBRACKET:
		p.advance()
		keyExpr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RBRACKET, "computed property key"); err != nil {
			return nil, err
		}
		if _, err := p.expect(COLON, "computed property key"); err != nil {
			return nil, err
		}
		value, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		prop.Computed = true
		prop.KeyExpr = keyExpr
		prop.Value = value
	case STRING:
		t := p.advance()
		if _, err := p.expect(COLON, "object property"); err != nil {
			return nil, err
		}
		value, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		prop.Key = t.Literal.(string)
		prop.Value = value
	case IDENT:
		t := p.advance()
		prop.Key = t.Lexeme
		if p.match(COLON) {
			value, err := p.parseAssign()
			if err != nil {
				return nil, err
			}
			prop.Value = value
		} else {
			// shorthand {a}
			prop.Value = &Ident{span: mkspan(tokPos(t), tokEnd(t)), Name: t.Lexeme}
		}
	case NUMBER:
		t := p.advance()
		if _, err := p.expect(COLON, "object property"); err != nil {
			return nil, err
		}
		value, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		prop.Key = t.Lexeme
		prop.Value = value
	default:
		return nil, p.errAt(startTok, "expected property in object literal, found %s", startTok.Type)
	}
	prop.span = mkspan(tokPos(startTok), prop.Value.End())
	return prop, nil
}
