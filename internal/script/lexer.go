package script

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/scriptward/scriptward/internal/model"
)

// SyntaxError is a positioned lexical or parse failure.
type SyntaxError struct {
	Msg string
	Pos model.Position
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d:%d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

// Lexer scans source text into tokens. It never reads past the source
// slice and reports the first malformed construct as a *SyntaxError.
type Lexer struct {
	src        string
	start      int // start index of current token
	cur        int // current index
	line       int // 1-based
	col        int // 1-based column of cur
	baseOffset int // added to reported offsets (template sub-lexing)
	tokens     []Token

	tokStartLine int
	tokStartCol  int
}

// NewLexer creates a lexer for the given source.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1, col: 1}
}

// newLexerAt creates a lexer whose reported positions start at the
// given line, column, and byte offset. Used to lex template
// interpolation bodies at their true source location.
func newLexerAt(src string, line, col, offset int) *Lexer {
	return &Lexer{src: src, line: line, col: col, baseOffset: offset}
}

// Lex scans the entire source and returns the token stream terminated
// by an EOF token.
func Lex(src string) ([]Token, error) {
	return NewLexer(src).Lex()
}

func (l *Lexer) Lex() ([]Token, error) {
	for {
		if err := l.skipWhitespaceAndComments(); err != nil {
			return nil, err
		}
		if l.isAtEnd() {
			l.markStart()
			l.add(EOF, nil)
			return l.tokens, nil
		}
		if err := l.scanToken(); err != nil {
			return nil, err
		}
	}
}

func (l *Lexer) isAtEnd() bool { return l.cur >= len(l.src) }

func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.src[l.cur]
}

func (l *Lexer) peekNext() byte {
	if l.cur+1 >= len(l.src) {
		return 0
	}
	return l.src[l.cur+1]
}

func (l *Lexer) advance() byte {
	ch := l.src[l.cur]
	l.cur++
	if ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return ch
}

func (l *Lexer) match(expected byte) bool {
	if l.isAtEnd() || l.src[l.cur] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) markStart() {
	l.start = l.cur
	l.tokStartLine = l.line
	l.tokStartCol = l.col
}

func (l *Lexer) add(tt TokenType, lit any) {
	l.tokens = append(l.tokens, Token{
		Type:    tt,
		Lexeme:  l.src[l.start:l.cur],
		Literal: lit,
		Line:    l.tokStartLine,
		Col:     l.tokStartCol,
		Offset:  l.baseOffset + l.start,
	})
}

func (l *Lexer) errf(format string, args ...any) error {
	return &SyntaxError{
		Msg: fmt.Sprintf(format, args...),
		Pos: model.Position{Offset: l.baseOffset + l.start, Line: l.tokStartLine, Column: l.tokStartCol},
	}
}

func (l *Lexer) skipWhitespaceAndComments() error {
	for !l.isAtEnd() {
		switch l.peek() {
		case ' ', '\t', '\r', '\n':
			l.advance()
		case '/':
			if l.peekNext() == '/' {
				for !l.isAtEnd() && l.peek() != '\n' {
					l.advance()
				}
			} else if l.peekNext() == '*' {
				l.markStart()
				l.advance()
				l.advance()
				closed := false
				for !l.isAtEnd() {
					if l.peek() == '*' && l.peekNext() == '/' {
						l.advance()
						l.advance()
						closed = true
						break
					}
					l.advance()
				}
				if !closed {
					return l.errf("unterminated block comment")
				}
			} else {
				return nil
			}
		default:
			return nil
		}
	}
	return nil
}

func (l *Lexer) scanToken() error {
	l.markStart()
	ch := l.advance()

	switch ch {
	case '(':
		l.add(LPAREN, nil)
	case ')':
		l.add(RPAREN, nil)
	case '[':
		l.add(LBRACKET, nil)
	case ']':
		l.add(RBRACKET, nil)
	case '{':
		l.add(LBRACE, nil)
	case '}':
		l.add(RBRACE, nil)
	case ',':
		l.add(COMMA, nil)
	case ':':
		l.add(COLON, nil)
	case ';':
		l.add(SEMI, nil)
	case '?':
		l.add(QUESTION, nil)
	case '.':
		l.add(DOT, nil)
	case '%':
		l.add(PERCENT, nil)
	case '+':
		if l.match('+') {
			l.add(INC, nil)
		} else if l.match('=') {
			l.add(PLUSEQ, nil)
		} else {
			l.add(PLUS, nil)
		}
	case '-':
		if l.match('-') {
			l.add(DEC, nil)
		} else if l.match('=') {
			l.add(MINUSEQ, nil)
		} else {
			l.add(MINUS, nil)
		}
	case '*':
		if l.match('=') {
			l.add(STAREQ, nil)
		} else {
			l.add(STAR, nil)
		}
	case '/':
		if l.match('=') {
			l.add(SLASHEQ, nil)
		} else {
			l.add(SLASH, nil)
		}
	case '=':
		if l.match('=') {
			if l.match('=') {
				l.add(SEQ, nil)
			} else {
				l.add(EQ, nil)
			}
		} else {
			l.add(ASSIGN, nil)
		}
	case '!':
		if l.match('=') {
			if l.match('=') {
				l.add(SNEQ, nil)
			} else {
				l.add(NEQ, nil)
			}
		} else {
			l.add(NOT, nil)
		}
	case '<':
		if l.match('=') {
			l.add(LTE, nil)
		} else {
			l.add(LT, nil)
		}
	case '>':
		if l.match('=') {
			l.add(GTE, nil)
		} else {
			l.add(GT, nil)
		}
	case '&':
		if l.match('&') {
			l.add(ANDAND, nil)
		} else {
			return l.errf("unexpected character %q (did you mean &&?)", string(ch))
		}
	case '|':
		if l.match('|') {
			l.add(OROR, nil)
		} else {
			return l.errf("unexpected character %q (did you mean ||?)", string(ch))
		}
	case '\'', '"':
		return l.scanString(ch)
	case '`':
		return l.scanTemplate()
	default:
		if isDigit(ch) {
			return l.scanNumber()
		}
		if isIdentStart(ch) {
			l.scanIdent()
			return nil
		}
		return l.errf("unexpected character %q", string(ch))
	}
	return nil
}

func (l *Lexer) scanString(quote byte) error {
	var b strings.Builder
	for {
		if l.isAtEnd() {
			return l.errf("unterminated string literal")
		}
		ch := l.advance()
		if ch == quote {
			break
		}
		if ch == '\n' {
			return l.errf("unterminated string literal")
		}
		if ch == '\\' {
			dec, err := l.decodeEscape()
			if err != nil {
				return err
			}
			b.WriteString(dec)
			continue
		}
		b.WriteByte(ch)
	}
	l.add(STRING, b.String())
	return nil
}

func (l *Lexer) decodeEscape() (string, error) {
	if l.isAtEnd() {
		return "", l.errf("unterminated escape sequence")
	}
	ch := l.advance()
	switch ch {
	case 'n':
		return "\n", nil
	case 't':
		return "\t", nil
	case 'r':
		return "\r", nil
	case '0':
		return "\x00", nil
	case '\\', '\'', '"', '`', '$':
		return string(ch), nil
	case 'u':
		if l.cur+4 > len(l.src) {
			return "", l.errf("truncated \\u escape")
		}
		hex := l.src[l.cur : l.cur+4]
		n, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return "", l.errf("invalid \\u escape %q", hex)
		}
		for i := 0; i < 4; i++ {
			l.advance()
		}
		return string(rune(n)), nil
	default:
		return "", l.errf("unknown escape sequence \\%s", string(ch))
	}
}

// scanTemplate consumes a backtick template literal and emits a single
// TEMPLATE token whose Literal is a []TemplateChunk. Interpolated
// expressions are kept as raw source; the parser sub-parses them.
// Nested template literals inside an interpolation are not supported.
func (l *Lexer) scanTemplate() error {
	var chunks []TemplateChunk
	var text strings.Builder
	for {
		if l.isAtEnd() {
			return l.errf("unterminated template literal")
		}
		ch := l.advance()
		if ch == '`' {
			break
		}
		if ch == '\\' {
			dec, err := l.decodeEscape()
			if err != nil {
				return err
			}
			text.WriteString(dec)
			continue
		}
		if ch == '$' && l.peek() == '{' {
			l.advance() // consume "{"
			if text.Len() > 0 {
				chunks = append(chunks, TemplateChunk{Text: text.String()})
				text.Reset()
			}
			chunk, err := l.scanInterpolation()
			if err != nil {
				return err
			}
			chunks = append(chunks, chunk)
			continue
		}
		text.WriteByte(ch)
	}
	if text.Len() > 0 || len(chunks) == 0 {
		chunks = append(chunks, TemplateChunk{Text: text.String()})
	}
	l.add(TEMPLATE, chunks)
	return nil
}

// scanInterpolation reads a ${...} body up to its matching close brace,
// skipping braces inside nested string literals.
func (l *Lexer) scanInterpolation() (TemplateChunk, error) {
	chunk := TemplateChunk{IsExpr: true, Line: l.line, Col: l.col, Offset: l.baseOffset + l.cur}
	exprStart := l.cur
	depth := 1
	for {
		if l.isAtEnd() {
			return chunk, l.errf("unterminated template interpolation")
		}
		ch := l.advance()
		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				chunk.Expr = l.src[exprStart : l.cur-1]
				if strings.TrimSpace(chunk.Expr) == "" {
					return chunk, l.errf("empty template interpolation")
				}
				return chunk, nil
			}
		case '\'', '"':
			if err := l.skipQuoted(ch); err != nil {
				return chunk, err
			}
		case '`':
			return chunk, l.errf("nested template literals are not supported")
		}
	}
}

// skipQuoted consumes a quoted run inside an interpolation without
// decoding it; escapes are honored so a \" does not end the run.
func (l *Lexer) skipQuoted(quote byte) error {
	for {
		if l.isAtEnd() {
			return l.errf("unterminated string literal")
		}
		ch := l.advance()
		if ch == quote {
			return nil
		}
		if ch == '\\' && !l.isAtEnd() {
			l.advance()
		}
		if ch == '\n' {
			return l.errf("unterminated string literal")
		}
	}
}

func (l *Lexer) scanNumber() error {
	for isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && isDigit(l.peekNext()) {
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
	}
	if l.peek() == 'e' || l.peek() == 'E' {
		next := l.peekNext()
		if isDigit(next) || next == '+' || next == '-' {
			l.advance()
			if l.peek() == '+' || l.peek() == '-' {
				l.advance()
			}
			if !isDigit(l.peek()) {
				return l.errf("malformed number literal %q", l.src[l.start:l.cur])
			}
			for isDigit(l.peek()) {
				l.advance()
			}
		}
	}
	n, err := strconv.ParseFloat(l.src[l.start:l.cur], 64)
	if err != nil {
		return l.errf("malformed number literal %q", l.src[l.start:l.cur])
	}
	l.add(NUMBER, n)
	return nil
}

func (l *Lexer) scanIdent() {
	for isIdentPart(l.peek()) {
		l.advance()
	}
	name := l.src[l.start:l.cur]
	if tt, ok := keywords[name]; ok {
		l.add(tt, nil)
		return
	}
	l.add(IDENT, nil)
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(ch byte) bool {
	return ch == '_' || ch == '$' ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool { return isIdentStart(ch) || isDigit(ch) }
