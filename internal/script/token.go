package script

import "fmt"

// TokenType represents the kind of token.
type TokenType int

const (
	// Special
	EOF TokenType = iota
	ILLEGAL

	// Punctuation
	LPAREN   // "("
	RPAREN   // ")"
	LBRACKET // "["
	RBRACKET // "]"
	LBRACE   // "{"
	RBRACE   // "}"
	COMMA    // ","
	COLON    // ":"
	SEMI     // ";"
	DOT      // "."
	QUESTION // "?"

	// Operators
	PLUS    // "+"
	MINUS   // "-"
	STAR    // "*"
	SLASH   // "/"
	PERCENT // "%"
	ASSIGN  // "="
	PLUSEQ  // "+="
	MINUSEQ // "-="
	STAREQ  // "*="
	SLASHEQ // "/="
	INC     // "++"
	DEC     // "--"
	EQ      // "=="
	NEQ     // "!="
	SEQ     // "==="
	SNEQ    // "!=="
	LT      // "<"
	LTE     // "<="
	GT      // ">"
	GTE     // ">="
	NOT     // "!"
	ANDAND  // "&&"
	OROR    // "||"

	// Literals & identifiers
	IDENT
	NUMBER
	STRING
	TEMPLATE

	// Keywords
	LET
	CONST
	FUNCTION
	IF
	ELSE
	WHILE
	FOR
	OF
	BREAK
	CONTINUE
	RETURN
	TRY
	CATCH
	TYPEOF
	TRUE
	FALSE
	NULL
)

var keywords = map[string]TokenType{
	"let":      LET,
	"const":    CONST,
	"function": FUNCTION,
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"for":      FOR,
	"of":       OF,
	"break":    BREAK,
	"continue": CONTINUE,
	"return":   RETURN,
	"try":      TRY,
	"catch":    CATCH,
	"typeof":   TYPEOF,
	"true":     TRUE,
	"false":    FALSE,
	"null":     NULL,
}

var tokenNames = map[TokenType]string{
	EOF:      "end of input",
	ILLEGAL:  "illegal token",
	LPAREN:   "(",
	RPAREN:   ")",
	LBRACKET: "[",
	RBRACKET: "]",
	LBRACE:   "{",
	RBRACE:   "}",
	COMMA:    ",",
	COLON:    ":",
	SEMI:     ";",
	DOT:      ".",
	QUESTION: "?",
	PLUS:     "+",
	MINUS:    "-",
	STAR:     "*",
	SLASH:    "/",
	PERCENT:  "%",
	ASSIGN:   "=",
	PLUSEQ:   "+=",
	MINUSEQ:  "-=",
	STAREQ:   "*=",
	SLASHEQ:  "/=",
	INC:      "++",
	DEC:      "--",
	EQ:       "==",
	NEQ:      "!=",
	SEQ:      "===",
	SNEQ:     "!==",
	LT:       "<",
	LTE:      "<=",
	GT:       ">",
	GTE:      ">=",
	NOT:      "!",
	ANDAND:   "&&",
	OROR:     "||",
	IDENT:    "identifier",
	NUMBER:   "number",
	STRING:   "string",
	TEMPLATE: "template literal",
	LET:      "let",
	CONST:    "const",
	FUNCTION: "function",
	IF:       "if",
	ELSE:     "else",
	WHILE:    "while",
	FOR:      "for",
	OF:       "of",
	BREAK:    "break",
	CONTINUE: "continue",
	RETURN:   "return",
	TRY:      "try",
	CATCH:    "catch",
	TYPEOF:   "typeof",
	TRUE:     "true",
	FALSE:    "false",
	NULL:     "null",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token is a lexical token with optional decoded literal value.
type Token struct {
	Type    TokenType
	Lexeme  string // raw text slice
	Literal any    // decoded value for NUMBER/STRING, []TemplateChunk for TEMPLATE
	Line    int    // 1-based
	Col     int    // 1-based
	Offset  int    // 0-based byte offset of the first byte
}

// TemplateChunk is one segment of a template literal: either decoded
// static text or the raw source of an interpolated expression.
type TemplateChunk struct {
	Text   string
	Expr   string
	IsExpr bool
	Line   int
	Col    int
	Offset int
}
