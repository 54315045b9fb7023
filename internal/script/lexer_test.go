package script

import (
	"strings"
	"testing"
)

func lexOK(t *testing.T, src string) []Token {
	t.Helper()
	toks, err := Lex(src)
	if err != nil {
		t.Fatalf("unexpected lex error: %v", err)
	}
	return toks
}

func lexFail(t *testing.T, src string) *SyntaxError {
	t.Helper()
	_, err := Lex(src)
	if err == nil {
		t.Fatal("expected lex error, got nil")
	}
	se, ok := err.(*SyntaxError)
	if !ok {
		t.Fatalf("expected *SyntaxError, got %T: %v", err, err)
	}
	return se
}

func TestLexOperators(t *testing.T) {
	toks := lexOK(t, "a === b !== c <= d >= e && f || !g")
	want := []TokenType{IDENT, SEQ, IDENT, SNEQ, IDENT, LTE, IDENT, GTE, IDENT, ANDAND, IDENT, OROR, NOT, IDENT, EOF}
	if len(toks) != len(want) {
		t.Fatalf("expected %d tokens, got %d", len(want), len(toks))
	}
	for i, tt := range want {
		if toks[i].Type != tt {
			t.Errorf("token %d: expected %s, got %s", i, tt, toks[i].Type)
		}
	}
}

func TestLexCompoundAssign(t *testing.T) {
	toks := lexOK(t, "x += 1; x -= 2; x *= 3; x /= 4; x++; x--")
	var got []TokenType
	for _, tok := range toks {
		switch tok.Type {
		case PLUSEQ, MINUSEQ, STAREQ, SLASHEQ, INC, DEC:
			got = append(got, tok.Type)
		}
	}
	want := []TokenType{PLUSEQ, MINUSEQ, STAREQ, SLASHEQ, INC, DEC}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("operator %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestLexKeywords(t *testing.T) {
	toks := lexOK(t, "let const function if else while for of break continue return try catch typeof true false null")
	want := []TokenType{LET, CONST, FUNCTION, IF, ELSE, WHILE, FOR, OF, BREAK, CONTINUE, RETURN, TRY, CATCH, TYPEOF, TRUE, FALSE, NULL, EOF}
	for i, tt := range want {
		if toks[i].Type != tt {
			t.Errorf("token %d: expected %s, got %s", i, tt, toks[i].Type)
		}
	}
}

func TestLexNumbers(t *testing.T) {
	tests := []struct {
		src  string
		want float64
	}{
		{"0", 0},
		{"42", 42},
		{"3.25", 3.25},
		{"1e3", 1000},
		{"2.5e-2", 0.025},
	}
	for _, tt := range tests {
		toks := lexOK(t, tt.src)
		if toks[0].Type != NUMBER {
			t.Fatalf("%q: expected NUMBER, got %s", tt.src, toks[0].Type)
		}
		if got := toks[0].Literal.(float64); got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.src, tt.want, got)
		}
	}
}

func TestLexStringEscapes(t *testing.T) {
	toks := lexOK(t, `'a\nb\tA\\'`)
	if toks[0].Type != STRING {
		t.Fatalf("expected STRING, got %s", toks[0].Type)
	}
	if got := toks[0].Literal.(string); got != "a\nb\tA\\" {
		t.Errorf("unexpected decoded string: %q", got)
	}
}

func TestLexUnterminatedString(t *testing.T) {
	se := lexFail(t, `let s = "abc`)
	if !strings.Contains(se.Msg, "unterminated") {
		t.Errorf("expected unterminated string error, got %q", se.Msg)
	}
}

func TestLexSingleAmpersand(t *testing.T) {
	se := lexFail(t, "a & b")
	if !strings.Contains(se.Msg, "&&") {
		t.Errorf("expected hint about &&, got %q", se.Msg)
	}
}

func TestLexComments(t *testing.T) {
	toks := lexOK(t, "1 // line comment\n/* block\ncomment */ 2")
	if toks[0].Type != NUMBER || toks[1].Type != NUMBER || toks[2].Type != EOF {
		t.Fatalf("comments should be skipped, got %v %v %v", toks[0].Type, toks[1].Type, toks[2].Type)
	}
	if toks[1].Line != 3 {
		t.Errorf("expected second number on line 3, got %d", toks[1].Line)
	}
}

func TestLexUnterminatedBlockComment(t *testing.T) {
	lexFail(t, "1 /* never closed")
}

func TestLexTemplateChunks(t *testing.T) {
	toks := lexOK(t, "`a ${x + 1} b`")
	if toks[0].Type != TEMPLATE {
		t.Fatalf("expected TEMPLATE, got %s", toks[0].Type)
	}
	chunks := toks[0].Literal.([]TemplateChunk)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].IsExpr || chunks[0].Text != "a " {
		t.Errorf("chunk 0: expected text %q, got %+v", "a ", chunks[0])
	}
	if !chunks[1].IsExpr || chunks[1].Expr != "x + 1" {
		t.Errorf("chunk 1: expected expr %q, got %+v", "x + 1", chunks[1])
	}
	if chunks[2].IsExpr || chunks[2].Text != " b" {
		t.Errorf("chunk 2: expected text %q, got %+v", " b", chunks[2])
	}
}

func TestLexNestedTemplateRejected(t *testing.T) {
	se := lexFail(t, "`outer ${`inner`}`")
	if !strings.Contains(se.Msg, "nested template") {
		t.Errorf("expected nested template error, got %q", se.Msg)
	}
}

func TestLexEmptyInterpolation(t *testing.T) {
	lexFail(t, "`a ${} b`")
}

func TestLexTemplateInterpolationPosition(t *testing.T) {
	src := "let x = `ab ${foo} cd`"
	toks := lexOK(t, src)
	var chunks []TemplateChunk
	for _, tok := range toks {
		if tok.Type == TEMPLATE {
			chunks = tok.Literal.([]TemplateChunk)
		}
	}
	if chunks == nil {
		t.Fatal("no template token found")
	}
	var expr *TemplateChunk
	for i := range chunks {
		if chunks[i].IsExpr {
			expr = &chunks[i]
		}
	}
	if expr == nil {
		t.Fatal("no interpolation chunk found")
	}
	if src[expr.Offset:expr.Offset+len(expr.Expr)] != "foo" {
		t.Errorf("interpolation offset %d does not point at source text", expr.Offset)
	}
}

func TestLexPositions(t *testing.T) {
	toks := lexOK(t, "let x\nlet y")
	if toks[0].Line != 1 || toks[0].Col != 1 {
		t.Errorf("first token: expected 1:1, got %d:%d", toks[0].Line, toks[0].Col)
	}
	if toks[2].Line != 2 || toks[2].Col != 1 {
		t.Errorf("third token: expected 2:1, got %d:%d", toks[2].Line, toks[2].Col)
	}
	if toks[3].Offset != strings.Index("let x\nlet y", "y") {
		t.Errorf("y token offset: expected %d, got %d", strings.Index("let x\nlet y", "y"), toks[3].Offset)
	}
}

func TestLexDollarAndUnderscore(t *testing.T) {
	toks := lexOK(t, "$foo __bar _$9")
	for i := 0; i < 3; i++ {
		if toks[i].Type != IDENT {
			t.Errorf("token %d: expected IDENT, got %s", i, toks[i].Type)
		}
	}
}

func TestLexIllegalCharacter(t *testing.T) {
	lexFail(t, "let a = 1 @ 2")
}
