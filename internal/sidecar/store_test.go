package sidecar

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestPutIssuesWellFormedTokens(t *testing.T) {
	s := NewStore()
	tok := s.Put("hello")
	if !IsToken(tok) {
		t.Errorf("Put returned malformed token %q", tok)
	}
	if !strings.HasPrefix(tok, "ref:") || len(tok) != 20 {
		t.Errorf("token %q should be ref: plus 16 hex digits", tok)
	}
}

func TestIsTokenMatchesFullPatternOnly(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ref:0123456789abcdef", true},
		{"ref:0123456789ABCDEF", false},
		{"ref:0123456789abcde", false},
		{"ref:0123456789abcdef0", false},
		{" ref:0123456789abcdef", false},
		{"ref:0123456789abcdef ", false},
		{"ref:0123456789abcdeg", false},
		{"ref:", false},
		{"", false},
		{"plain text", false},
	}
	for _, tt := range tests {
		if got := IsToken(tt.in); got != tt.want {
			t.Errorf("IsToken(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := NewStore()
	tok := s.Put("payload")
	v, ok := s.Get(tok)
	if !ok || v != "payload" {
		t.Errorf("Get(%q) = %v, %v", tok, v, ok)
	}
	if _, ok := s.Get("ref:0000000000000000"); ok {
		t.Error("Get returned a value for a token never issued")
	}
}

func TestTokensUniquePerStore(t *testing.T) {
	s := NewStore()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok := s.Put(i)
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

func TestPutCompositeValidatesParts(t *testing.T) {
	s := NewStore()
	if _, err := s.PutComposite([]Part{{Kind: PartRef, Ref: "ref:ffffffffffffffff"}}); err == nil {
		t.Error("composite over an unknown token accepted")
	}
	if _, err := s.PutComposite([]Part{{Kind: "other", Lit: "x"}}); err == nil {
		t.Error("composite with invalid part kind accepted")
	}

	base := s.Put("abc")
	tok, err := s.PutComposite([]Part{{Kind: PartRef, Ref: base}, {Kind: PartLit, Lit: "def"}})
	if err != nil {
		t.Fatalf("PutComposite: %v", err)
	}
	if !s.Contains(tok) {
		t.Error("store does not contain the composite it issued")
	}
	if _, ok := s.Get(tok); ok {
		t.Error("Get should not return composites as raw values")
	}
}

func TestLenCountsBothKinds(t *testing.T) {
	s := NewStore()
	a := s.Put("one")
	s.Put("two")
	if _, err := s.PutComposite([]Part{{Kind: PartRef, Ref: a}}); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
}

func TestClearInvalidatesEverything(t *testing.T) {
	s := NewStore()
	tok := s.Put("data")
	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len after Clear = %d", s.Len())
	}
	if s.Contains(tok) {
		t.Error("token survived Clear")
	}
	if _, err := s.Resolve(tok, 0); err == nil {
		t.Error("cleared token still resolves")
	}
}

func TestTokensReturnsInsertionOrder(t *testing.T) {
	s := NewStore()
	want := []string{s.Put("a"), s.Put("b"), s.Put("c")}
	if got := s.Tokens(); !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens() = %v, want %v", got, want)
	}
}

func TestStoreJSONRoundTrip(t *testing.T) {
	s := NewStore()
	base := s.Put(strings.Repeat("x", 40))
	comp, err := s.PutComposite([]Part{{Kind: PartRef, Ref: base}, {Kind: PartLit, Lit: "-tail"}})
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal store: %v", err)
	}
	restored := NewStore()
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("unmarshal store: %v", err)
	}

	if restored.Len() != s.Len() {
		t.Errorf("restored Len = %d, want %d", restored.Len(), s.Len())
	}
	if !reflect.DeepEqual(restored.Tokens(), s.Tokens()) {
		t.Error("restored store lost insertion order")
	}
	want, err := s.Resolve(comp, 0)
	if err != nil {
		t.Fatal(err)
	}
	got, err := restored.Resolve(comp, 0)
	if err != nil {
		t.Fatalf("resolve in restored store: %v", err)
	}
	if got != want {
		t.Errorf("restored composite resolved to %q, want %q", got, want)
	}
}

func TestCompositeJSONRoundTrip(t *testing.T) {
	c := &Composite{Parts: []Part{
		{Kind: PartRef, Ref: "ref:0123456789abcdef"},
		{Kind: PartLit, Lit: " and more"},
	}}
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	var back Composite
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(&back, c) {
		t.Errorf("round trip changed composite: %+v != %+v", back, c)
	}
}
