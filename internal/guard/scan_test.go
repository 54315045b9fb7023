package guard

import (
	"strings"
	"testing"

	"github.com/scriptward/scriptward/internal/model"
)

func scanDefault(t *testing.T, src string) *State {
	t.Helper()
	return Scan(src, DefaultConfig())
}

func requireFatal(t *testing.T, st *State, code string) model.Issue {
	t.Helper()
	if st.OK() {
		t.Fatalf("expected fatal %s, scan passed with %d issues", code, len(st.Issues()))
	}
	for _, is := range st.Issues() {
		if is.Code == code && is.Fatal() {
			return is
		}
	}
	t.Fatalf("expected fatal %s, got %v", code, st.Result().IssueCodes())
	return model.Issue{}
}

func TestScanCleanSource(t *testing.T) {
	st := scanDefault(t, `
let total = 0;
for (let i = 0; i < 10; i++) {
  total += i;
}
let msg = "done: " + total;
`)
	if !st.OK() {
		t.Fatalf("clean source rejected: %v", st.Issues())
	}
	if len(st.Issues()) != 0 {
		t.Errorf("expected no issues, got %v", st.Result().IssueCodes())
	}
}

func TestScanSourceTooLarge(t *testing.T) {
	st := scanDefault(t, strings.Repeat("a", 256*1024+1))
	is := requireFatal(t, st, model.CodeSourceTooLarge)
	if len(st.Issues()) != 1 {
		t.Errorf("size check should stop the pipeline, got %d issues", len(st.Issues()))
	}
	if is.Data["limit"] != 256*1024 {
		t.Errorf("expected limit %d in issue data, got %v", 256*1024, is.Data["limit"])
	}
}

func TestScanTooManyLines(t *testing.T) {
	st := scanDefault(t, strings.Repeat("x\n", 5001))
	requireFatal(t, st, model.CodeTooManyLines)
}

func TestScanLineTooLong(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxLineLength = 100
	st := Scan("short\n"+strings.Repeat("b", 150), cfg)
	is := requireFatal(t, st, model.CodeLineTooLong)
	if is.Pos.Line != 2 {
		t.Errorf("expected violation on line 2, got %d", is.Pos.Line)
	}
}

func TestScanNestingTooDeep(t *testing.T) {
	st := scanDefault(t, strings.Repeat("[", 65))
	requireFatal(t, st, model.CodeNestingTooDeep)
}

func TestScanNestingCountsAllBracketKinds(t *testing.T) {
	st := scanDefault(t, strings.Repeat("([{", 22)) // depth 66
	requireFatal(t, st, model.CodeNestingTooDeep)
}

func TestScanStringTooLong(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxStringLength = 10
	st := Scan(`let s = "`+strings.Repeat("a", 16)+`"`, cfg)
	requireFatal(t, st, model.CodeStringTooLong)
}

func TestScanTotalStringBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxStringLength = 15
	cfg.Limits.MaxTotalStringBytes = 25
	src := `let a = "aaaaaaaaaa"` + "\n" + `let b = "bbbbbbbbbb"` + "\n" + `let c = "cccccccccc"`
	st := Scan(src, cfg)
	is := requireFatal(t, st, model.CodeTotalStringsTooLarge)
	if is.Pos.Line != 3 {
		t.Errorf("expected budget blown on line 3, got %d", is.Pos.Line)
	}
}

func TestScanTemplateCountsTowardStrings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxStringLength = 10
	st := Scan("let s = `"+strings.Repeat("t", 16)+"`", cfg)
	requireFatal(t, st, model.CodeStringTooLong)
}

func TestScanRegexShapedRunTooLong(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxRegexLength = 5
	st := Scan("let re = /"+strings.Repeat("r", 10)+"/", cfg)
	requireFatal(t, st, model.CodeRegexTooLong)
}

func TestScanTooManyRegexShapedRuns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxRegexCount = 2
	st := Scan("let a = /x/\nlet b = /y/\nlet c = /z/", cfg)
	requireFatal(t, st, model.CodeTooManyRegexes)
}

func TestScanDivisionIsNotRegex(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxRegexCount = 1
	st := Scan("let x = a / b / c / d\nlet y = (n) / m", cfg)
	if !st.OK() {
		t.Fatalf("division misread as regex: %v", st.Issues())
	}
}

func TestScanRegexClassMayContainSlash(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxRegexLength = 20
	st := Scan("let re = /a[/]b/", cfg)
	if !st.OK() {
		t.Fatalf("slash inside character class ended the run: %v", st.Issues())
	}
}

func TestScanStringsInCommentsIgnored(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxStringLength = 5
	src := "// \"" + strings.Repeat("a", 50) + "\"\n/* '" + strings.Repeat("b", 50) + "' */\nlet x = 1"
	st := Scan(src, cfg)
	if !st.OK() {
		t.Fatalf("comment content counted as strings: %v", st.Issues())
	}
}

func TestScanBracketsInStringsIgnored(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxNestingDepth = 3
	st := Scan(`let s = "(((((((((("`, cfg)
	if !st.OK() {
		t.Fatalf("string content counted toward nesting: %v", st.Issues())
	}
}

func TestScanBidiAttack(t *testing.T) {
	st := scanDefault(t, "let access = \"user‮ ⁦// Check if admin⁩ ⁦\"")
	is := requireFatal(t, st, model.CodeBidiAttack)
	if !strings.Contains(is.Message, "Trojan Source") {
		t.Errorf("expected Trojan Source mention, got %q", is.Message)
	}
}

func TestScanInvisibleWarnings(t *testing.T) {
	st := scanDefault(t, "let a​ = 1\nlet b​ = 2")
	if !st.OK() {
		t.Fatalf("two invisible characters should only warn: %v", st.Issues())
	}
	var warnings int
	for _, is := range st.Issues() {
		if is.Code == model.CodeInvisibleChar && is.Severity == model.SeverityWarning {
			warnings++
		}
	}
	if warnings != 2 {
		t.Errorf("expected 2 warnings, got %d", warnings)
	}
	if !st.Result().Valid {
		t.Error("warnings alone must not invalidate the result")
	}
}

func TestScanExcessiveInvisible(t *testing.T) {
	st := scanDefault(t, "a​b‌c‍d⁠e")
	is := requireFatal(t, st, model.CodeExcessiveInvisible)
	if !strings.Contains(is.Message, "steganographic") {
		t.Errorf("expected steganographic mention, got %q", is.Message)
	}
}

func TestScanLeadingBOMTolerated(t *testing.T) {
	st := scanDefault(t, "\uFEFFlet x = 1")
	if !st.OK() || len(st.Issues()) != 0 {
		t.Errorf("leading BOM should be tolerated, got %v", st.Issues())
	}
}

func TestScanBOMElsewhereCounts(t *testing.T) {
	st := scanDefault(t, "let x = 1\uFEFF")
	if len(st.Issues()) != 1 || st.Issues()[0].Code != model.CodeInvisibleChar {
		t.Errorf("non-leading BOM should warn, got %v", st.Issues())
	}
}

func TestScanHomographAttack(t *testing.T) {
	// "pаss" uses a Cyrillic small a
	st := scanDefault(t, "let pаss = secret")
	is := requireFatal(t, st, model.CodeHomographAttack)
	if is.Data["ascii"] != "a" {
		t.Errorf("expected lookalike of a, got %v", is.Data["ascii"])
	}
}

func TestScanFullWidthHomoglyph(t *testing.T) {
	st := scanDefault(t, "let ａdmin = 1") // full-width a
	requireFatal(t, st, model.CodeHomographAttack)
}

func TestScanTogglesDisableUnicodeChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CheckBidi = false
	cfg.CheckInvisible = false
	cfg.CheckHomoglyphs = false
	st := Scan("let pаss = x ‮ ​​​​", cfg)
	if !st.OK() {
		t.Errorf("disabled checks still fired: %v", st.Issues())
	}
}

func TestClampTightensOnly(t *testing.T) {
	m := Mandatory()
	tests := []struct {
		name string
		in   Limits
		want Limits
	}{
		{"zero takes caps", Limits{}, m},
		{"negative takes caps", Limits{MaxSourceBytes: -5, MaxLineCount: -1}, m},
		{"above cap is lowered", Limits{MaxSourceBytes: 1 << 30, MaxNestingDepth: 1000}, m},
		{
			"below cap is kept",
			Limits{MaxSourceBytes: 1024, MaxLineCount: 10, MaxLineLength: 80, MaxNestingDepth: 8, MaxStringLength: 256, MaxRegexLength: 32, MaxRegexCount: 4, MaxTotalStringBytes: 2048},
			Limits{MaxSourceBytes: 1024, MaxLineCount: 10, MaxLineLength: 80, MaxNestingDepth: 8, MaxStringLength: 256, MaxRegexLength: 32, MaxRegexCount: 4, MaxTotalStringBytes: 2048},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Clamp(); got != tt.want {
				t.Errorf("Clamp(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidateNamesEveryOffender(t *testing.T) {
	err := Limits{MaxSourceBytes: 1 << 30, MaxRegexCount: -1}.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"max_source_bytes", "max_regex_count"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should name %s: %v", want, err)
		}
	}
	if err := Mandatory().Validate(); err != nil {
		t.Errorf("mandatory limits must validate: %v", err)
	}
	if err := (Limits{}).Validate(); err != nil {
		t.Errorf("unset limits must validate: %v", err)
	}
}

func TestMandatoryTable(t *testing.T) {
	m := Mandatory()
	if m.MaxSourceBytes != 256*1024 || m.MaxLineCount != 5000 || m.MaxLineLength != 10000 ||
		m.MaxNestingDepth != 64 || m.MaxStringLength != 64*1024 || m.MaxRegexLength != 1024 ||
		m.MaxRegexCount != 64 || m.MaxTotalStringBytes != 512*1024 {
		t.Errorf("mandatory limit table changed: %+v", m)
	}
}

func TestPositionMapping(t *testing.T) {
	li := indexLines("ab\ncd\nef")
	tests := []struct {
		offset, line, col int
	}{
		{0, 1, 1},
		{1, 1, 2},
		{3, 2, 1},
		{7, 3, 2},
	}
	for _, tt := range tests {
		p := li.posAt(tt.offset)
		if p.Line != tt.line || p.Column != tt.col {
			t.Errorf("posAt(%d) = %d:%d, want %d:%d", tt.offset, p.Line, p.Column, tt.line, tt.col)
		}
	}
}

func FuzzScan(f *testing.F) {
	f.Add("let x = 1")
	f.Add(strings.Repeat("(", 70))
	f.Add("`unterminated ${")
	f.Add("/ /[/ \\")
	f.Add("\"\\")
	f.Add("let pаss = ‮​")
	f.Add("/* no close")

	f.Fuzz(func(t *testing.T, src string) {
		st := Scan(src, DefaultConfig())
		var fatal bool
		for _, is := range st.Issues() {
			if is.Fatal() {
				fatal = true
			}
		}
		if st.OK() == fatal {
			t.Errorf("OK()=%v inconsistent with fatal issue presence %v", st.OK(), fatal)
		}
	})
}
