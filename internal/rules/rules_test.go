package rules

import (
	"testing"

	"github.com/scriptward/scriptward/internal/model"
)

func codesOf(r model.Result) []string {
	var codes []string
	for _, is := range r.Issues {
		codes = append(codes, is.Code)
	}
	return codes
}

func TestValidateParseError(t *testing.T) {
	v := New(ForLevel(model.LevelStandard, Options{})...)
	r := v.Validate("let = 5")
	if r.Valid {
		t.Fatal("malformed source validated")
	}
	if len(r.Issues) != 1 || r.Issues[0].Code != model.CodeParseError {
		t.Fatalf("expected single PARSE_ERROR, got %v", codesOf(r))
	}
	if !r.Issues[0].Pos.Valid() {
		t.Error("parse error should carry a position")
	}
}

func TestValidateCleanScript(t *testing.T) {
	v := New(ForLevel(model.LevelStandard, Options{})...)
	r := v.Validate(`
function total(items) {
  let sum = 0;
  for (let item of items) {
    sum += item.price;
  }
  return sum;
}
let bill = total(jsonParse(__enclave_args__.payload));
callTool("report", { amount: bill });
`)
	if !r.Valid {
		t.Fatalf("clean script rejected: %v", r.Issues)
	}
	if len(r.Issues) != 0 {
		t.Errorf("valid result must have an empty issue list, got %v", codesOf(r))
	}
}

func TestIssuesInDocumentOrder(t *testing.T) {
	// The reserved rule runs before the globals rule, but the globals
	// violation appears first in the source.
	v := New(ForLevel(model.LevelStandard, Options{})...)
	r := v.Validate("eval(1)\nlet __enclave_x = 2")
	want := []string{model.CodeDisallowedGlobal, model.CodeReservedPrefixDecl}
	got := codesOf(r)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if r.Issues[0].Pos.Offset >= r.Issues[1].Pos.Offset {
		t.Error("issues not in document order")
	}
}

func TestValidateDeterministic(t *testing.T) {
	v := New(ForLevel(model.LevelStrict, Options{})...)
	src := "while (x) { obj.__enclave_a = 1 }\ntry { y() } catch (e) { }"
	first := v.Validate(src)
	for i := 0; i < 5; i++ {
		again := v.Validate(src)
		if len(again.Issues) != len(first.Issues) {
			t.Fatalf("run %d: issue count changed: %d vs %d", i, len(again.Issues), len(first.Issues))
		}
		for j := range first.Issues {
			if again.Issues[j].Code != first.Issues[j].Code || again.Issues[j].Pos != first.Issues[j].Pos {
				t.Fatalf("run %d: issue %d differs: %+v vs %+v", i, j, again.Issues[j], first.Issues[j])
			}
		}
	}
}

func TestStandardAllowsLoopsAndTryCatch(t *testing.T) {
	v := New(ForLevel(model.LevelStandard, Options{})...)
	r := v.Validate(`
let i = 0;
while (i < 3) { i++ }
for (let j = 0; j < 2; j++) { }
for (let x of range(3)) { }
try { callTool("t", {}) } catch (e) { }
`)
	if !r.Valid {
		t.Fatalf("standard preset rejected benign control flow: %v", r.Issues)
	}
}

func TestStrictBansWhileAndTryCatch(t *testing.T) {
	v := New(ForLevel(model.LevelStrict, Options{})...)
	r := v.Validate(`
let i = 0;
while (i < 3) { i++ }
for (let j = 0; j < 2; j++) { }
try { callTool("t", {}) } catch (e) { }
`)
	got := codesOf(r)
	want := []string{model.CodeDisallowedLoop, model.CodeNoTryCatch}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestLoopBanConfigurable(t *testing.T) {
	v := New(ForLevel(model.LevelStandard, Options{DisallowLoops: []string{"for-of"}})...)
	r := v.Validate("let xs = []\nfor (let x of xs) { }")
	if len(r.Issues) != 1 || r.Issues[0].Code != model.CodeDisallowedLoop {
		t.Fatalf("expected single DISALLOWED_LOOP, got %v", codesOf(r))
	}
	if r.Issues[0].Data["kind"] != "for-of" {
		t.Errorf("expected kind for-of, got %v", r.Issues[0].Data["kind"])
	}
}

func TestStrictLoopBanOverride(t *testing.T) {
	v := New(ForLevel(model.LevelStrict, Options{DisallowLoops: []string{}})...)
	r := v.Validate("let i = 0\nwhile (i < 2) { i++ }")
	if !r.Valid {
		t.Fatalf("empty loop ban should allow while, got %v", codesOf(r))
	}
}

func TestEnabledByDefaultFlags(t *testing.T) {
	onByDefault := map[string]bool{
		NewReservedPrefix(nil, nil).Name(): true,
		ComputedDestructuring{}.Name():     true,
		NewDisallowedGlobals(nil).Name():   true,
		NewDisallowedLoops("while").Name(): false,
		NoTryCatch{}.Name():                false,
	}
	for _, r := range []Rule{
		NewReservedPrefix(nil, nil),
		ComputedDestructuring{},
		NewDisallowedGlobals(nil),
		NewDisallowedLoops("while"),
		NoTryCatch{},
	} {
		if r.EnabledByDefault() != onByDefault[r.Name()] {
			t.Errorf("%s: EnabledByDefault = %v, want %v", r.Name(), r.EnabledByDefault(), onByDefault[r.Name()])
		}
		if r.Severity() != model.SeverityFatal {
			t.Errorf("%s: expected fatal default severity", r.Name())
		}
		if r.Description() == "" {
			t.Errorf("%s: empty description", r.Name())
		}
	}
}

func TestPresetBundleComposition(t *testing.T) {
	std := ForLevel(model.LevelStandard, Options{})
	if len(std) != 3 {
		t.Errorf("standard bundle: expected 3 rules, got %d", len(std))
	}
	strict := ForLevel(model.LevelStrict, Options{})
	if len(strict) != 5 {
		t.Errorf("strict bundle: expected 5 rules, got %d", len(strict))
	}
	v := New(strict...)
	if len(v.Rules()) != 5 {
		t.Errorf("validator should preserve bundle order and size")
	}
}
