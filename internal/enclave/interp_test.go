package enclave

import (
	"context"
	"strings"
	"testing"

	"github.com/scriptward/scriptward/internal/model"
)

// runScript executes source with the sidecar disabled, which exercises
// the plain language semantics.
func runScript(t *testing.T, source string) *Result {
	t.Helper()
	e, err := New(Config{Level: model.LevelStandard})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Dispose)
	return e.Run(context.Background(), source)
}

func runValue(t *testing.T, source string) any {
	t.Helper()
	res := runScript(t, source)
	if !res.Success {
		t.Fatalf("run failed: %+v", res.Error)
	}
	return res.Value
}

func runFails(t *testing.T, source string, kind ErrorKind, substr string) *RunError {
	t.Helper()
	res := runScript(t, source)
	if res.Success {
		t.Fatalf("expected failure, got value %v", res.Value)
	}
	if res.Error.Kind != kind {
		t.Fatalf("error kind = %s, want %s (%s)", res.Error.Kind, kind, res.Error.Message)
	}
	if substr != "" && !strings.Contains(res.Error.Message, substr) {
		t.Errorf("error %q should contain %q", res.Error.Message, substr)
	}
	return res.Error
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want float64
	}{
		{"return 2 + 3 * 4;", 14},
		{"return (2 + 3) * 4;", 20},
		{"return 10 / 4;", 2.5},
		{"return 7 % 3;", 1},
		{"let x = 5; return -x;", -5},
		{"let n = 1; n += 2; n *= 3; return n;", 9},
	}
	for _, tt := range tests {
		if got := runValue(t, tt.src); got != tt.want {
			t.Errorf("%q = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestStringSemantics(t *testing.T) {
	if got := runValue(t, `return "foo" + "bar";`); got != "foobar" {
		t.Errorf("concat = %v", got)
	}
	if got := runValue(t, "let n = 2; return `n is ${n + 1}!`;"); got != "n is 3!" {
		t.Errorf("template = %v", got)
	}
	if got := runValue(t, `return "héllo".length;`); got != float64(5) {
		t.Errorf("length counts code points, got %v", got)
	}
	if got := runValue(t, `return "abc"[1];`); got != "b" {
		t.Errorf("index = %v", got)
	}
	if got := runValue(t, `return "a" < "b";`); got != true {
		t.Errorf("string compare = %v", got)
	}
	runFails(t, `return "a" + 1;`, KindScript, "cannot add")
}

func TestVariablesAndScope(t *testing.T) {
	if got := runValue(t, "let a = 1; { let a = 2; } return a;"); got != float64(1) {
		t.Errorf("block shadowing leaked: %v", got)
	}
	runFails(t, "const c = 1; c = 2;", KindScript, "constant")
	runFails(t, "x = 1;", KindScript, "not defined")
	runFails(t, "let a = 1; let a = 2;", KindScript, "already been declared")
	runFails(t, "{ let inner = 1; } return inner;", KindScript, "not defined")
	runFails(t, "len = 5;", KindScript, "constant")
	if got := runValue(t, "let len = 5; return len;"); got != float64(5) {
		t.Errorf("builtin shadowed by declaration should win: %v", got)
	}
}

func TestControlFlow(t *testing.T) {
	sum := `
let total = 0;
for (let i = 0; i < 10; i++) {
  total += i;
}
return total;
`
	if got := runValue(t, sum); got != float64(45) {
		t.Errorf("for sum = %v", got)
	}

	forOf := `
let total = 0;
for (const n of [1, 2, 3, 4]) {
  if (n == 3) {
    continue;
  }
  total += n;
}
return total;
`
	if got := runValue(t, forOf); got != float64(7) {
		t.Errorf("for-of with continue = %v", got)
	}

	breakOut := `
let i = 0;
while (true) {
  i++;
  if (i >= 3) {
    break;
  }
}
return i;
`
	if got := runValue(t, breakOut); got != float64(3) {
		t.Errorf("while with break = %v", got)
	}

	chain := `
let x = 2;
if (x == 1) {
  return "one";
} else if (x == 2) {
  return "two";
} else {
  return "many";
}
`
	if got := runValue(t, chain); got != "two" {
		t.Errorf("else-if chain = %v", got)
	}

	runFails(t, "break;", KindScript, "outside a loop")
}

func TestFunctions(t *testing.T) {
	hoisted := `
return helper(2);
function helper(x) {
  return x * 10;
}
`
	if got := runValue(t, hoisted); got != float64(20) {
		t.Errorf("hoisted call = %v", got)
	}

	closure := `
function counter() {
  let n = 0;
  function tick() {
    n = n + 1;
    return n;
  }
  tick();
  tick();
  return tick();
}
return counter();
`
	if got := runValue(t, closure); got != float64(3) {
		t.Errorf("closure = %v", got)
	}

	factorial := `
function fact(n) {
  if (n <= 1) {
    return 1;
  }
  return n * fact(n - 1);
}
return fact(5);
`
	if got := runValue(t, factorial); got != float64(120) {
		t.Errorf("recursion = %v", got)
	}

	runFails(t, "function f(a) { return a; } return f(1, 2);", KindScript, "expects 1 arguments")
	runFails(t, "function f() { return f(); } return f();", KindScript, "call depth")
	runFails(t, "return missing();", KindScript, "not defined")
	runFails(t, "let x = 1; return x();", KindScript, "not a function")
}

func TestStrictEqualityEverywhere(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{`return 1 == 1;`, true},
		{`return 1 == "1";`, false},
		{`return 1 === "1";`, false},
		{`return null == null;`, true},
		{`return null == 0;`, false},
		{`return "a" != "b";`, true},
		{`return [1] == [1];`, false},
		{`let a = [1]; let b = a; return a == b;`, true},
		{`return (0 / 0) == (0 / 0);`, false},
	}
	for _, tt := range tests {
		if got := runValue(t, tt.src); got != tt.want {
			t.Errorf("%q = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestTruthiness(t *testing.T) {
	tests := []struct {
		src  string
		want any
	}{
		{`return "" ? "t" : "f";`, "f"},
		{`return 0 ? "t" : "f";`, "f"},
		{`return null ? "t" : "f";`, "f"},
		{`return [] ? "t" : "f";`, "t"},
		{`return "0" ? "t" : "f";`, "t"},
		{`return 0 || "fallback";`, "fallback"},
		{`return 1 && 2;`, float64(2)},
		{`return null && missing();`, nil},
	}
	for _, tt := range tests {
		if got := runValue(t, tt.src); got != tt.want {
			t.Errorf("%q = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestObjectsAndArrays(t *testing.T) {
	script := `
let user = { name: "zed", "full name": "zed q", [("ro" + "le")]: "admin" };
user.age = 30;
user["team"] = "core";
let tags = [1, 2, 3];
tags[1] = 20;
return {
  name:     user.name,
  full:     user["full name"],
  role:     user.role,
  age:      user.age,
  team:     user.team,
  second:   tags[1],
  count:    tags.length,
  missing:  user.nope,
  overflow: tags[99],
};
`
	got, ok := runValue(t, script).(map[string]any)
	if !ok {
		t.Fatal("expected an object result")
	}
	want := map[string]any{
		"name": "zed", "full": "zed q", "role": "admin",
		"age": float64(30), "team": "core",
		"second": float64(20), "count": float64(3),
	}
	for k, w := range want {
		if got[k] != w {
			t.Errorf("%s = %v, want %v", k, got[k], w)
		}
	}
	if got["missing"] != nil || got["overflow"] != nil {
		t.Error("missing lookups should yield null")
	}

	runFails(t, "let a = [1]; a[5] = 2;", KindScript, "out of range")
	runFails(t, "let o = null; return o.x;", KindScript, "of null")
}

func TestUpdateExpressions(t *testing.T) {
	if got := runValue(t, "let i = 5; let old = i++; return [old, i];"); got.([]any)[0] != float64(5) || got.([]any)[1] != float64(6) {
		t.Errorf("postfix = %v", got)
	}
	if got := runValue(t, "let i = 5; return ++i;"); got != float64(6) {
		t.Errorf("prefix = %v", got)
	}
	if got := runValue(t, "let o = { n: 1 }; o.n++; return o.n;"); got != float64(2) {
		t.Errorf("member update = %v", got)
	}
	runFails(t, `let s = "x"; s++;`, KindScript, "cannot apply")
}

func TestDestructuringAtRuntime(t *testing.T) {
	script := `
let { name, meta: { role }, missing } = { name: "a", meta: { role: "admin" } };
let [first, , third] = [10, 20, 30];
return [name, role, missing, first, third];
`
	got := runValue(t, script).([]any)
	if got[0] != "a" || got[1] != "admin" || got[2] != nil || got[3] != float64(10) || got[4] != float64(30) {
		t.Errorf("destructuring = %v", got)
	}
	runFails(t, "let { a } = null;", KindScript, "destructure")
	runFails(t, "let [x] = 5;", KindScript, "destructure")
}

func TestTypeof(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"return typeof 1;", "number"},
		{`return typeof "s";`, "string"},
		{"return typeof true;", "boolean"},
		{"return typeof null;", "null"},
		{"return typeof [];", "array"},
		{"return typeof {};", "object"},
		{"return typeof len;", "function"},
	}
	for _, tt := range tests {
		if got := runValue(t, tt.src); got != tt.want {
			t.Errorf("%q = %v, want %q", tt.src, got, tt.want)
		}
	}
}

func TestTryCatchUnderStandard(t *testing.T) {
	caught := `
try {
  return missing();
} catch (e) {
  return [e.kind, e.message];
}
`
	got := runValue(t, caught).([]any)
	if got[0] != "script_error" {
		t.Errorf("caught kind = %v", got[0])
	}
	if msg, _ := got[1].(string); !strings.Contains(msg, "not defined") {
		t.Errorf("caught message = %v", got[1])
	}

	if got := runValue(t, `try { let x = 1; } catch { return "no"; } return "yes";`); got != "yes" {
		t.Errorf("catch ran without an error: %v", got)
	}

	rethrow := `
try {
  try {
    missing();
  } catch (e) {
    alsoMissing();
  }
} catch (e2) {
  return "outer";
}
`
	if got := runValue(t, rethrow); got != "outer" {
		t.Errorf("nested catch = %v", got)
	}
}

func TestScriptWithoutReturnYieldsNull(t *testing.T) {
	res := runScript(t, "let x = 1; x + 1;")
	if !res.Success {
		t.Fatalf("run failed: %+v", res.Error)
	}
	if res.Value != nil {
		t.Errorf("value = %v, want null", res.Value)
	}
}

func TestCommentsAndSemicolonsOptional(t *testing.T) {
	script := `
// setup
let a = 1
let b = 2 /* inline */
return a + b
`
	if got := runValue(t, script); got != float64(3) {
		t.Errorf("got %v", got)
	}
}
