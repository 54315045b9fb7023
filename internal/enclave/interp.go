package enclave

import (
	"context"
	"errors"
	"math"

	"github.com/scriptward/scriptward/internal/model"
	"github.com/scriptward/scriptward/internal/script"
	"github.com/scriptward/scriptward/internal/sidecar"
)

// maxCallDepth bounds script recursion.
const maxCallDepth = 128

type flowKind int

const (
	flowNone flowKind = iota
	flowBreak
	flowContinue
	flowReturn
)

// control carries non-error control flow out of statement execution.
type control struct {
	kind flowKind
	val  any
}

// function is a user-declared script function with its closure scope.
type function struct {
	decl *script.FuncDecl
	env  *Env
}

// interp is the tree-walking evaluator for one run. It owns the step
// budget and the sidecar interception points.
type interp struct {
	ctx     context.Context
	cfg     *Config
	store   *sidecar.Store
	globals *Env
	steps   int
	depth   int
}

// step charges one unit of the run budget. It is called per statement,
// per loop back-edge, and per function call; the deadline is sampled
// every 64 steps.
func (in *interp) step() error {
	in.steps++
	if in.cfg.MaxSteps > 0 && in.steps > in.cfg.MaxSteps {
		return policyErrf("step budget of %d exhausted", in.cfg.MaxSteps)
	}
	if in.steps&63 == 0 {
		if err := in.ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return timeoutErrf("execution timed out after %s", in.cfg.MaxDuration)
			}
			return timeoutErrf("execution canceled")
		}
	}
	return nil
}

// run executes a parsed program and returns its top-level return value.
func (in *interp) run(prog *script.Program) (any, error) {
	env := newEnv(in.globals)
	c, err := in.execStmts(env, prog.Body)
	if err != nil {
		return nil, err
	}
	switch c.kind {
	case flowReturn:
		return c.val, nil
	case flowBreak, flowContinue:
		return nil, scriptErrf("break or continue outside a loop")
	}
	return nil, nil
}

// execStmts hoists function declarations, then executes the list.
func (in *interp) execStmts(env *Env, stmts []script.Stmt) (control, error) {
	for _, s := range stmts {
		fd, ok := s.(*script.FuncDecl)
		if !ok {
			continue
		}
		if err := env.define(fd.Name.Name, &function{decl: fd, env: env}, false); err != nil {
			return control{}, err
		}
	}
	for _, s := range stmts {
		c, err := in.execStmt(env, s)
		if err != nil || c.kind != flowNone {
			return c, err
		}
	}
	return control{}, nil
}

func (in *interp) execStmt(env *Env, s script.Stmt) (control, error) {
	if err := in.step(); err != nil {
		return control{}, err
	}
	switch t := s.(type) {
	case *script.VarDecl:
		return control{}, in.execVarDecl(env, t)
	case *script.FuncDecl:
		// Bound during hoisting.
		return control{}, nil
	case *script.Block:
		return in.execStmts(newEnv(env), t.Stmts)
	case *script.ExprStmt:
		_, err := in.evalExpr(env, t.X)
		return control{}, err
	case *script.If:
		return in.execIf(env, t)
	case *script.While:
		return in.execWhile(env, t)
	case *script.For:
		return in.execFor(env, t)
	case *script.ForOf:
		return in.execForOf(env, t)
	case *script.Break:
		return control{kind: flowBreak}, nil
	case *script.Continue:
		return control{kind: flowContinue}, nil
	case *script.Return:
		var val any
		if t.Value != nil {
			v, err := in.evalExpr(env, t.Value)
			if err != nil {
				return control{}, err
			}
			val = v
		}
		return control{kind: flowReturn, val: val}, nil
	case *script.Try:
		return in.execTry(env, t)
	default:
		return control{}, internalErrf("unhandled statement %T", s)
	}
}

func (in *interp) execVarDecl(env *Env, d *script.VarDecl) error {
	constant := d.Kind == "const"
	for _, decl := range d.Decls {
		var val any
		if decl.Init != nil {
			v, err := in.evalExpr(env, decl.Init)
			if err != nil {
				return err
			}
			val = v
		}
		if err := in.bindPattern(env, decl.Target, val, constant); err != nil {
			return err
		}
	}
	return nil
}

func (in *interp) bindPattern(env *Env, p script.Pattern, v any, constant bool) error {
	switch t := p.(type) {
	case *script.Ident:
		return env.define(t.Name, v, constant)
	case *script.ObjectPattern:
		obj, ok := v.(map[string]any)
		if !ok {
			return scriptErrf("cannot destructure %s as an object", typeName(v))
		}
		for _, prop := range t.Props {
			key := prop.Key
			if prop.Computed {
				kv, err := in.evalExpr(env, prop.KeyExpr)
				if err != nil {
					return err
				}
				ks, ok := kv.(string)
				if !ok {
					return scriptErrf("destructuring key must be a string, got %s", typeName(kv))
				}
				key = ks
			}
			if err := in.bindPattern(env, prop.Value, obj[key], constant); err != nil {
				return err
			}
		}
		return nil
	case *script.ArrayPattern:
		arr, ok := v.([]any)
		if !ok {
			return scriptErrf("cannot destructure %s as an array", typeName(v))
		}
		for i, el := range t.Elems {
			if el == nil {
				continue
			}
			var ev any
			if i < len(arr) {
				ev = arr[i]
			}
			if err := in.bindPattern(env, el, ev, constant); err != nil {
				return err
			}
		}
		return nil
	default:
		return internalErrf("unhandled pattern %T", p)
	}
}

func (in *interp) execIf(env *Env, t *script.If) (control, error) {
	cond, err := in.evalExpr(env, t.Cond)
	if err != nil {
		return control{}, err
	}
	if truthy(cond) {
		return in.execStmts(newEnv(env), t.Then.Stmts)
	}
	if t.Else != nil {
		return in.execStmt(env, t.Else)
	}
	return control{}, nil
}

func (in *interp) execWhile(env *Env, t *script.While) (control, error) {
	for {
		if err := in.step(); err != nil {
			return control{}, err
		}
		cond, err := in.evalExpr(env, t.Cond)
		if err != nil {
			return control{}, err
		}
		if !truthy(cond) {
			return control{}, nil
		}
		c, err := in.execStmts(newEnv(env), t.Body.Stmts)
		if err != nil {
			return control{}, err
		}
		switch c.kind {
		case flowBreak:
			return control{}, nil
		case flowReturn:
			return c, nil
		}
	}
}

func (in *interp) execFor(env *Env, t *script.For) (control, error) {
	outer := newEnv(env)
	if t.Init != nil {
		if _, err := in.execStmt(outer, t.Init); err != nil {
			return control{}, err
		}
	}
	for {
		if err := in.step(); err != nil {
			return control{}, err
		}
		if t.Cond != nil {
			cond, err := in.evalExpr(outer, t.Cond)
			if err != nil {
				return control{}, err
			}
			if !truthy(cond) {
				return control{}, nil
			}
		}
		c, err := in.execStmts(newEnv(outer), t.Body.Stmts)
		if err != nil {
			return control{}, err
		}
		if c.kind == flowBreak {
			return control{}, nil
		}
		if c.kind == flowReturn {
			return c, nil
		}
		if t.Post != nil {
			if _, err := in.evalExpr(outer, t.Post); err != nil {
				return control{}, err
			}
		}
	}
}

func (in *interp) execForOf(env *Env, t *script.ForOf) (control, error) {
	iter, err := in.evalExpr(env, t.Iter)
	if err != nil {
		return control{}, err
	}
	if _, isRef := in.refToken(iter); isRef {
		return control{}, scriptErrf("cannot iterate a reference value")
	}
	arr, ok := iter.([]any)
	if !ok {
		return control{}, scriptErrf("for-of requires an array, got %s", typeName(iter))
	}
	for _, el := range arr {
		if err := in.step(); err != nil {
			return control{}, err
		}
		iterEnv := newEnv(env)
		if err := in.bindPattern(iterEnv, t.Target, el, t.Kind == "const"); err != nil {
			return control{}, err
		}
		c, err := in.execStmts(iterEnv, t.Body.Stmts)
		if err != nil {
			return control{}, err
		}
		if c.kind == flowBreak {
			return control{}, nil
		}
		if c.kind == flowReturn {
			return c, nil
		}
	}
	return control{}, nil
}

// execTry runs the body and routes catchable failures to the catch
// clause. Policy and timeout errors always propagate; under the strict
// level every error propagates and catch is inert.
func (in *interp) execTry(env *Env, t *script.Try) (control, error) {
	c, err := in.execStmts(newEnv(env), t.Body.Stmts)
	if err == nil {
		return c, nil
	}
	re := asRunError(err)
	if !re.Catchable() || in.cfg.Level != model.LevelStandard {
		return control{}, err
	}
	catchEnv := newEnv(env)
	if t.CatchParam != nil {
		errVal := map[string]any{
			"message": re.Message,
			"kind":    string(re.Kind),
		}
		if defErr := catchEnv.define(t.CatchParam.Name, errVal, false); defErr != nil {
			return control{}, defErr
		}
	}
	return in.execStmts(catchEnv, t.Catch.Stmts)
}

func (in *interp) evalExpr(env *Env, e script.Expr) (any, error) {
	switch t := e.(type) {
	case *script.Ident:
		v, ok := env.get(t.Name)
		if !ok {
			return nil, scriptErrf("%s is not defined", t.Name)
		}
		return v, nil
	case *script.NumberLit:
		return t.Value, nil
	case *script.StringLit:
		return in.maybeExtract(t.Value), nil
	case *script.BoolLit:
		return t.Value, nil
	case *script.NullLit:
		return nil, nil
	case *script.TemplateLit:
		return in.evalTemplate(env, t)
	case *script.ArrayLit:
		out := make([]any, len(t.Elems))
		for i, el := range t.Elems {
			v, err := in.evalExpr(env, el)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *script.ObjectLit:
		return in.evalObjectLit(env, t)
	case *script.Unary:
		return in.evalUnary(env, t)
	case *script.Update:
		return in.evalUpdate(env, t)
	case *script.Binary:
		return in.evalBinary(env, t)
	case *script.Logical:
		left, err := in.evalExpr(env, t.X)
		if err != nil {
			return nil, err
		}
		if t.Op == "&&" {
			if !truthy(left) {
				return left, nil
			}
			return in.evalExpr(env, t.Y)
		}
		if truthy(left) {
			return left, nil
		}
		return in.evalExpr(env, t.Y)
	case *script.Cond:
		cond, err := in.evalExpr(env, t.Cond)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return in.evalExpr(env, t.Then)
		}
		return in.evalExpr(env, t.Else)
	case *script.Assign:
		return in.evalAssign(env, t)
	case *script.Member:
		return in.evalMember(env, t)
	case *script.Call:
		return in.evalCall(env, t)
	default:
		return nil, internalErrf("unhandled expression %T", e)
	}
}

func (in *interp) evalObjectLit(env *Env, t *script.ObjectLit) (any, error) {
	out := make(map[string]any, len(t.Props))
	for _, prop := range t.Props {
		key := prop.Key
		if prop.Computed {
			kv, err := in.evalExpr(env, prop.KeyExpr)
			if err != nil {
				return nil, err
			}
			if _, isRef := in.refToken(kv); isRef {
				return nil, scriptErrf("object key cannot be a reference value")
			}
			ks, ok := kv.(string)
			if !ok {
				return nil, scriptErrf("object key must be a string, got %s", typeName(kv))
			}
			key = ks
		}
		v, err := in.evalExpr(env, prop.Value)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func (in *interp) evalUnary(env *Env, t *script.Unary) (any, error) {
	v, err := in.evalExpr(env, t.X)
	if err != nil {
		return nil, err
	}
	switch t.Op {
	case "!":
		return !truthy(v), nil
	case "-":
		n, ok := v.(float64)
		if !ok {
			return nil, scriptErrf("cannot negate %s", typeName(v))
		}
		return -n, nil
	case "typeof":
		return typeName(v), nil
	default:
		return nil, internalErrf("unhandled unary operator %q", t.Op)
	}
}

func (in *interp) evalUpdate(env *Env, t *script.Update) (any, error) {
	cur, err := in.evalExpr(env, t.X)
	if err != nil {
		return nil, err
	}
	n, ok := cur.(float64)
	if !ok {
		return nil, scriptErrf("cannot apply %s to %s", t.Op, typeName(cur))
	}
	next := n + 1
	if t.Op == "--" {
		next = n - 1
	}
	if err := in.assignTo(env, t.X, next); err != nil {
		return nil, err
	}
	if t.Prefix {
		return next, nil
	}
	return n, nil
}

func (in *interp) evalBinary(env *Env, t *script.Binary) (any, error) {
	left, err := in.evalExpr(env, t.X)
	if err != nil {
		return nil, err
	}
	right, err := in.evalExpr(env, t.Y)
	if err != nil {
		return nil, err
	}
	return in.binaryOp(t.Op, left, right)
}

func (in *interp) binaryOp(op string, left, right any) (any, error) {
	switch op {
	case "+":
		return in.add(left, right)
	case "-", "*", "/", "%":
		return numericOp(op, left, right)
	case "<", ">", "<=", ">=":
		return compareOp(op, left, right)
	case "==", "===":
		return strictEquals(left, right), nil
	case "!=", "!==":
		return !strictEquals(left, right), nil
	default:
		return nil, internalErrf("unhandled binary operator %q", op)
	}
}

func numericOp(op string, left, right any) (any, error) {
	l, lok := left.(float64)
	r, rok := right.(float64)
	if !lok || !rok {
		return nil, scriptErrf("operator %s requires numbers, got %s and %s",
			op, typeName(left), typeName(right))
	}
	switch op {
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		return l / r, nil
	default: // %
		if r == 0 {
			return nil, scriptErrf("modulo by zero")
		}
		return math.Mod(l, r), nil
	}
}

func compareOp(op string, left, right any) (any, error) {
	if l, ok := left.(float64); ok {
		r, ok := right.(float64)
		if !ok {
			return nil, scriptErrf("cannot compare number and %s", typeName(right))
		}
		switch op {
		case "<":
			return l < r, nil
		case ">":
			return l > r, nil
		case "<=":
			return l <= r, nil
		default:
			return l >= r, nil
		}
	}
	if l, ok := left.(string); ok {
		r, ok := right.(string)
		if !ok {
			return nil, scriptErrf("cannot compare string and %s", typeName(right))
		}
		switch op {
		case "<":
			return l < r, nil
		case ">":
			return l > r, nil
		case "<=":
			return l <= r, nil
		default:
			return l >= r, nil
		}
	}
	return nil, scriptErrf("cannot compare %s values", typeName(left))
}

func (in *interp) evalAssign(env *Env, t *script.Assign) (any, error) {
	value, err := in.evalExpr(env, t.Value)
	if err != nil {
		return nil, err
	}
	if t.Op != "=" {
		cur, err := in.evalExpr(env, t.Target)
		if err != nil {
			return nil, err
		}
		value, err = in.binaryOp(t.Op[:1], cur, value)
		if err != nil {
			return nil, err
		}
	}
	if err := in.assignTo(env, t.Target, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (in *interp) assignTo(env *Env, target script.Expr, v any) error {
	switch t := target.(type) {
	case *script.Ident:
		return env.set(t.Name, v)
	case *script.Member:
		obj, err := in.evalExpr(env, t.X)
		if err != nil {
			return err
		}
		key, err := in.memberKey(env, t)
		if err != nil {
			return err
		}
		if _, isRef := in.refToken(obj); isRef {
			return scriptErrf("cannot assign into a reference value")
		}
		switch o := obj.(type) {
		case map[string]any:
			ks, ok := key.(string)
			if !ok {
				return scriptErrf("object key must be a string, got %s", typeName(key))
			}
			o[ks] = v
			return nil
		case []any:
			i, err := arrayIndex(key)
			if err != nil {
				return err
			}
			if i < 0 || i >= len(o) {
				return scriptErrf("array index %d out of range", i)
			}
			o[i] = v
			return nil
		case nil:
			return scriptErrf("cannot set property of null")
		default:
			return scriptErrf("cannot set property of %s", typeName(obj))
		}
	default:
		return scriptErrf("invalid assignment target")
	}
}

// memberKey evaluates the property key of a member expression: the
// static name for dotted access, the computed expression otherwise.
func (in *interp) memberKey(env *Env, t *script.Member) (any, error) {
	if !t.Computed {
		return t.Prop, nil
	}
	return in.evalExpr(env, t.PropExpr)
}

func arrayIndex(key any) (int, error) {
	n, ok := key.(float64)
	if !ok {
		return 0, scriptErrf("array index must be a number, got %s", typeName(key))
	}
	i := int(n)
	if float64(i) != n {
		return 0, scriptErrf("array index must be an integer")
	}
	return i, nil
}

func (in *interp) evalMember(env *Env, t *script.Member) (any, error) {
	obj, err := in.evalExpr(env, t.X)
	if err != nil {
		return nil, err
	}
	key, err := in.memberKey(env, t)
	if err != nil {
		return nil, err
	}
	if tok, isRef := in.refToken(obj); isRef {
		if key == "length" {
			n, err := in.store.ResolvedSize(tok)
			if err != nil {
				return nil, policyErrf("%s", err)
			}
			return float64(n), nil
		}
		return nil, scriptErrf("cannot index a reference value; pass it to a tool or jsonParse it")
	}
	switch o := obj.(type) {
	case map[string]any:
		ks, ok := key.(string)
		if !ok {
			return nil, scriptErrf("object key must be a string, got %s", typeName(key))
		}
		return o[ks], nil
	case []any:
		if key == "length" {
			return float64(len(o)), nil
		}
		i, err := arrayIndex(key)
		if err != nil {
			return nil, err
		}
		if i < 0 || i >= len(o) {
			return nil, nil
		}
		return o[i], nil
	case string:
		if key == "length" {
			return float64(len([]rune(o))), nil
		}
		i, err := arrayIndex(key)
		if err != nil {
			return nil, err
		}
		runes := []rune(o)
		if i < 0 || i >= len(runes) {
			return nil, nil
		}
		return string(runes[i]), nil
	case nil:
		return nil, scriptErrf("cannot read property %v of null", key)
	default:
		return nil, scriptErrf("cannot read property %v of %s", key, typeName(obj))
	}
}

func (in *interp) evalCall(env *Env, t *script.Call) (any, error) {
	callee, err := in.evalExpr(env, t.Callee)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(t.Args))
	for i, a := range t.Args {
		v, err := in.evalExpr(env, a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	switch fn := callee.(type) {
	case *builtinFunc:
		return in.callBuiltin(fn, args)
	case *function:
		return in.callFunction(fn, args)
	default:
		return nil, scriptErrf("%s is not a function", typeName(callee))
	}
}

func (in *interp) callFunction(fn *function, args []any) (any, error) {
	if err := in.step(); err != nil {
		return nil, err
	}
	if in.depth >= maxCallDepth {
		return nil, scriptErrf("maximum call depth of %d exceeded", maxCallDepth)
	}
	name := fn.decl.Name.Name
	if len(args) != len(fn.decl.Params) {
		return nil, scriptErrf("function %q expects %d arguments, got %d",
			name, len(fn.decl.Params), len(args))
	}
	callEnv := newEnv(fn.env)
	for i, p := range fn.decl.Params {
		if err := callEnv.define(p.Name, args[i], false); err != nil {
			return nil, err
		}
	}
	in.depth++
	defer func() { in.depth-- }()
	c, err := in.execStmts(callEnv, fn.decl.Body.Stmts)
	if err != nil {
		return nil, err
	}
	switch c.kind {
	case flowReturn:
		return c.val, nil
	case flowBreak, flowContinue:
		return nil, scriptErrf("break or continue outside a loop")
	}
	return nil, nil
}

func (in *interp) evalTemplate(env *Env, t *script.TemplateLit) (any, error) {
	pieces := make([]any, 0, len(t.Parts))
	hasRef := false
	for _, part := range t.Parts {
		if part.Expr == nil {
			pieces = append(pieces, part.Text)
			continue
		}
		v, err := in.evalExpr(env, part.Expr)
		if err != nil {
			return nil, err
		}
		if _, isRef := in.refToken(v); isRef {
			hasRef = true
			pieces = append(pieces, v)
			continue
		}
		s, err := displayString(v)
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, s)
	}
	if hasRef {
		return in.concat(pieces)
	}
	var b []byte
	for _, p := range pieces {
		b = append(b, p.(string)...)
	}
	return in.maybeExtract(string(b)), nil
}

// refToken reports whether v is a reference token issued by this run's
// store. Token-shaped text that the store never issued is plain data.
func (in *interp) refToken(v any) (string, bool) {
	if !in.cfg.Sidecar.Enabled {
		return "", false
	}
	s, ok := v.(string)
	if !ok || !sidecar.IsToken(s) {
		return "", false
	}
	if !in.store.Contains(s) {
		return "", false
	}
	return s, true
}

// maybeExtract moves a produced string into the sidecar store when it
// reaches the extraction threshold, handing the script a token instead.
// Token-shaped strings are never re-extracted; wrapping a token in a
// token would resolve to the token text instead of the data.
func (in *interp) maybeExtract(s string) any {
	if !in.cfg.Sidecar.Enabled {
		return s
	}
	if len(s) < in.cfg.Sidecar.ExtractionThreshold {
		return s
	}
	if sidecar.IsToken(s) {
		return s
	}
	return in.store.Put(s)
}

// extractDeep applies maybeExtract to every string inside a structure
// that entered the sandbox whole, such as run parameters or a resolved
// reference fed through jsonParse. The structure is owned by the
// sandbox and mutated in place.
func (in *interp) extractDeep(v any) any {
	if !in.cfg.Sidecar.Enabled {
		return v
	}
	switch x := v.(type) {
	case string:
		return in.maybeExtract(x)
	case []any:
		for i, e := range x {
			x[i] = in.extractDeep(e)
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = in.extractDeep(e)
		}
		return x
	default:
		return v
	}
}

// concat joins string pieces of which at least one is a reference. The
// result is a composite token; the real concatenation is deferred to
// the tool-call boundary.
func (in *interp) concat(pieces []any) (any, error) {
	if !in.cfg.Sidecar.AllowComposites {
		return nil, policyErrf("Cannot concatenate reference values at this security level")
	}
	parts := make([]sidecar.Part, 0, len(pieces))
	for _, p := range pieces {
		if tok, isRef := in.refToken(p); isRef {
			parts = append(parts, sidecar.Part{Kind: sidecar.PartRef, Ref: tok})
			continue
		}
		s, ok := p.(string)
		if !ok {
			return nil, scriptErrf("cannot concatenate %s with a reference", typeName(p))
		}
		parts = append(parts, sidecar.Part{Kind: sidecar.PartLit, Lit: s})
	}
	tok, err := in.store.PutComposite(parts)
	if err != nil {
		return nil, internalErrf("compose references: %v", err)
	}
	return tok, nil
}

// add implements + and +=: numeric addition, string concatenation, and
// the sidecar interception that turns reference concatenation into a
// composite.
func (in *interp) add(left, right any) (any, error) {
	_, lref := in.refToken(left)
	_, rref := in.refToken(right)
	if lref || rref {
		for _, operand := range []any{left, right} {
			if _, ok := operand.(string); !ok {
				return nil, scriptErrf("cannot add %s and %s", typeName(left), typeName(right))
			}
		}
		return in.concat([]any{left, right})
	}
	switch l := left.(type) {
	case float64:
		if r, ok := right.(float64); ok {
			return l + r, nil
		}
	case string:
		if r, ok := right.(string); ok {
			return in.maybeExtract(l + r), nil
		}
	}
	return nil, scriptErrf("cannot add %s and %s", typeName(left), typeName(right))
}

// resolveRef materializes a reference within the resolved-size budget.
func (in *interp) resolveRef(tok string) (any, error) {
	v, err := in.store.Resolve(tok, in.cfg.Sidecar.MaxResolvedSize)
	if err != nil {
		return nil, policyErrf("%s", err)
	}
	return v, nil
}
