package enclave

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/scriptward/scriptward/internal/sidecar"
)

// maxRangeElems caps the array a single range call may allocate.
const maxRangeElems = 1 << 20

// builtinFunc is one entry of the curated global table.
type builtinFunc struct {
	name    string
	minArgs int
	maxArgs int // -1 means variadic
	fn      func(in *interp, args []any) (any, error)
}

// builtins is the complete sandbox global function table. Its names must
// stay in lockstep with the validator's global allow-list.
var builtins = []*builtinFunc{
	{name: "len", minArgs: 1, maxArgs: 1, fn: biLen},
	{name: "str", minArgs: 1, maxArgs: 1, fn: biStr},
	{name: "num", minArgs: 1, maxArgs: 1, fn: biNum},
	{name: "keys", minArgs: 1, maxArgs: 1, fn: biKeys},
	{name: "append", minArgs: 2, maxArgs: -1, fn: biAppend},
	{name: "range", minArgs: 1, maxArgs: 2, fn: biRange},
	{name: "abs", minArgs: 1, maxArgs: 1, fn: biAbs},
	{name: "min", minArgs: 1, maxArgs: -1, fn: biMin},
	{name: "max", minArgs: 1, maxArgs: -1, fn: biMax},
	{name: "floor", minArgs: 1, maxArgs: 1, fn: biFloor},
	{name: "ceil", minArgs: 1, maxArgs: 1, fn: biCeil},
	{name: "round", minArgs: 1, maxArgs: 1, fn: biRound},
	{name: "jsonParse", minArgs: 1, maxArgs: 1, fn: biJSONParse},
	{name: "jsonStringify", minArgs: 1, maxArgs: 1, fn: biJSONStringify},
	{name: "callTool", minArgs: 1, maxArgs: 2, fn: biCallTool},
}

// newGlobals builds the root scope for one run: the builtin table plus
// the deep-copied run parameters under __enclave_args__.
func newGlobals(in *interp) *Env {
	env := newEnv(nil)
	for _, b := range builtins {
		_ = env.define(b.name, b, true)
	}
	params := deepCopyValue(in.cfg.Params)
	if params == nil {
		params = map[string]any{}
	}
	_ = env.define("__enclave_args__", in.extractDeep(params), true)
	return env
}

func (in *interp) callBuiltin(fn *builtinFunc, args []any) (any, error) {
	if err := in.step(); err != nil {
		return nil, err
	}
	if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
		switch {
		case fn.maxArgs < 0:
			return nil, scriptErrf("%s expects at least %d arguments, got %d", fn.name, fn.minArgs, len(args))
		case fn.minArgs == fn.maxArgs:
			return nil, scriptErrf("%s expects %d argument(s), got %d", fn.name, fn.minArgs, len(args))
		default:
			return nil, scriptErrf("%s expects %d to %d arguments, got %d", fn.name, fn.minArgs, fn.maxArgs, len(args))
		}
	}
	return fn.fn(in, args)
}

// biLen sizes a value: code points for strings, elements for arrays,
// keys for objects. A reference reports its predicted resolved size in
// bytes without materializing it.
func biLen(in *interp, args []any) (any, error) {
	if tok, isRef := in.refToken(args[0]); isRef {
		n, err := in.store.ResolvedSize(tok)
		if err != nil {
			return nil, policyErrf("%s", err)
		}
		return float64(n), nil
	}
	switch x := args[0].(type) {
	case string:
		return float64(len([]rune(x))), nil
	case []any:
		return float64(len(x)), nil
	case map[string]any:
		return float64(len(x)), nil
	default:
		return nil, scriptErrf("len: unsupported type %s", typeName(args[0]))
	}
}

// biStr renders a value as a string. References stay opaque.
func biStr(in *interp, args []any) (any, error) {
	if _, isRef := in.refToken(args[0]); isRef {
		return args[0], nil
	}
	s, err := displayString(args[0])
	if err != nil {
		return nil, err
	}
	return in.maybeExtract(s), nil
}

func biNum(in *interp, args []any) (any, error) {
	if _, isRef := in.refToken(args[0]); isRef {
		return nil, scriptErrf("num: cannot convert a reference value")
	}
	switch x := args[0].(type) {
	case float64:
		return x, nil
	case bool:
		if x {
			return float64(1), nil
		}
		return float64(0), nil
	case nil:
		return float64(0), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, scriptErrf("num: cannot convert %q", x)
		}
		return f, nil
	default:
		return nil, scriptErrf("num: cannot convert %s", typeName(args[0]))
	}
}

// biKeys lists object keys, sorted so iteration order is stable across
// runs.
func biKeys(in *interp, args []any) (any, error) {
	if _, isRef := in.refToken(args[0]); isRef {
		return nil, scriptErrf("keys: cannot inspect a reference value; jsonParse it first")
	}
	obj, ok := args[0].(map[string]any)
	if !ok {
		return nil, scriptErrf("keys: expected an object, got %s", typeName(args[0]))
	}
	names := make([]string, 0, len(obj))
	for k := range obj {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]any, len(names))
	for i, k := range names {
		out[i] = k
	}
	return out, nil
}

// biAppend returns a fresh array with the values added; the original is
// untouched.
func biAppend(_ *interp, args []any) (any, error) {
	arr, ok := args[0].([]any)
	if !ok {
		return nil, scriptErrf("append: expected an array, got %s", typeName(args[0]))
	}
	out := make([]any, 0, len(arr)+len(args)-1)
	out = append(out, arr...)
	out = append(out, args[1:]...)
	return out, nil
}

func biRange(_ *interp, args []any) (any, error) {
	nums := make([]float64, len(args))
	for i, a := range args {
		n, ok := a.(float64)
		if !ok {
			return nil, scriptErrf("range: expected numbers, got %s", typeName(a))
		}
		nums[i] = n
	}
	start, end := 0.0, nums[0]
	if len(nums) == 2 {
		start, end = nums[0], nums[1]
	}
	s, e := int(start), int(end)
	if float64(s) != start || float64(e) != end {
		return nil, scriptErrf("range: bounds must be integers")
	}
	if e < s {
		e = s
	}
	if e-s > maxRangeElems {
		return nil, scriptErrf("range: %d elements exceeds the limit of %d", e-s, maxRangeElems)
	}
	out := make([]any, 0, e-s)
	for i := s; i < e; i++ {
		out = append(out, float64(i))
	}
	return out, nil
}

func numArg(name string, v any) (float64, error) {
	n, ok := v.(float64)
	if !ok {
		return 0, scriptErrf("%s: expected a number, got %s", name, typeName(v))
	}
	return n, nil
}

func biAbs(_ *interp, args []any) (any, error) {
	n, err := numArg("abs", args[0])
	if err != nil {
		return nil, err
	}
	return math.Abs(n), nil
}

func biMin(_ *interp, args []any) (any, error) {
	best := math.Inf(1)
	for _, a := range args {
		n, err := numArg("min", a)
		if err != nil {
			return nil, err
		}
		best = math.Min(best, n)
	}
	return best, nil
}

func biMax(_ *interp, args []any) (any, error) {
	best := math.Inf(-1)
	for _, a := range args {
		n, err := numArg("max", a)
		if err != nil {
			return nil, err
		}
		best = math.Max(best, n)
	}
	return best, nil
}

func biFloor(_ *interp, args []any) (any, error) {
	n, err := numArg("floor", args[0])
	if err != nil {
		return nil, err
	}
	return math.Floor(n), nil
}

func biCeil(_ *interp, args []any) (any, error) {
	n, err := numArg("ceil", args[0])
	if err != nil {
		return nil, err
	}
	return math.Ceil(n), nil
}

func biRound(_ *interp, args []any) (any, error) {
	n, err := numArg("round", args[0])
	if err != nil {
		return nil, err
	}
	return math.Round(n), nil
}

// biJSONParse decodes a JSON string. A reference argument is resolved
// first within the resolved-size budget, which makes jsonParse the
// explicit materialization point for oversized data; strings inside the
// decoded result are re-extracted when they reach the threshold.
func biJSONParse(in *interp, args []any) (any, error) {
	if tok, isRef := in.refToken(args[0]); isRef {
		rv, err := in.resolveRef(tok)
		if err != nil {
			return nil, err
		}
		if s, ok := rv.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(s), &out); err != nil {
				return nil, scriptErrf("jsonParse: invalid JSON: %v", err)
			}
			return in.extractDeep(out), nil
		}
		// A lifted structured result is already parsed.
		return in.extractDeep(deepCopyValue(rv)), nil
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, scriptErrf("jsonParse: expected a string, got %s", typeName(args[0]))
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, scriptErrf("jsonParse: invalid JSON: %v", err)
	}
	return out, nil
}

// biJSONStringify encodes a value as JSON. References inside resolve
// first under a cumulative budget; an oversized encoding is extracted
// straight back to a token.
func biJSONStringify(in *interp, args []any) (any, error) {
	v := args[0]
	if holdsFunction(v) {
		return nil, scriptErrf("jsonStringify: cannot encode a function")
	}
	if in.cfg.Sidecar.Enabled {
		resolved, err := in.store.ResolveArgs(map[string]any{"v": v}, in.cfg.Sidecar.MaxResolvedSize)
		if err != nil {
			return nil, policyErrf("%s", err)
		}
		v = resolved["v"]
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, scriptErrf("jsonStringify: cannot encode %s", typeName(args[0]))
	}
	return in.maybeExtract(string(b)), nil
}

// biCallTool bridges to the host tool handler. Arguments are deep
// resolved before the handler runs; results at or above the threshold
// come back as a reference.
func biCallTool(in *interp, args []any) (any, error) {
	if _, isRef := in.refToken(args[0]); isRef {
		return nil, scriptErrf("callTool: tool name cannot be a reference")
	}
	name, ok := args[0].(string)
	if !ok {
		return nil, scriptErrf("callTool: tool name must be a string, got %s", typeName(args[0]))
	}
	callArgs := map[string]any{}
	if len(args) == 2 && args[1] != nil {
		m, ok := args[1].(map[string]any)
		if !ok {
			return nil, scriptErrf("callTool: args must be an object, got %s", typeName(args[1]))
		}
		callArgs = m
	}
	if in.cfg.Tools == nil {
		return nil, toolErrf("no tool handler configured")
	}
	resolved := callArgs
	if in.cfg.Sidecar.Enabled {
		r, err := in.store.ResolveArgs(callArgs, in.cfg.Sidecar.MaxResolvedSize)
		if err != nil {
			return nil, policyErrf("%s", err)
		}
		resolved = r
	}
	result, err := in.cfg.Tools(in.ctx, name, resolved)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, timeoutErrf("tool %q hit the run deadline", name)
		}
		return nil, toolErrf("tool %q failed: %v", name, err)
	}
	result = deepCopyValue(result)
	if in.cfg.Sidecar.Enabled {
		n, err := sidecar.EstimateSize(result)
		if err != nil {
			return nil, internalErrf("size tool result: %v", err)
		}
		if n >= in.cfg.Sidecar.ExtractionThreshold {
			return in.store.Put(result), nil
		}
	}
	return result, nil
}
