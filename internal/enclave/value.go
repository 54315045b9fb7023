package enclave

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
)

// truthy implements the dialect's boolean coercion: false, null, zero,
// NaN, and the empty string are falsy; everything else is truthy.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	default:
		return true
	}
}

// typeName reports the dialect-level type of v, as typeof sees it.
// Reference tokens are strings and report as such.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case *function, *builtinFunc:
		return "function"
	default:
		return "object"
	}
}

// strictEquals implements ===. The dialect keeps == strict as well, so
// this is the only equality. Scalars compare by value; arrays, objects,
// and functions compare by identity.
func strictEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		return reflect.ValueOf(x).Pointer() == reflect.ValueOf(y).Pointer()
	case map[string]any:
		y, ok := b.(map[string]any)
		return ok && reflect.ValueOf(x).Pointer() == reflect.ValueOf(y).Pointer()
	case *function:
		y, ok := b.(*function)
		return ok && x == y
	case *builtinFunc:
		y, ok := b.(*builtinFunc)
		return ok && x == y
	default:
		return false
	}
}

// displayString renders v for template interpolation and str. Reference
// tokens render as themselves; structured values use JSON encoding.
func displayString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "null", nil
	case bool:
		return strconv.FormatBool(x), nil
	case float64:
		return formatNumber(x), nil
	case string:
		return x, nil
	case *function, *builtinFunc:
		return "", scriptErrf("cannot convert a function to a string")
	default:
		if holdsFunction(x) {
			return "", scriptErrf("cannot convert a function to a string")
		}
		b, err := json.Marshal(x)
		if err != nil {
			return "", scriptErrf("cannot convert %s to a string", typeName(v))
		}
		return string(b), nil
	}
}

// holdsFunction reports whether v contains a function value anywhere.
// Functions marshal to an empty JSON object without an error, so the
// encoder cannot catch them on its own.
func holdsFunction(v any) bool {
	switch x := v.(type) {
	case *function, *builtinFunc:
		return true
	case []any:
		for _, e := range x {
			if holdsFunction(e) {
				return true
			}
		}
	case map[string]any:
		for _, e := range x {
			if holdsFunction(e) {
				return true
			}
		}
	}
	return false
}

// formatNumber renders integral values without a trailing fraction.
func formatNumber(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// deepCopyValue copies JSON-shaped data crossing the trust boundary so
// the script and the host never alias each other's structures. Integer
// types normalize to float64, the dialect's only number representation.
func deepCopyValue(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopyValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = deepCopyValue(e)
		}
		return out
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	default:
		return x
	}
}
