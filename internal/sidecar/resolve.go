package sidecar

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// maxValueDepth bounds the nesting the estimator and the argument walker
// will follow. JSON-shaped tool data stays far below this.
const maxValueDepth = 256

// sizeCap saturates size arithmetic. Shared references can make the
// predicted size grow exponentially, and a wrapped negative total would
// slip past the limit check.
const sizeCap = math.MaxInt / 4

func satAdd(a, b int) int {
	c := a + b
	if c < a || c > sizeCap {
		return sizeCap
	}
	return c
}

// ResolvedSize returns a conservative upper bound on the bytes token would
// occupy once fully resolved. Strings count their exact length, structured
// values add container overhead on top of their contents, and composites
// sum their parts transitively. The bound over-estimates rather than
// under-estimates; an optimistic bound would defeat the predictive check.
func (s *Store) ResolvedSize(token string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolvedSizeLocked(token, make(map[string]int))
}

// resolvedSizeLocked memoizes per token. A memo value of -1 marks a token
// whose size is still being computed; reaching it again means the reference
// graph has a cycle, which only a forged session record can produce.
func (s *Store) resolvedSizeLocked(token string, memo map[string]int) (int, error) {
	if n, ok := memo[token]; ok {
		if n < 0 {
			return 0, fmt.Errorf("reference cycle through %s", token)
		}
		return n, nil
	}
	if v, ok := s.values[token]; ok {
		n, err := estimateSize(v, 0)
		if err != nil {
			return 0, err
		}
		memo[token] = n
		return n, nil
	}
	c, ok := s.composites[token]
	if !ok {
		return 0, fmt.Errorf("unknown reference token %s", token)
	}
	memo[token] = -1
	total := 0
	for _, p := range c.Parts {
		switch p.Kind {
		case PartLit:
			total = satAdd(total, len(p.Lit))
		case PartRef:
			n, err := s.resolvedSizeLocked(p.Ref, memo)
			if err != nil {
				return 0, err
			}
			total = satAdd(total, n)
		default:
			return 0, fmt.Errorf("invalid composite part kind %q", p.Kind)
		}
	}
	memo[token] = total
	return total, nil
}

// EstimateSize over-approximates the in-memory footprint of v in bytes,
// using the same accounting as ResolvedSize. Callers use it to decide
// whether a value crossing the boundary should be stored as a reference.
func EstimateSize(v any) (int, error) {
	return estimateSize(v, 0)
}

func estimateSize(v any, depth int) (int, error) {
	if depth > maxValueDepth {
		return 0, errors.New("value nesting too deep to size")
	}
	switch x := v.(type) {
	case nil:
		return 8, nil
	case bool:
		return 8, nil
	case string:
		return len(x), nil
	case float64, int, int64:
		return 24, nil
	case []any:
		n := 16
		for _, e := range x {
			m, err := estimateSize(e, depth+1)
			if err != nil {
				return 0, err
			}
			n = satAdd(n, satAdd(m, 16))
		}
		return n, nil
	case map[string]any:
		n := 16
		for k, e := range x {
			m, err := estimateSize(e, depth+1)
			if err != nil {
				return 0, err
			}
			n = satAdd(n, satAdd(len(k)+32, m))
		}
		return n, nil
	default:
		// Uncommon handler result types are sized by their JSON encoding.
		b, err := json.Marshal(x)
		if err != nil {
			return 0, fmt.Errorf("cannot size value of type %T", v)
		}
		return len(b), nil
	}
}

// Resolve returns the real value behind token. The predictive check runs
// first: when the size bound exceeds maxResolvedSize the call fails before
// any concatenation is allocated. A maxResolvedSize of zero or less
// disables the check. Tokens never issued by this store fail resolution,
// which covers both forgery and cross-run reuse.
func (s *Store) Resolve(token string, maxResolvedSize int) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(token, maxResolvedSize)
}

func (s *Store) resolveLocked(token string, maxResolvedSize int) (any, error) {
	n, err := s.resolvedSizeLocked(token, make(map[string]int))
	if err != nil {
		return nil, err
	}
	if maxResolvedSize > 0 && n > maxResolvedSize {
		return nil, fmt.Errorf("resolving %s would exceed maximum resolved size (%d > %d bytes)", token, n, maxResolvedSize)
	}
	if v, ok := s.values[token]; ok {
		return v, nil
	}
	var b strings.Builder
	if n < 1<<30 {
		b.Grow(n)
	}
	if err := s.buildLocked(token, &b); err != nil {
		return nil, err
	}
	return b.String(), nil
}

// buildLocked writes the fully concatenated composite. The size pass has
// already validated every referenced token and rejected cycles.
func (s *Store) buildLocked(token string, b *strings.Builder) error {
	if v, ok := s.values[token]; ok {
		str, ok := v.(string)
		if !ok {
			return fmt.Errorf("composite part %s is not a string", token)
		}
		b.WriteString(str)
		return nil
	}
	c, ok := s.composites[token]
	if !ok {
		return fmt.Errorf("unknown reference token %s", token)
	}
	for _, p := range c.Parts {
		if p.Kind == PartLit {
			b.WriteString(p.Lit)
			continue
		}
		if err := s.buildLocked(p.Ref, b); err != nil {
			return err
		}
	}
	return nil
}

// ResolveArgs deep-walks args and replaces every reference token with its
// resolved value, returning a fresh structure. The size budget is
// cumulative across all tokens in args, so a script cannot smuggle an
// oversized payload through many individually small references.
func (s *Store) ResolveArgs(args map[string]any, maxResolvedSize int) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &resolver{store: s, max: maxResolvedSize, budget: maxResolvedSize}
	out, err := r.value(args, 0)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

type resolver struct {
	store  *Store
	max    int
	budget int
}

func (r *resolver) value(v any, depth int) (any, error) {
	if depth > maxValueDepth {
		return nil, errors.New("argument nesting too deep")
	}
	switch x := v.(type) {
	case string:
		if !IsToken(x) {
			return x, nil
		}
		return r.token(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			rv, err := r.value(e, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			rv, err := r.value(e, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	default:
		return x, nil
	}
}

func (r *resolver) token(tok string) (any, error) {
	n, err := r.store.resolvedSizeLocked(tok, make(map[string]int))
	if err != nil {
		return nil, err
	}
	if r.max > 0 {
		if n > r.budget {
			return nil, fmt.Errorf("resolving %s would exceed maximum resolved size (%d bytes over a budget of %d)", tok, n, r.max)
		}
		r.budget -= n
	}
	return r.store.resolveLocked(tok, 0)
}
