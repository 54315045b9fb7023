package gate

import (
	"context"
	"fmt"
)

// Signal names one contribution to a risk score.
type Signal struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Detail string  `json:"detail,omitempty"`
}

// Assessment is a scorer's verdict over one feature set. Score is in
// [0, 1]; Signals explain how it was reached.
type Assessment struct {
	Score   float64  `json:"score"`
	Signals []Signal `json:"signals"`
}

// Scorer turns extracted features into a risk assessment. Name and
// Fingerprint together identify the scorer and its configuration for
// cache keying: two scorers that can disagree must differ in at least
// one of them.
type Scorer interface {
	Name() string
	Fingerprint() string
	Score(ctx context.Context, f *Features) (*Assessment, error)
}

// NopScorer allows everything. Useful for deployments that want the
// pipeline shape without semantic scoring.
type NopScorer struct{}

func (NopScorer) Name() string        { return "nop" }
func (NopScorer) Fingerprint() string { return "v1" }

func (NopScorer) Score(context.Context, *Features) (*Assessment, error) {
	return &Assessment{Score: 0}, nil
}

// HeuristicScorer is the built-in deterministic scorer. Each risk shape
// contributes a fixed weight; the sum is capped at 1.
type HeuristicScorer struct{}

func (HeuristicScorer) Name() string        { return "heuristic" }
func (HeuristicScorer) Fingerprint() string { return "v1" }

func (HeuristicScorer) Score(_ context.Context, f *Features) (*Assessment, error) {
	a := &Assessment{}
	add := func(name string, weight float64, detail string) {
		a.Signals = append(a.Signals, Signal{Name: name, Weight: weight, Detail: detail})
		a.Score += weight
	}

	if f.DynamicToolName {
		add("dynamic_tool_name", 0.3, "tool name is computed at runtime")
	}
	if f.NestedToolCalls {
		add("nested_tool_calls", 0.35, "a tool call feeds directly into another tool call")
	}
	if f.ToolCallInLoop {
		add("tool_call_in_loop", 0.25, "tool call inside a loop amplifies per-run cost")
	}
	if f.RepeatedTool && f.ToolCallInLoop {
		add("repeated_tool_chain", 0.15, "the same tool is called repeatedly")
	}
	if n := len(f.ToolCalls); n > 8 {
		add("many_tool_calls", 0.2, fmt.Sprintf("%d tool call sites", n))
	}
	if f.MaxLoopDepth >= 3 {
		add("deep_loop_nesting", 0.1, fmt.Sprintf("loops nested %d deep", f.MaxLoopDepth))
	}
	if c := f.Sensitive["credentials"]; c > 0 {
		add("sensitive_credentials", 0.4, fmt.Sprintf("%d credential-shaped references", c))
	}
	if c := f.Sensitive["filesystem"]; c > 0 {
		add("sensitive_filesystem", 0.2, fmt.Sprintf("%d filesystem-shaped references", c))
	}
	if c := f.Sensitive["network"]; c > 0 {
		add("sensitive_network", 0.15, fmt.Sprintf("%d network-shaped references", c))
	}

	if a.Score > 1 {
		a.Score = 1
	}
	return a, nil
}
