// Package gate is the semantic risk layer. It extracts behavioral
// features from a parsed script, hands them to a pluggable scorer, and
// advises allow or block against a threshold. The gate never blocks by
// itself; enforcement belongs to the caller.
package gate

import (
	"strings"

	"github.com/scriptward/scriptward/internal/model"
	"github.com/scriptward/scriptward/internal/script"
)

// ToolCallSite is one callTool invocation found in the script.
type ToolCallSite struct {
	Name    string         `json:"name"` // static tool name, empty when dynamic
	Dynamic bool           `json:"dynamic"`
	InLoop  bool           `json:"in_loop"`
	Pos     model.Position `json:"pos"`
}

// Features is the structured behavioral summary a scorer consumes.
// Extraction is pure: same program, same features.
type Features struct {
	ToolCalls     []ToolCallSite `json:"tool_calls"`
	CallCount     int            `json:"call_count"`
	LoopCount     int            `json:"loop_count"`
	MaxLoopDepth  int            `json:"max_loop_depth"`
	FuncCount     int            `json:"func_count"`
	TryCount      int            `json:"try_count"`
	TemplateCount int            `json:"template_count"`
	StringBytes   int            `json:"string_bytes"`

	ToolCallInLoop  bool `json:"tool_call_in_loop"`
	DynamicToolName bool `json:"dynamic_tool_name"`
	NestedToolCalls bool `json:"nested_tool_calls"`
	RepeatedTool    bool `json:"repeated_tool"`

	// Sensitive counts occurrences per category: credentials,
	// filesystem, network.
	Sensitive map[string]int `json:"sensitive,omitempty"`
}

var sensitiveNeedles = map[string][]string{
	"credentials": {
		"password", "passwd", "secret", "token", "api_key", "apikey",
		"credential", "private_key", "auth",
	},
	"filesystem": {
		"/etc/", "/var/", "/root", "/home/", "../", ".ssh", "c:\\", "file://",
	},
	"network": {
		"http://", "https://", "ftp://", "ssh://",
	},
}

// Extract walks the program once and derives the feature summary.
func Extract(prog *script.Program) *Features {
	f := &Features{Sensitive: map[string]int{}}
	toolNames := map[string]int{}

	script.Walk(prog, func(n script.Node, ancestors []script.Node) {
		switch t := n.(type) {
		case *script.Call:
			f.CallCount++
			if !isCallTool(t) {
				return
			}
			site := ToolCallSite{Pos: t.Pos(), InLoop: insideLoop(ancestors)}
			if len(t.Args) > 0 {
				if s, ok := t.Args[0].(*script.StringLit); ok {
					site.Name = s.Value
				} else {
					site.Dynamic = true
				}
			} else {
				site.Dynamic = true
			}
			f.ToolCalls = append(f.ToolCalls, site)
			if site.InLoop {
				f.ToolCallInLoop = true
			}
			if site.Dynamic {
				f.DynamicToolName = true
			}
			if site.Name != "" {
				toolNames[site.Name]++
			}
			if insideToolCall(ancestors) {
				f.NestedToolCalls = true
			}
		case *script.While, *script.For, *script.ForOf:
			f.LoopCount++
			if d := loopDepth(ancestors) + 1; d > f.MaxLoopDepth {
				f.MaxLoopDepth = d
			}
		case *script.FuncDecl:
			f.FuncCount++
		case *script.Try:
			f.TryCount++
		case *script.TemplateLit:
			f.TemplateCount++
			for _, part := range t.Parts {
				f.StringBytes += len(part.Text)
				f.countSensitive(part.Text)
			}
		case *script.StringLit:
			f.StringBytes += len(t.Value)
			f.countSensitive(t.Value)
		case *script.Ident:
			f.countSensitive(t.Name)
		case *script.Member:
			if !t.Computed {
				f.countSensitive(t.Prop)
			}
		}
	})

	for _, count := range toolNames {
		if count > 1 {
			f.RepeatedTool = true
		}
	}
	if len(f.Sensitive) == 0 {
		f.Sensitive = nil
	}
	return f
}

func (f *Features) countSensitive(text string) {
	lower := strings.ToLower(text)
	for category, needles := range sensitiveNeedles {
		for _, needle := range needles {
			if strings.Contains(lower, needle) {
				f.Sensitive[category]++
				break
			}
		}
	}
}

func isCallTool(c *script.Call) bool {
	id, ok := c.Callee.(*script.Ident)
	return ok && id.Name == "callTool"
}

func insideLoop(ancestors []script.Node) bool {
	for _, a := range ancestors {
		switch a.(type) {
		case *script.While, *script.For, *script.ForOf:
			return true
		}
	}
	return false
}

func insideToolCall(ancestors []script.Node) bool {
	for _, a := range ancestors {
		if c, ok := a.(*script.Call); ok && isCallTool(c) {
			return true
		}
	}
	return false
}

func loopDepth(ancestors []script.Node) int {
	depth := 0
	for _, a := range ancestors {
		switch a.(type) {
		case *script.While, *script.For, *script.ForOf:
			depth++
		}
	}
	return depth
}
