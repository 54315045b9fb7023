package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/scriptward/scriptward/internal/dispatch"
	"github.com/scriptward/scriptward/internal/model"
	"github.com/scriptward/scriptward/internal/warden"
)

// --- Input/Output types ---

// CheckInput defines parameters for the script_check tool.
type CheckInput struct {
	Source string `json:"source" jsonschema:"script source to scan and validate"`
	Level  string `json:"level,omitempty" jsonschema:"security level override (standard/strict)"`
}

// CheckOutput contains the validation verdict and issue list.
type CheckOutput struct {
	Valid      bool        `json:"valid"`
	SourceHash string      `json:"source_hash"`
	Level      string      `json:"level"`
	Issues     []IssueItem `json:"issues"`
}

// IssueItem describes a single guard or rule finding.
type IssueItem struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
}

// ScoreInput defines parameters for the script_score tool.
type ScoreInput struct {
	Source string `json:"source" jsonschema:"script source to score"`
}

// ScoreOutput contains the gate verdict for a script.
type ScoreOutput struct {
	Allowed   bool         `json:"allowed"`
	Score     float64      `json:"score"`
	RiskLevel string       `json:"risk_level"`
	Signals   []SignalItem `json:"signals"`
	Cached    bool         `json:"cached,omitempty"`
}

// SignalItem describes one contribution to a risk score.
type SignalItem struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Detail string  `json:"detail,omitempty"`
}

// RunInput defines parameters for the script_run tool.
type RunInput struct {
	Source       string         `json:"source" jsonschema:"script source to execute"`
	ToolEndpoint string         `json:"tool_endpoint,omitempty" jsonschema:"HTTP endpoint for callTool dispatch, built-in echo registry when omitted"`
	Params       map[string]any `json:"params,omitempty" jsonschema:"named arguments bound to __enclave_args__"`
}

// RunOutput contains the execution result or block details.
type RunOutput struct {
	Success      bool        `json:"success"`
	Value        string      `json:"value,omitempty"`
	ErrorKind    string      `json:"error_kind,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Blocked      bool        `json:"blocked,omitempty"`
	Stage        string      `json:"stage,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	Score        float64     `json:"score,omitempty"`
	Issues       []IssueItem `json:"issues,omitempty"`
}

// --- Handlers ---

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	w, err := s.wardenFor(input.Level)
	if err != nil {
		return nil, CheckOutput{}, err
	}

	report := w.Check(input.Source)
	return nil, CheckOutput{
		Valid:      report.Valid,
		SourceHash: report.SourceHash,
		Level:      string(w.Level()),
		Issues:     issueItems(report.Issues),
	}, nil
}

func (s *Server) handleScore(ctx context.Context, req *mcpsdk.CallToolRequest, input ScoreInput) (*mcpsdk.CallToolResult, ScoreOutput, error) {
	res, err := s.current().Score(ctx, input.Source)
	if err != nil {
		return nil, ScoreOutput{}, err
	}

	signals := make([]SignalItem, len(res.Signals))
	for i, sig := range res.Signals {
		signals[i] = SignalItem{Name: sig.Name, Weight: sig.Weight, Detail: sig.Detail}
	}

	return nil, ScoreOutput{
		Allowed:   res.Allowed,
		Score:     res.Score,
		RiskLevel: string(res.RiskLevel),
		Signals:   signals,
		Cached:    res.Cached,
	}, nil
}

func (s *Server) handleRun(ctx context.Context, req *mcpsdk.CallToolRequest, input RunInput) (*mcpsdk.CallToolResult, RunOutput, error) {
	tools := dispatch.Echo()
	if input.ToolEndpoint != "" {
		tools = dispatch.HTTP(input.ToolEndpoint, "", 0)
	}

	res, err := s.current().RunWithParams(ctx, input.Source, tools, input.Params)
	if err != nil {
		var blocked *warden.BlockedError
		if errors.As(err, &blocked) {
			out := RunOutput{
				Blocked: true,
				Stage:   string(blocked.Stage),
				Reason:  blocked.Reason,
				Score:   blocked.Score,
				Issues:  issueItems(blocked.Issues),
			}
			return &mcpsdk.CallToolResult{IsError: true}, out, nil
		}
		return nil, RunOutput{}, err
	}

	if !res.Success {
		out := RunOutput{}
		if res.Error != nil {
			out.ErrorKind = string(res.Error.Kind)
			out.ErrorMessage = res.Error.Message
		}
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	out := RunOutput{Success: true}
	if res.Value != nil {
		out.Value = marshalJSON(res.Value)
	}
	return nil, out, nil
}

// --- Helpers ---

func issueItems(issues []model.Issue) []IssueItem {
	items := make([]IssueItem, len(issues))
	for i, iss := range issues {
		items[i] = IssueItem{
			Code:     iss.Code,
			Message:  iss.Message,
			Severity: string(iss.Severity),
			Line:     iss.Pos.Line,
			Column:   iss.Pos.Column,
		}
	}
	return items
}

// marshalJSON is a helper for JSON encoding in responses.
func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
