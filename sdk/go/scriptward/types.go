package scriptward

import (
	"context"
	"fmt"

	"github.com/scriptward/scriptward/internal/enclave"
	"github.com/scriptward/scriptward/internal/gate"
	"github.com/scriptward/scriptward/internal/model"
	"github.com/scriptward/scriptward/internal/warden"
)

// Handler implements one tool a script may invoke through callTool.
// Arguments arrive fully resolved; references never cross this boundary.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Stage identifies the pipeline layer that produced a decision.
type Stage string

const (
	StagePreScan  Stage = Stage(model.StagePreScan)
	StageValidate Stage = Stage(model.StageValidate)
	StageScore    Stage = Stage(model.StageScore)
	StageExecute  Stage = Stage(model.StageExecute)
)

// ErrorKind classifies a run failure.
type ErrorKind string

const (
	KindScript   ErrorKind = ErrorKind(enclave.KindScript)
	KindPolicy   ErrorKind = ErrorKind(enclave.KindPolicy)
	KindTool     ErrorKind = ErrorKind(enclave.KindTool)
	KindTimeout  ErrorKind = ErrorKind(enclave.KindTimeout)
	KindInternal ErrorKind = ErrorKind(enclave.KindInternal)
)

// Issue describes a single guard or rule finding.
type Issue struct {
	Code     string
	Message  string
	Severity string
	Line     int
	Column   int
}

// CheckResult is the static verdict over one script.
type CheckResult struct {
	Valid      bool
	SourceHash string
	Issues     []Issue
}

// Signal names one contribution to a risk score.
type Signal struct {
	Name   string
	Weight float64
	Detail string
}

// ScoreResult is the gate verdict over one script.
type ScoreResult struct {
	Allowed   bool
	Score     float64
	RiskLevel string
	Signals   []Signal
	Cached    bool
}

// RunError is the normalized failure shape of an executed script.
type RunError struct {
	Message string
	Kind    ErrorKind
}

func (e *RunError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// RunResult is the outcome of a script that reached the enclave.
// Value holds the fully materialized return value on success.
type RunResult struct {
	Success bool
	Value   any
	Error   *RunError
}

// BlockedError is returned when a stage refuses a script before
// execution. The script never ran.
type BlockedError struct {
	Stage  Stage
	Reason string
	Score  float64
	Issues []Issue
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("scriptward blocked at %s: %s", e.Stage, e.Reason)
}

// toIssues maps internal issues to the SDK shape.
func toIssues(issues []model.Issue) []Issue {
	if len(issues) == 0 {
		return nil
	}
	out := make([]Issue, len(issues))
	for i, iss := range issues {
		out[i] = Issue{
			Code:     iss.Code,
			Message:  iss.Message,
			Severity: string(iss.Severity),
			Line:     iss.Pos.Line,
			Column:   iss.Pos.Column,
		}
	}
	return out
}

// toCheckResult maps a warden report to the SDK shape.
func toCheckResult(report *warden.CheckReport) CheckResult {
	return CheckResult{
		Valid:      report.Valid,
		SourceHash: report.SourceHash,
		Issues:     toIssues(report.Issues),
	}
}

// toScoreResult maps a gate result to the SDK shape.
func toScoreResult(res *gate.Result) ScoreResult {
	out := ScoreResult{
		Allowed:   res.Allowed,
		Score:     res.Score,
		RiskLevel: string(res.RiskLevel),
		Cached:    res.Cached,
	}
	for _, sig := range res.Signals {
		out.Signals = append(out.Signals, Signal{Name: sig.Name, Weight: sig.Weight, Detail: sig.Detail})
	}
	return out
}

// toRunResult maps an enclave result to the SDK shape.
func toRunResult(res *enclave.Result) RunResult {
	out := RunResult{Success: res.Success, Value: res.Value}
	if res.Error != nil {
		out.Error = &RunError{Message: res.Error.Message, Kind: ErrorKind(res.Error.Kind)}
	}
	return out
}

// toBlockedError maps a warden refusal to the SDK shape.
func toBlockedError(err *warden.BlockedError) *BlockedError {
	return &BlockedError{
		Stage:  Stage(err.Stage),
		Reason: err.Reason,
		Score:  err.Score,
		Issues: toIssues(err.Issues),
	}
}
