// Package warden composes the evaluation pipeline. A script passes the
// pre-scanner, the rule validator, and the risk gate before an enclave
// is ever constructed; each stage's decision can be recorded to an
// audit log and a history store.
package warden

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/scriptward/scriptward/internal/audit"
	"github.com/scriptward/scriptward/internal/config"
	"github.com/scriptward/scriptward/internal/enclave"
	"github.com/scriptward/scriptward/internal/gate"
	"github.com/scriptward/scriptward/internal/guard"
	"github.com/scriptward/scriptward/internal/history"
	"github.com/scriptward/scriptward/internal/model"
	"github.com/scriptward/scriptward/internal/rules"
)

// Decision values recorded in audit entries and history rows.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
	DecisionError = "error"
)

// CheckReport aggregates the static stages for one script. The
// pre-scanner stops at its first fatal issue; when it passes, the
// validator contributes its issues in batch.
type CheckReport struct {
	Valid      bool          `json:"valid"`
	SourceHash string        `json:"source_hash"`
	Issues     []model.Issue `json:"issues,omitempty"`
}

// BlockedError reports a refusal from a stage that runs before the
// sandbox. The script never executed.
type BlockedError struct {
	Stage  model.Stage   `json:"stage"`
	Reason string        `json:"reason"`
	Score  float64       `json:"score,omitempty"`
	Issues []model.Issue `json:"issues,omitempty"`
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked at %s: %s", e.Stage, e.Reason)
}

// Option adjusts a Warden beyond what the configuration carries.
type Option func(*Warden)

// WithAuditLog injects an already-open audit log. The caller keeps
// ownership; Close will not close it.
func WithAuditLog(l *audit.Log) Option {
	return func(w *Warden) { w.audit = l }
}

// WithHistory injects an already-open history store. The caller keeps
// ownership; Close will not close it.
func WithHistory(s *history.Store) Option {
	return func(w *Warden) { w.history = s }
}

// WithScorer overrides the scorer selected by the configuration.
func WithScorer(s gate.Scorer) Option {
	return func(w *Warden) { w.scorer = s }
}

// Warden owns the configured pipeline stages and applies them in order.
// All methods are safe for concurrent use.
type Warden struct {
	cfg       *config.Config
	level     model.SecurityLevel
	guardCfg  guard.Config
	validator *rules.Validator
	scorer    gate.Scorer
	gate      *gate.Gate
	threshold float64

	audit       *audit.Log
	history     *history.Store
	ownsAudit   bool
	ownsHistory bool
}

// New builds a pipeline from the configuration. A nil cfg uses the
// defaults. When cfg names an audit log or history database and no sink
// was injected, New opens the file and Close releases it.
func New(cfg *config.Config, opts ...Option) (*Warden, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("warden: %w", err)
	}

	level := cfg.SecurityLevel()
	w := &Warden{
		cfg:      cfg,
		level:    level,
		guardCfg: cfg.GuardConfig(),
		validator: rules.New(rules.ForLevel(level, rules.Options{
			ReservedPrefixes: cfg.Rules.ReservedPrefixes,
			AllowedNames:     cfg.Rules.PrefixAllowlist,
			ExtraGlobals:     cfg.Rules.ExtraGlobals,
			DisallowLoops:    cfg.Rules.DisallowedLoops,
		})...),
		threshold: cfg.Gate.BlockThreshold,
	}
	if w.threshold == 0 {
		w.threshold = gate.DefaultBlockThreshold
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.scorer == nil {
		w.scorer = scorerFor(cfg)
	}
	failMode := gate.FailClosed
	if cfg.Gate.FailMode == "open" {
		failMode = gate.FailOpen
	}
	g, err := gate.New(gate.Config{
		Scorer:         w.scorer,
		BlockThreshold: cfg.Gate.BlockThreshold,
		FailMode:       failMode,
		Cache:          gate.NewCache(cfg.Gate.CacheMaxEntries),
	})
	if err != nil {
		return nil, fmt.Errorf("warden: %w", err)
	}
	w.gate = g

	if w.audit == nil && cfg.AuditLog != "" {
		l, err := audit.Open(cfg.AuditLog)
		if err != nil {
			return nil, fmt.Errorf("warden: %w", err)
		}
		w.audit = l
		w.ownsAudit = true
	}
	if w.history == nil && cfg.HistoryDB != "" {
		s, err := history.Open(cfg.HistoryDB)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("warden: %w", err)
		}
		w.history = s
		w.ownsHistory = true
	}
	return w, nil
}

func scorerFor(cfg *config.Config) gate.Scorer {
	switch cfg.Gate.Scorer {
	case "none":
		return gate.NopScorer{}
	case "remote":
		return gate.NewRemoteScorer(gate.RemoteScorerConfig{
			Endpoint: cfg.Gate.Endpoint,
			APIKey:   os.Getenv(cfg.Gate.APIKeyEnv),
			Timeout:  cfg.GateTimeout(),
		})
	default:
		return gate.HeuristicScorer{}
	}
}

// Config returns the configuration the warden was built from.
func (w *Warden) Config() *config.Config { return w.cfg }

// Level returns the effective security level.
func (w *Warden) Level() model.SecurityLevel { return w.level }

// Close releases the sinks New opened. Injected sinks stay open.
func (w *Warden) Close() error {
	var first error
	if w.ownsAudit && w.audit != nil {
		if err := w.audit.Close(); err != nil {
			first = err
		}
		w.audit = nil
		w.ownsAudit = false
	}
	if w.ownsHistory && w.history != nil {
		if err := w.history.Close(); err != nil && first == nil {
			first = err
		}
		w.history = nil
		w.ownsHistory = false
	}
	return first
}

// Check runs the static stages and reports every issue found.
func (w *Warden) Check(source string) *CheckReport {
	report := &CheckReport{SourceHash: audit.HashLine([]byte(source))}
	st := guard.Scan(source, w.guardCfg)
	report.Issues = append(report.Issues, st.Issues()...)
	if st.OK() {
		res := w.validator.Validate(source)
		report.Issues = append(report.Issues, res.Issues...)
	}
	report.Valid = model.ResultFromIssues(report.Issues).Valid
	return report
}

// Score runs the risk gate alone. The static stages are not applied.
func (w *Warden) Score(ctx context.Context, source string) (*gate.Result, error) {
	res, err := w.gate.Evaluate(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("warden: %w", err)
	}
	return &res, nil
}

// Run applies the full pipeline to source. A refusal before execution
// returns a *BlockedError and never constructs an enclave. Once the
// sandbox runs, the outcome is reported inside the Result; err stays
// nil even when the script failed.
func (w *Warden) Run(ctx context.Context, source string, tools enclave.ToolFunc) (*enclave.Result, error) {
	return w.RunWithParams(ctx, source, tools, nil)
}

// RunWithParams is Run with host parameters bound to the script's
// argument object.
func (w *Warden) RunWithParams(ctx context.Context, source string, tools enclave.ToolFunc, params map[string]any) (*enclave.Result, error) {
	eventID := audit.NewEventID()
	hash := audit.HashLine([]byte(source))

	started := time.Now()
	st := guard.Scan(source, w.guardCfg)
	if !st.OK() {
		issues := st.Issues()
		reason := firstFatalMessage(issues)
		w.recordStage(stageRecord{eventID: eventID, stage: model.StagePreScan, hash: hash,
			decision: DecisionBlock, reason: reason, issues: issues, started: started})
		return nil, &BlockedError{Stage: model.StagePreScan, Reason: reason, Issues: issues}
	}
	w.recordStage(stageRecord{eventID: eventID, stage: model.StagePreScan, hash: hash,
		decision: DecisionAllow, issues: st.Issues(), started: started})

	started = time.Now()
	vres := w.validator.Validate(source)
	if !vres.Valid {
		reason := firstFatalMessage(vres.Issues)
		w.recordStage(stageRecord{eventID: eventID, stage: model.StageValidate, hash: hash,
			decision: DecisionBlock, reason: reason, issues: vres.Issues, started: started})
		return nil, &BlockedError{Stage: model.StageValidate, Reason: reason, Issues: vres.Issues}
	}
	w.recordStage(stageRecord{eventID: eventID, stage: model.StageValidate, hash: hash,
		decision: DecisionAllow, issues: vres.Issues, started: started})

	started = time.Now()
	gres, err := w.gate.Evaluate(ctx, source)
	if err != nil {
		// the validator already proved the source parses
		return nil, fmt.Errorf("warden: %w", err)
	}
	if !gres.Allowed {
		reason := scoreReason(gres, w.threshold)
		w.recordStage(stageRecord{eventID: eventID, stage: model.StageScore, hash: hash,
			decision: DecisionBlock, reason: reason, score: gres.Score, started: started})
		return nil, &BlockedError{Stage: model.StageScore, Reason: reason, Score: gres.Score}
	}
	w.recordStage(stageRecord{eventID: eventID, stage: model.StageScore, hash: hash,
		decision: DecisionAllow, score: gres.Score, started: started})

	started = time.Now()
	enc, err := enclave.New(enclave.Config{
		Level:  w.level,
		Tools:  tools,
		Params: params,
		Sidecar: enclave.SidecarConfig{
			Enabled:             w.cfg.Sidecar.Enabled,
			ExtractionThreshold: w.cfg.Sidecar.ExtractionThreshold,
			MaxResolvedSize:     w.cfg.Sidecar.MaxResolvedSize,
			AllowComposites:     w.cfg.AllowComposites(),
		},
		MaxDuration: w.cfg.MaxDuration(),
		MaxSteps:    w.cfg.Enclave.MaxSteps,
	})
	if err != nil {
		return nil, fmt.Errorf("warden: %w", err)
	}
	defer enc.Dispose()

	res := enc.Run(ctx, source)

	// The enclave's store dies with Dispose, so any reference the script
	// returned must materialize now, under the same resolved-size cap
	// that governs tool dispatch.
	if res.Success && w.cfg.Sidecar.Enabled {
		resolved, rerr := enc.Store().ResolveArgs(map[string]any{"value": res.Value}, w.cfg.Sidecar.MaxResolvedSize)
		if rerr != nil {
			res = &enclave.Result{Success: false, Error: &enclave.RunError{
				Message: rerr.Error(), Kind: enclave.KindPolicy,
			}}
		} else {
			res.Value = resolved["value"]
		}
	}

	rec := stageRecord{eventID: eventID, stage: model.StageExecute, hash: hash, started: started}
	switch {
	case res.Success:
		rec.decision = DecisionAllow
	case res.Error != nil && res.Error.Kind == enclave.KindPolicy:
		rec.decision = DecisionBlock
		rec.reason = res.Error.Message
		rec.errorKind = string(res.Error.Kind)
	case res.Error != nil:
		rec.decision = DecisionError
		rec.reason = res.Error.Message
		rec.errorKind = string(res.Error.Kind)
	default:
		rec.decision = DecisionError
	}
	w.recordStage(rec)

	return res, nil
}

type stageRecord struct {
	eventID   string
	stage     model.Stage
	hash      string
	decision  string
	reason    string
	score     float64
	issues    []model.Issue
	errorKind string
	started   time.Time
}

// recordStage writes one decision to the configured sinks. Sink
// failures are reported on stderr and never interrupt the pipeline.
func (w *Warden) recordStage(rec stageRecord) {
	duration := time.Since(rec.started).Milliseconds()
	if w.audit != nil {
		err := w.audit.Record(audit.Entry{
			EventID:    rec.eventID,
			Stage:      string(rec.stage),
			SourceHash: rec.hash,
			Level:      string(w.level),
			Decision:   rec.decision,
			Reason:     rec.reason,
			Score:      rec.score,
			IssueCodes: model.ResultFromIssues(rec.issues).IssueCodes(),
			ErrorKind:  rec.errorKind,
			DurationMS: duration,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "scriptward: audit write failed: %v\n", err)
		}
	}
	if w.history != nil {
		err := w.history.Save(history.Record{
			SourceHash: rec.hash,
			Stage:      string(rec.stage),
			Decision:   rec.decision,
			Score:      rec.score,
			IssueCount: len(rec.issues),
			ErrorKind:  rec.errorKind,
			DurationMS: duration,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "scriptward: history write failed: %v\n", err)
		}
	}
}

func firstFatalMessage(issues []model.Issue) string {
	for _, is := range issues {
		if is.Fatal() {
			return is.Message
		}
	}
	if len(issues) > 0 {
		return issues[0].Message
	}
	return "script rejected"
}

func scoreReason(res gate.Result, threshold float64) string {
	for _, sig := range res.Signals {
		if sig.Name == "scorer_unavailable" {
			return "scorer unavailable: " + sig.Detail
		}
	}
	return fmt.Sprintf("risk score %.2f at or above block threshold %.2f", res.Score, threshold)
}
