package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/scriptward/scriptward/internal/model"
	"github.com/scriptward/scriptward/internal/script"
)

// DefaultBlockThreshold is the score at which the gate advises a block.
const DefaultBlockThreshold = 0.85

// FailMode governs the verdict when the scorer itself fails.
type FailMode string

const (
	// FailClosed treats a scorer failure as a block.
	FailClosed FailMode = "fail_closed"
	// FailOpen treats a scorer failure as an allow.
	FailOpen FailMode = "fail_open"
)

// Config assembles a gate. Scorer is required; everything else has a
// usable default.
type Config struct {
	Scorer         Scorer
	BlockThreshold float64  // default DefaultBlockThreshold
	FailMode       FailMode // default FailClosed
	Cache          *Cache   // nil disables memoization
}

// Result is the gate's advice for one script.
type Result struct {
	Allowed   bool            `json:"allowed"`
	Score     float64         `json:"score"`
	RiskLevel model.RiskLevel `json:"risk_level"`
	Signals   []Signal        `json:"signals"`
	Cached    bool            `json:"cached,omitempty"`
}

// Gate evaluates scripts against a scorer and threshold.
type Gate struct {
	scorer    Scorer
	threshold float64
	failMode  FailMode
	cache     *Cache
}

// New validates the configuration eagerly: a missing scorer or an
// out-of-range threshold is a setup error, not a per-script one.
func New(cfg Config) (*Gate, error) {
	if cfg.Scorer == nil {
		return nil, errors.New("gate: scorer is required")
	}
	threshold := cfg.BlockThreshold
	if threshold == 0 {
		threshold = DefaultBlockThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("gate: block threshold %v outside [0, 1]", threshold)
	}
	switch cfg.FailMode {
	case "":
		cfg.FailMode = FailClosed
	case FailClosed, FailOpen:
	default:
		return nil, fmt.Errorf("gate: unknown fail mode %q", cfg.FailMode)
	}
	return &Gate{
		scorer:    cfg.Scorer,
		threshold: threshold,
		failMode:  cfg.FailMode,
		cache:     cfg.Cache,
	}, nil
}

// Evaluate scores one script and advises allow or block. The verdict is
// allowed exactly when score < threshold. A scorer failure never
// propagates: it degrades to the configured fail mode with a
// scorer_unavailable signal so the decision stays auditable. Only a
// parse failure returns an error; in the full pipeline the validator
// has already rejected unparseable source.
func (g *Gate) Evaluate(ctx context.Context, source string) (Result, error) {
	key := Key(g.scorer.Name(), g.scorer.Fingerprint(), source)
	if g.cache != nil {
		if a, ok := g.cache.Get(key); ok {
			return g.decide(a, true), nil
		}
	}

	prog, err := script.Parse(source)
	if err != nil {
		return Result{}, fmt.Errorf("gate: parse: %w", err)
	}

	a, err := g.scorer.Score(ctx, Extract(prog))
	if err != nil {
		return g.degrade(err), nil
	}
	if g.cache != nil {
		g.cache.Put(key, *a)
	}
	return g.decide(*a, false), nil
}

// EvaluateProgram scores an already-parsed script, skipping the cache.
func (g *Gate) EvaluateProgram(ctx context.Context, prog *script.Program) (Result, error) {
	a, err := g.scorer.Score(ctx, Extract(prog))
	if err != nil {
		return g.degrade(err), nil
	}
	return g.decide(*a, false), nil
}

func (g *Gate) decide(a Assessment, cached bool) Result {
	return Result{
		Allowed:   a.Score < g.threshold,
		Score:     a.Score,
		RiskLevel: model.RiskLevelFromScore(a.Score),
		Signals:   a.Signals,
		Cached:    cached,
	}
}

func (g *Gate) degrade(err error) Result {
	signal := Signal{Name: "scorer_unavailable", Detail: err.Error()}
	if g.failMode == FailOpen {
		return Result{
			Allowed:   true,
			RiskLevel: model.RiskLow,
			Signals:   []Signal{signal},
		}
	}
	signal.Weight = 1
	return Result{
		Allowed:   false,
		Score:     1,
		RiskLevel: model.RiskCritical,
		Signals:   []Signal{signal},
	}
}
