package scriptward

import (
	"context"
	"errors"
	"fmt"

	"github.com/scriptward/scriptward/internal/config"
	"github.com/scriptward/scriptward/internal/dispatch"
	"github.com/scriptward/scriptward/internal/warden"
)

// Ward holds the evaluation pipeline for in-process enforcement.
// Safe for concurrent use; script runs serialize inside the enclave.
type Ward struct {
	w *warden.Warden
}

// New creates a Ward with the given options.
func New(opts ...Option) (*Ward, error) {
	var wcfg wardConfig
	for _, o := range opts {
		o(&wcfg)
	}

	cfg, err := config.LoadConfig(wcfg.configPath)
	if err != nil {
		return nil, fmt.Errorf("scriptward: %w", err)
	}
	for _, m := range wcfg.mutations {
		m(cfg)
	}

	w, err := warden.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("scriptward: %w", err)
	}
	return &Ward{w: w}, nil
}

// Check runs the static stages over a script without executing it.
func (wd *Ward) Check(source string) CheckResult {
	return toCheckResult(wd.w.Check(source))
}

// Score runs the risk gate over a script without executing it.
func (wd *Ward) Score(ctx context.Context, source string) (ScoreResult, error) {
	res, err := wd.w.Score(ctx, source)
	if err != nil {
		return ScoreResult{}, fmt.Errorf("scriptward: %w", err)
	}
	return toScoreResult(res), nil
}

// Run evaluates and executes a script. Tools maps the names a script
// may invoke through callTool to their handlers; nil means no tools.
// A refusal before execution returns a *BlockedError; a script that
// ran and failed returns a RunResult carrying the failure.
func (wd *Ward) Run(ctx context.Context, source string, tools map[string]Handler) (RunResult, error) {
	return wd.RunWithParams(ctx, source, tools, nil)
}

// RunWithParams is Run with named arguments bound to __enclave_args__.
func (wd *Ward) RunWithParams(ctx context.Context, source string, tools map[string]Handler, params map[string]any) (RunResult, error) {
	handlers := make(map[string]dispatch.Handler, len(tools))
	for name, h := range tools {
		handlers[name] = dispatch.Handler(h)
	}

	res, err := wd.w.RunWithParams(ctx, source, dispatch.Registry(handlers), params)
	if err != nil {
		var blocked *warden.BlockedError
		if errors.As(err, &blocked) {
			return RunResult{}, toBlockedError(blocked)
		}
		return RunResult{}, fmt.Errorf("scriptward: %w", err)
	}
	return toRunResult(res), nil
}

// Close releases the audit and history sinks, if configured.
func (wd *Ward) Close() error {
	return wd.w.Close()
}
