// Package enclave executes untrusted scripts inside a bounded sandbox:
// a tree-walking interpreter with a step budget and deadline, a curated
// global table, and sidecar reference routing for oversized values. Every
// failure mode normalizes into the Result shape; Run never panics and
// never throws past its boundary.
package enclave

import (
	"context"
	"sync"

	"github.com/scriptward/scriptward/internal/guard"
	"github.com/scriptward/scriptward/internal/script"
	"github.com/scriptward/scriptward/internal/sidecar"
)

// RunState tracks one run through its lifecycle.
type RunState string

const (
	StatePending   RunState = "pending"
	StateExecuting RunState = "executing"
	StateSucceeded RunState = "succeeded"
	StateFailed    RunState = "failed"
)

// Enclave is a reusable sandbox instance. Runs on one instance are
// serialized; the sidecar store is rebuilt for every run, so tokens are
// never valid across runs or across instances.
type Enclave struct {
	cfg   Config
	runMu sync.Mutex

	mu       sync.Mutex
	state    RunState
	store    *sidecar.Store
	disposed bool
}

// New validates the configuration eagerly and returns a ready enclave.
func New(cfg Config) (*Enclave, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Enclave{
		cfg:   cfg,
		state: StatePending,
		store: sidecar.NewStore(),
	}, nil
}

// State reports the lifecycle state of the most recent run.
func (e *Enclave) State() RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Enclave) setState(s RunState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Run executes source and returns its bounded result. The mandatory
// pre-scan and the parse run inside the boundary regardless of any
// screening the caller already did. Concurrent calls are serialized so
// the per-run sidecar store is never shared between runs.
func (e *Enclave) Run(ctx context.Context, source string) (res *Result) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return failure(internalErrf("enclave has been disposed"))
	}
	e.store = sidecar.NewStore()
	e.state = StateExecuting
	store := e.store
	e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			res = failure(internalErrf("unexpected fault: %v", r))
		}
		if res == nil {
			res = failure(internalErrf("run produced no result"))
		}
		if res.Success {
			e.setState(StateSucceeded)
		} else {
			e.setState(StateFailed)
		}
	}()

	st := guard.Scan(source, guard.DefaultConfig())
	if !st.OK() {
		for _, iss := range st.Issues() {
			if iss.Fatal() {
				return failure(policyErrf("script rejected: %s", iss.Message))
			}
		}
		return failure(policyErrf("script rejected by mandatory limits"))
	}

	prog, err := script.Parse(source)
	if err != nil {
		return failure(scriptErrf("%s", err))
	}

	runCtx := ctx
	if e.cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.MaxDuration)
		defer cancel()
	}

	in := &interp{ctx: runCtx, cfg: &e.cfg, store: store}
	in.globals = newGlobals(in)

	value, rerr := in.run(prog)
	if rerr != nil {
		return failure(rerr)
	}
	return &Result{Success: true, Value: value}
}

// Dispose releases the run's sidecar store, invalidating every
// outstanding token. It is idempotent and safe to call at any state,
// including while a run is in flight.
func (e *Enclave) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disposed = true
	if e.store != nil {
		e.store.Clear()
	}
}

// Store exposes the current run's reference store so a host can resolve
// tokens a script returned, before the enclave is disposed.
func (e *Enclave) Store() *sidecar.Store {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store
}
