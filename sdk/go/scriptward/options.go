package scriptward

import (
	"github.com/scriptward/scriptward/internal/config"
)

// Option configures a Ward at creation time.
type Option func(*wardConfig)

// wardConfig defers mutations until New has loaded the base config,
// so options apply in order regardless of where WithConfigFile sits.
type wardConfig struct {
	configPath string
	mutations  []func(*config.Config)
}

func (w *wardConfig) mutate(fn func(*config.Config)) {
	w.mutations = append(w.mutations, fn)
}

// WithConfigFile loads the base configuration from a YAML file instead
// of the built-in defaults. Other options apply on top.
func WithConfigFile(path string) Option {
	return func(w *wardConfig) { w.configPath = path }
}

// WithLevel sets the security level ("standard" or "strict").
func WithLevel(level string) Option {
	return func(w *wardConfig) {
		w.mutate(func(c *config.Config) { c.Level = level })
	}
}

// WithExtractionThreshold sets the size in bytes at or above which
// values are routed as sidecar references.
func WithExtractionThreshold(n int) Option {
	return func(w *wardConfig) {
		w.mutate(func(c *config.Config) { c.Sidecar.ExtractionThreshold = n })
	}
}

// WithMaxResolvedSize caps the total bytes any single resolution may
// materialize.
func WithMaxResolvedSize(n int) Option {
	return func(w *wardConfig) {
		w.mutate(func(c *config.Config) { c.Sidecar.MaxResolvedSize = n })
	}
}

// WithAllowComposites overrides the level default for reference
// concatenation.
func WithAllowComposites(allow bool) Option {
	return func(w *wardConfig) {
		w.mutate(func(c *config.Config) { c.Sidecar.AllowComposites = &allow })
	}
}

// WithBlockThreshold sets the risk score at or above which scripts are
// blocked.
func WithBlockThreshold(threshold float64) Option {
	return func(w *wardConfig) {
		w.mutate(func(c *config.Config) { c.Gate.BlockThreshold = threshold })
	}
}

// WithFailClosed selects what happens when the scorer is unavailable:
// true blocks, false allows with a degraded-result signal.
func WithFailClosed(closed bool) Option {
	return func(w *wardConfig) {
		w.mutate(func(c *config.Config) {
			if closed {
				c.Gate.FailMode = "closed"
			} else {
				c.Gate.FailMode = "open"
			}
		})
	}
}

// WithScorer selects a built-in scorer: "none", "heuristic", or
// "remote". Remote scorers also need WithRemoteScorer.
func WithScorer(name string) Option {
	return func(w *wardConfig) {
		w.mutate(func(c *config.Config) { c.Gate.Scorer = name })
	}
}

// WithRemoteScorer points the gate at an HTTP scoring endpoint and
// implies WithScorer("remote"). The API key is read from the named
// environment variable at evaluation time.
func WithRemoteScorer(endpoint, apiKeyEnv string) Option {
	return func(w *wardConfig) {
		w.mutate(func(c *config.Config) {
			c.Gate.Scorer = "remote"
			c.Gate.Endpoint = endpoint
			c.Gate.APIKeyEnv = apiKeyEnv
		})
	}
}

// WithAuditLog appends every pipeline decision to a hash-chained JSONL
// log at path.
func WithAuditLog(path string) Option {
	return func(w *wardConfig) {
		w.mutate(func(c *config.Config) { c.AuditLog = path })
	}
}

// WithHistory records evaluations to a SQLite database at path.
func WithHistory(path string) Option {
	return func(w *wardConfig) {
		w.mutate(func(c *config.Config) { c.HistoryDB = path })
	}
}

// Rules adjusts the validator beyond the level preset.
type Rules struct {
	// ReservedPrefixes replaces the identifier prefixes scripts may not
	// declare or assign. Empty keeps the defaults.
	ReservedPrefixes []string
	// PrefixAllowlist names exact identifiers exempt from the reserved
	// prefixes, such as the arguments binding.
	PrefixAllowlist []string
	// ExtraGlobals extends the global allow-list.
	ExtraGlobals []string
	// DisallowedLoops bans loop kinds ("while", "for", "for-of") at any
	// level.
	DisallowedLoops []string
}

// WithRules layers validator adjustments on the level preset.
func WithRules(r Rules) Option {
	return func(w *wardConfig) {
		w.mutate(func(c *config.Config) {
			c.Rules = config.RulesConfig{
				ReservedPrefixes: r.ReservedPrefixes,
				PrefixAllowlist:  r.PrefixAllowlist,
				ExtraGlobals:     r.ExtraGlobals,
				DisallowedLoops:  r.DisallowedLoops,
			}
		})
	}
}
