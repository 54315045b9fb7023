// Package config loads and validates the scriptward configuration
// file. Limit overrides are clamped to the mandatory caps on load;
// validation surfaces them as errors instead for callers that want to
// reject rather than silently lower.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scriptward/scriptward/internal/guard"
	"github.com/scriptward/scriptward/internal/model"
)

// UnicodeChecks toggles the pre-scanner's obfuscation detectors.
// Disabling a check never widens any limit.
type UnicodeChecks struct {
	CheckBidi       bool `yaml:"check_bidi"`
	CheckInvisible  bool `yaml:"check_invisible"`
	CheckHomoglyphs bool `yaml:"check_homoglyphs"`
}

// RulesConfig adjusts the AST validator around the level preset.
type RulesConfig struct {
	ReservedPrefixes []string `yaml:"reserved_prefixes"`
	PrefixAllowlist  []string `yaml:"prefix_allowlist"`
	ExtraGlobals     []string `yaml:"extra_globals"`
	DisallowedLoops  []string `yaml:"disallowed_loops"`
}

// GateConfig selects and tunes the risk scorer.
type GateConfig struct {
	Scorer          string  `yaml:"scorer"`
	BlockThreshold  float64 `yaml:"block_threshold"`
	FailMode        string  `yaml:"fail_mode"`
	Endpoint        string  `yaml:"endpoint"`
	APIKeyEnv       string  `yaml:"api_key_env"`
	TimeoutMS       int     `yaml:"timeout_ms"`
	CacheMaxEntries int     `yaml:"cache_max_entries"`
}

// SidecarConfig tunes reference routing. AllowComposites is a pointer
// so an absent key derives from the security level instead of reading
// as false.
type SidecarConfig struct {
	Enabled             bool  `yaml:"enabled"`
	ExtractionThreshold int   `yaml:"extraction_threshold"`
	MaxResolvedSize     int   `yaml:"max_resolved_size"`
	AllowComposites     *bool `yaml:"allow_composites"`
}

// EnclaveConfig bounds a single run.
type EnclaveConfig struct {
	MaxDurationMS int `yaml:"max_duration_ms"`
	MaxSteps      int `yaml:"max_steps"`
}

// Config holds all configurable scriptward parameters.
type Config struct {
	Level     string        `yaml:"level"`
	Limits    guard.Limits  `yaml:"limits"`
	Unicode   UnicodeChecks `yaml:"unicode"`
	Rules     RulesConfig   `yaml:"rules"`
	Gate      GateConfig    `yaml:"gate"`
	Sidecar   SidecarConfig `yaml:"sidecar"`
	Enclave   EnclaveConfig `yaml:"enclave"`
	AuditLog  string        `yaml:"audit_log"`
	HistoryDB string        `yaml:"history_db"`
}

// DefaultConfig returns the built-in configuration: standard level,
// mandatory limits, heuristic scorer failing closed, sidecar on.
func DefaultConfig() *Config {
	return &Config{
		Level:  string(model.LevelStandard),
		Limits: guard.Mandatory(),
		Unicode: UnicodeChecks{
			CheckBidi:       true,
			CheckInvisible:  true,
			CheckHomoglyphs: true,
		},
		Gate: GateConfig{
			Scorer:          "heuristic",
			BlockThreshold:  0.85,
			FailMode:        "closed",
			TimeoutMS:       30000,
			CacheMaxEntries: 256,
		},
		Sidecar: SidecarConfig{
			Enabled:             true,
			ExtractionThreshold: 64 * 1024,
			MaxResolvedSize:     10 * 1024 * 1024,
		},
		Enclave: EnclaveConfig{
			MaxDurationMS: 5000,
			MaxSteps:      100000,
		},
	}
}

// defaultPath is used when no explicit path is given.
func defaultPath() (string, bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(home, ".scriptward", "config.yaml"), true
}

// LoadConfig loads configuration from a YAML file. Empty path falls
// back to ~/.scriptward/config.yaml. Missing file returns defaults.
// Limit overrides are clamped to the mandatory caps.
func LoadConfig(path string) (*Config, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads configuration and returns the SHA-256 of
// the raw bytes on disk as "sha256:<hex>". When defaults are used the
// hash is the SHA-256 of empty input.
func LoadConfigWithHash(path string) (*Config, string, error) {
	if path == "" {
		p, ok := defaultPath()
		if !ok {
			h := sha256.Sum256(nil)
			return DefaultConfig(), "sha256:" + hex.EncodeToString(h[:]), nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			h := sha256.Sum256(nil)
			return DefaultConfig(), "sha256:" + hex.EncodeToString(h[:]), nil
		}
		return nil, "", fmt.Errorf("read config: %w", err)
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	// Start with defaults; YAML overwrites only specified fields.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("parse config: %w", err)
	}
	cfg.Limits = cfg.Limits.Clamp()
	return cfg, hash, nil
}

// Validate reports configuration errors: limit overrides above the
// mandatory caps, unknown enum values, nonsensical thresholds.
func (c *Config) Validate() error {
	switch model.SecurityLevel(c.Level) {
	case model.LevelStandard, model.LevelStrict:
	default:
		return fmt.Errorf("level: unknown security level %q", c.Level)
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	switch c.Gate.Scorer {
	case "", "none", "heuristic", "remote":
	default:
		return fmt.Errorf("gate.scorer: unknown scorer %q", c.Gate.Scorer)
	}
	switch c.Gate.FailMode {
	case "", "open", "closed":
	default:
		return fmt.Errorf("gate.fail_mode: must be open or closed, not %q", c.Gate.FailMode)
	}
	if c.Gate.BlockThreshold < 0 || c.Gate.BlockThreshold > 1 {
		return fmt.Errorf("gate.block_threshold: %v is outside [0,1]", c.Gate.BlockThreshold)
	}
	if c.Gate.Scorer == "remote" && c.Gate.Endpoint == "" {
		return fmt.Errorf("gate.endpoint: required for the remote scorer")
	}
	if c.Sidecar.ExtractionThreshold < 0 {
		return fmt.Errorf("sidecar.extraction_threshold: %d is negative", c.Sidecar.ExtractionThreshold)
	}
	if c.Sidecar.MaxResolvedSize < 0 {
		return fmt.Errorf("sidecar.max_resolved_size: %d is negative", c.Sidecar.MaxResolvedSize)
	}
	if c.Sidecar.MaxResolvedSize > 0 && c.Sidecar.ExtractionThreshold > c.Sidecar.MaxResolvedSize {
		return fmt.Errorf("sidecar: extraction_threshold %d exceeds max_resolved_size %d",
			c.Sidecar.ExtractionThreshold, c.Sidecar.MaxResolvedSize)
	}
	if c.Enclave.MaxDurationMS < 0 {
		return fmt.Errorf("enclave.max_duration_ms: %d is negative", c.Enclave.MaxDurationMS)
	}
	if c.Enclave.MaxSteps < 0 {
		return fmt.Errorf("enclave.max_steps: %d is negative", c.Enclave.MaxSteps)
	}
	return nil
}

// SecurityLevel returns the parsed level; unknown values fail closed.
func (c *Config) SecurityLevel() model.SecurityLevel {
	return model.ParseSecurityLevel(c.Level)
}

// GuardConfig converts the file form into the pre-scanner's config.
func (c *Config) GuardConfig() guard.Config {
	return guard.Config{
		Limits:          c.Limits.Clamp(),
		CheckBidi:       c.Unicode.CheckBidi,
		CheckInvisible:  c.Unicode.CheckInvisible,
		CheckHomoglyphs: c.Unicode.CheckHomoglyphs,
	}
}

// AllowComposites resolves the tri-state composite toggle: explicit
// value if set, otherwise composites ride with the standard level.
func (c *Config) AllowComposites() bool {
	if c.Sidecar.AllowComposites != nil {
		return *c.Sidecar.AllowComposites
	}
	return c.SecurityLevel() == model.LevelStandard
}

// GateTimeout returns the remote scorer timeout as a duration.
func (c *Config) GateTimeout() time.Duration {
	return time.Duration(c.Gate.TimeoutMS) * time.Millisecond
}

// MaxDuration returns the per-run wall clock budget.
func (c *Config) MaxDuration() time.Duration {
	return time.Duration(c.Enclave.MaxDurationMS) * time.Millisecond
}

// DefaultConfigYAML returns a commented YAML template for `scriptward init`.
func DefaultConfigYAML() string {
	return `# scriptward configuration
# Generated by: scriptward init
#
# Pipeline order (cannot be changed):
#   1. Pre-scan: mandatory limits + unicode attack detection
#   2. Validate: AST rules for the configured level
#   3. Score: risk gate (block at/above block_threshold)
#   4. Execute: sandboxed enclave with sidecar references

# Security level: standard | strict
# strict additionally bans while loops and try/catch, and makes catch
# inert at runtime.
level: standard

# Pre-scan limit overrides. Values are clamped to the frozen mandatory
# caps; they can only lower, never raise.
limits:
  max_source_bytes: 262144
  max_line_count: 5000
  max_line_length: 10000
  max_nesting_depth: 64
  max_string_length: 65536
  max_regex_length: 1024
  max_regex_count: 64
  max_total_string_bytes: 524288

# Unicode attack detection. Disabling a check never raises a limit.
unicode:
  check_bidi: true
  check_invisible: true
  check_homoglyphs: true

# Validator adjustments layered on the level preset.
rules:
  # reserved_prefixes: ["__enclave_", "__sidecar_"]
  # prefix_allowlist: ["__enclave_args__"]
  # extra_globals: []
  # disallowed_loops: []

# Risk scoring gate.
gate:
  # scorer: none | heuristic | remote
  scorer: heuristic
  # Scripts scoring at or above this are blocked.
  block_threshold: 0.85
  # When the scorer is unavailable: open (allow) | closed (block).
  fail_mode: closed
  # Remote scorer only:
  # endpoint: https://scorer.internal/v1/score
  # api_key_env: SCRIPTWARD_SCORER_KEY
  timeout_ms: 30000
  cache_max_entries: 256

# Sidecar reference routing for oversized values.
sidecar:
  enabled: true
  extraction_threshold: 65536
  max_resolved_size: 10485760
  # allow_composites defaults to the level: on for standard, off for strict.
  # allow_composites: true

# Per-run execution bounds.
enclave:
  max_duration_ms: 5000
  max_steps: 100000

# Optional sinks (empty disables).
# audit_log: ~/.scriptward/audit.jsonl
# history_db: ~/.scriptward/history.db
audit_log: ""
history_db: ""
`
}
