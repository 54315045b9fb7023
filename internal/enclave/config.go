package enclave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scriptward/scriptward/internal/model"
)

// ToolFunc is the sole bridge to the host's tool dispatch. The enclave
// never reaches a registry or transport directly.
type ToolFunc func(ctx context.Context, name string, args map[string]any) (any, error)

// Defaults applied by New for zero-valued Config fields.
const (
	DefaultExtractionThreshold = 64 * 1024
	DefaultMaxResolvedSize     = 10 * 1024 * 1024
	DefaultMaxDuration         = 5 * time.Second
	DefaultMaxSteps            = 100_000
)

// SidecarConfig governs the reference-passing layer of one enclave.
type SidecarConfig struct {
	Enabled             bool
	ExtractionThreshold int
	MaxResolvedSize     int
	AllowComposites     bool
}

// DefaultSidecar returns the sidecar policy for a security level.
// Composites stay disabled under strict, so concatenating a reference
// fails instead of assembling large values step by step.
func DefaultSidecar(level model.SecurityLevel) SidecarConfig {
	return SidecarConfig{
		Enabled:             true,
		ExtractionThreshold: DefaultExtractionThreshold,
		MaxResolvedSize:     DefaultMaxResolvedSize,
		AllowComposites:     level == model.LevelStandard,
	}
}

// Config assembles one enclave instance.
type Config struct {
	Level       model.SecurityLevel
	Tools       ToolFunc
	Sidecar     SidecarConfig
	MaxDuration time.Duration
	MaxSteps    int
	Params      map[string]any
}

func (c *Config) applyDefaults() {
	if c.Level == "" {
		c.Level = model.LevelStrict
	}
	if c.MaxDuration == 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.Sidecar.Enabled {
		if c.Sidecar.ExtractionThreshold == 0 {
			c.Sidecar.ExtractionThreshold = DefaultExtractionThreshold
		}
		if c.Sidecar.MaxResolvedSize == 0 {
			c.Sidecar.MaxResolvedSize = DefaultMaxResolvedSize
		}
	}
}

func (c *Config) validate() error {
	switch c.Level {
	case model.LevelStandard, model.LevelStrict:
	default:
		return fmt.Errorf("enclave: unknown security level %q", c.Level)
	}
	if c.Sidecar.Enabled && c.Tools == nil {
		return errors.New("enclave: tool handler required when sidecar routing is enabled")
	}
	if c.Sidecar.Enabled && c.Sidecar.ExtractionThreshold < 0 {
		return fmt.Errorf("enclave: extraction threshold %d is negative", c.Sidecar.ExtractionThreshold)
	}
	if c.Sidecar.MaxResolvedSize < 0 {
		return fmt.Errorf("enclave: max resolved size %d is negative", c.Sidecar.MaxResolvedSize)
	}
	if c.Sidecar.Enabled && c.Sidecar.MaxResolvedSize > 0 &&
		c.Sidecar.ExtractionThreshold > c.Sidecar.MaxResolvedSize {
		return fmt.Errorf("enclave: extraction threshold %d exceeds max resolved size %d",
			c.Sidecar.ExtractionThreshold, c.Sidecar.MaxResolvedSize)
	}
	if c.MaxDuration < 0 {
		return fmt.Errorf("enclave: max duration %s is negative", c.MaxDuration)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("enclave: max steps %d is negative", c.MaxSteps)
	}
	return nil
}
