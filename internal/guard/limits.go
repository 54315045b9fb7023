// Package guard is the text-level pre-scanner. It bounds the worst-case
// cost of parsing and detects Unicode obfuscation (Trojan Source, zero
// width payloads, homograph identifiers) before any parser touches the
// source.
package guard

import (
	"fmt"
	"strings"
)

// Limits bounds the raw-text cost of a script. All values are byte or
// count caps; zero means "use the mandatory cap".
type Limits struct {
	MaxSourceBytes      int `yaml:"max_source_bytes" json:"max_source_bytes"`
	MaxLineCount        int `yaml:"max_line_count" json:"max_line_count"`
	MaxLineLength       int `yaml:"max_line_length" json:"max_line_length"`
	MaxNestingDepth     int `yaml:"max_nesting_depth" json:"max_nesting_depth"`
	MaxStringLength     int `yaml:"max_string_length" json:"max_string_length"`
	MaxRegexLength      int `yaml:"max_regex_length" json:"max_regex_length"`
	MaxRegexCount       int `yaml:"max_regex_count" json:"max_regex_count"`
	MaxTotalStringBytes int `yaml:"max_total_string_bytes" json:"max_total_string_bytes"`
}

// Mandatory returns the frozen ceiling. These caps cannot be disabled
// or raised: every configuration path clamps or rejects against them.
func Mandatory() Limits {
	return Limits{
		MaxSourceBytes:      256 * 1024,
		MaxLineCount:        5000,
		MaxLineLength:       10000,
		MaxNestingDepth:     64,
		MaxStringLength:     64 * 1024,
		MaxRegexLength:      1024,
		MaxRegexCount:       64,
		MaxTotalStringBytes: 512 * 1024,
	}
}

// Clamp returns a copy with every field lowered to its mandatory cap.
// Unset (zero or negative) fields take the cap. Clamp never errors;
// use Validate where a misconfiguration should be surfaced instead.
func (l Limits) Clamp() Limits {
	m := Mandatory()
	clamp := func(v, hi int) int {
		if v <= 0 || v > hi {
			return hi
		}
		return v
	}
	return Limits{
		MaxSourceBytes:      clamp(l.MaxSourceBytes, m.MaxSourceBytes),
		MaxLineCount:        clamp(l.MaxLineCount, m.MaxLineCount),
		MaxLineLength:       clamp(l.MaxLineLength, m.MaxLineLength),
		MaxNestingDepth:     clamp(l.MaxNestingDepth, m.MaxNestingDepth),
		MaxStringLength:     clamp(l.MaxStringLength, m.MaxStringLength),
		MaxRegexLength:      clamp(l.MaxRegexLength, m.MaxRegexLength),
		MaxRegexCount:       clamp(l.MaxRegexCount, m.MaxRegexCount),
		MaxTotalStringBytes: clamp(l.MaxTotalStringBytes, m.MaxTotalStringBytes),
	}
}

// Validate returns an error naming every field that exceeds its
// mandatory cap or is negative. Zero fields are treated as unset.
func (l Limits) Validate() error {
	m := Mandatory()
	var bad []string
	check := func(name string, v, hi int) {
		if v < 0 {
			bad = append(bad, fmt.Sprintf("%s (%d is negative)", name, v))
		} else if v > hi {
			bad = append(bad, fmt.Sprintf("%s (%d > %d)", name, v, hi))
		}
	}
	check("max_source_bytes", l.MaxSourceBytes, m.MaxSourceBytes)
	check("max_line_count", l.MaxLineCount, m.MaxLineCount)
	check("max_line_length", l.MaxLineLength, m.MaxLineLength)
	check("max_nesting_depth", l.MaxNestingDepth, m.MaxNestingDepth)
	check("max_string_length", l.MaxStringLength, m.MaxStringLength)
	check("max_regex_length", l.MaxRegexLength, m.MaxRegexLength)
	check("max_regex_count", l.MaxRegexCount, m.MaxRegexCount)
	check("max_total_string_bytes", l.MaxTotalStringBytes, m.MaxTotalStringBytes)
	if len(bad) > 0 {
		return fmt.Errorf("limits exceed mandatory caps: %s", strings.Join(bad, ", "))
	}
	return nil
}

// Config controls one pre-scan pass. The limit table is always clamped
// before use; the unicode toggles only disable detection, they cannot
// widen any limit.
type Config struct {
	Limits          Limits `yaml:"limits" json:"limits"`
	CheckBidi       bool   `yaml:"check_bidi" json:"check_bidi"`
	CheckInvisible  bool   `yaml:"check_invisible" json:"check_invisible"`
	CheckHomoglyphs bool   `yaml:"check_homoglyphs" json:"check_homoglyphs"`
}

// DefaultConfig enables every check at the mandatory limits.
func DefaultConfig() Config {
	return Config{
		Limits:          Mandatory(),
		CheckBidi:       true,
		CheckInvisible:  true,
		CheckHomoglyphs: true,
	}
}
