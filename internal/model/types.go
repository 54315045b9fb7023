package model

// SecurityLevel selects the policy bundle applied to a script run.
type SecurityLevel string

const (
	LevelStandard SecurityLevel = "standard"
	LevelStrict   SecurityLevel = "strict"
)

// ParseSecurityLevel maps a string to a SecurityLevel.
// Unknown values fail closed to LevelStrict.
func ParseSecurityLevel(s string) SecurityLevel {
	switch SecurityLevel(s) {
	case LevelStandard:
		return LevelStandard
	case LevelStrict:
		return LevelStrict
	default:
		return LevelStrict
	}
}

// Severity classifies how an issue affects the verdict.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityFatal   Severity = "fatal"
)

// RiskLevel buckets a semantic risk score for reporting.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelFromScore buckets a 0..1 score into quartiles.
func RiskLevelFromScore(score float64) RiskLevel {
	switch {
	case score < 0.25:
		return RiskLow
	case score < 0.5:
		return RiskMedium
	case score < 0.75:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// Stage identifies which pipeline layer produced a decision.
type Stage string

const (
	StagePreScan  Stage = "pre_scan"
	StageValidate Stage = "validate"
	StageScore    Stage = "score"
	StageExecute  Stage = "execute"
)

// Position locates a byte in source text. Line and Column are 1-based,
// Offset is 0-based. The zero value means "no position".
type Position struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Valid reports whether the position points at real source text.
func (p Position) Valid() bool { return p.Line > 0 }

// Issue codes reported by the pre-scanner and the validator. These are
// stable API: callers branch on them and audit records store them.
const (
	CodeSourceTooLarge       = "SOURCE_TOO_LARGE"
	CodeTooManyLines         = "TOO_MANY_LINES"
	CodeLineTooLong          = "LINE_TOO_LONG"
	CodeNestingTooDeep       = "NESTING_TOO_DEEP"
	CodeStringTooLong        = "STRING_TOO_LONG"
	CodeTotalStringsTooLarge = "TOTAL_STRINGS_TOO_LARGE"
	CodeRegexTooLong         = "REGEX_TOO_LONG"
	CodeTooManyRegexes       = "TOO_MANY_REGEXES"
	CodeBidiAttack           = "BIDI_ATTACK"
	CodeInvisibleChar        = "INVISIBLE_CHAR"
	CodeExcessiveInvisible   = "EXCESSIVE_INVISIBLE"
	CodeHomographAttack      = "HOMOGRAPH_ATTACK"

	CodeComputedDestructuring = "NO_COMPUTED_DESTRUCTURING"
	CodeReservedPrefixDecl    = "RESERVED_PREFIX_DECL"
	CodeReservedPrefixAssign  = "RESERVED_PREFIX_ASSIGN"
	CodeReservedPrefixMember  = "RESERVED_PREFIX_MEMBER"
	CodeDisallowedGlobal      = "DISALLOWED_GLOBAL"
	CodeDisallowedLoop        = "DISALLOWED_LOOP"
	CodeNoTryCatch            = "NO_TRY_CATCH"
	CodeParseError            = "PARSE_ERROR"
)

// Issue is one structured finding from the pre-scanner or the validator.
// Code is stable and suitable for programmatic branching; Message is for
// humans. End is the zero Position for point issues.
type Issue struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Severity Severity       `json:"severity"`
	Pos      Position       `json:"pos"`
	End      Position       `json:"end,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Fatal reports whether the issue alone makes the source invalid.
func (i Issue) Fatal() bool { return i.Severity == SeverityFatal }

// Result aggregates issues from one validation pass.
// Valid is true iff no fatal issue was reported.
type Result struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

// ResultFromIssues derives the verdict from an issue list.
func ResultFromIssues(issues []Issue) Result {
	r := Result{Valid: true, Issues: issues}
	for _, is := range issues {
		if is.Fatal() {
			r.Valid = false
			break
		}
	}
	return r
}

// IssueCodes returns the distinct codes present, in first-seen order.
func (r Result) IssueCodes() []string {
	seen := make(map[string]bool, len(r.Issues))
	var codes []string
	for _, is := range r.Issues {
		if !seen[is.Code] {
			seen[is.Code] = true
			codes = append(codes, is.Code)
		}
	}
	return codes
}
