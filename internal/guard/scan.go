package guard

import (
	"fmt"
	"sort"

	"github.com/scriptward/scriptward/internal/model"
)

// State accumulates issues for one pre-scan pass. It is created by
// Scan, owned by that call, and read-only afterwards.
type State struct {
	issues         []model.Issue
	invisibleCount int
	stopped        bool
}

// Report appends an issue. A fatal issue stops the remaining pipeline.
func (st *State) Report(is model.Issue) {
	st.issues = append(st.issues, is)
	if is.Fatal() {
		st.stopped = true
	}
}

// ShouldStop reports whether a fatal issue has been recorded.
func (st *State) ShouldStop() bool { return st.stopped }

// Issues returns the ordered issue list.
func (st *State) Issues() []model.Issue { return st.issues }

// OK reports whether the source passed with no fatal issue.
func (st *State) OK() bool { return !st.stopped }

// Result converts the state into the shared result shape.
func (st *State) Result() model.Result { return model.ResultFromIssues(st.issues) }

// Scan runs the full pre-scan pipeline over raw source text. The limit
// table is clamped to the mandatory caps first; each later phase is
// skipped once a fatal issue is recorded. Scan is a pure function of
// (source, cfg) apart from the returned state.
func Scan(source string, cfg Config) *State {
	st := &State{}
	limits := cfg.Limits.Clamp()
	lines := indexLines(source)

	st.checkSize(source, limits)
	if st.ShouldStop() {
		return st
	}
	st.checkLines(source, limits, lines)
	if st.ShouldStop() {
		return st
	}
	st.checkStructure(source, limits, lines)
	if st.ShouldStop() {
		return st
	}
	if cfg.CheckBidi {
		st.checkBidi(source, lines)
		if st.ShouldStop() {
			return st
		}
	}
	if cfg.CheckInvisible {
		st.checkInvisible(source, lines)
		if st.ShouldStop() {
			return st
		}
	}
	if cfg.CheckHomoglyphs {
		st.checkHomoglyphs(source, lines)
	}
	return st
}

func (st *State) checkSize(src string, limits Limits) {
	if len(src) > limits.MaxSourceBytes {
		st.Report(model.Issue{
			Code:     model.CodeSourceTooLarge,
			Message:  fmt.Sprintf("source is %d bytes (limit %d)", len(src), limits.MaxSourceBytes),
			Severity: model.SeverityFatal,
			Pos:      model.Position{Line: 1, Column: 1},
			Data:     map[string]any{"bytes": len(src), "limit": limits.MaxSourceBytes},
		})
	}
}

func (st *State) checkLines(src string, limits Limits, lines *lineIndex) {
	if n := lines.count(); n > limits.MaxLineCount {
		st.Report(model.Issue{
			Code:     model.CodeTooManyLines,
			Message:  fmt.Sprintf("source has %d lines (limit %d)", n, limits.MaxLineCount),
			Severity: model.SeverityFatal,
			Pos:      model.Position{Line: 1, Column: 1},
			Data:     map[string]any{"lines": n, "limit": limits.MaxLineCount},
		})
		return
	}
	for i := 0; i < lines.count(); i++ {
		length := lines.lineLen(src, i)
		if length > limits.MaxLineLength {
			st.Report(model.Issue{
				Code:     model.CodeLineTooLong,
				Message:  fmt.Sprintf("line %d is %d bytes (limit %d)", i+1, length, limits.MaxLineLength),
				Severity: model.SeverityFatal,
				Pos:      model.Position{Offset: lines.starts[i], Line: i + 1, Column: 1},
				Data:     map[string]any{"bytes": length, "limit": limits.MaxLineLength},
			})
			return
		}
	}
}

// exprPosition reports whether a byte ends a token after which a "/"
// starts a regex-shaped run rather than a division.
func exprPosition(b byte) bool {
	switch b {
	case 0, '=', '(', '[', '{', ',', ';', ':', '!', '&', '|', '?', '+', '-', '*', '%', '<', '>':
		return true
	}
	return false
}

// checkStructure walks the source once, tracking bracket depth outside
// strings and comments, string literal sizes, and regex-shaped runs.
// The grammar itself has no regex literals; the runs are bounded here
// so a hostile source cannot make the lexer chew through them
// unbounded before rejection.
func (st *State) checkStructure(src string, limits Limits, lines *lineIndex) {
	const (
		stCode = iota
		stLineComment
		stBlockComment
		stString
		stTemplate
		stRegex
	)
	state := stCode
	var quote byte
	depth := 0
	totalStr := 0
	regexCount := 0
	strStart, regexStart := 0, 0
	inClass := false
	var prevSig byte

	endString := func(end int) bool {
		length := end - strStart - 1
		if length > limits.MaxStringLength {
			st.Report(model.Issue{
				Code:     model.CodeStringTooLong,
				Message:  fmt.Sprintf("string literal is %d bytes (limit %d)", length, limits.MaxStringLength),
				Severity: model.SeverityFatal,
				Pos:      lines.posAt(strStart),
				Data:     map[string]any{"bytes": length, "limit": limits.MaxStringLength},
			})
			return false
		}
		totalStr += length
		if totalStr > limits.MaxTotalStringBytes {
			st.Report(model.Issue{
				Code:     model.CodeTotalStringsTooLarge,
				Message:  fmt.Sprintf("string literals total %d bytes (limit %d)", totalStr, limits.MaxTotalStringBytes),
				Severity: model.SeverityFatal,
				Pos:      lines.posAt(strStart),
				Data:     map[string]any{"bytes": totalStr, "limit": limits.MaxTotalStringBytes},
			})
			return false
		}
		return true
	}

	for i := 0; i < len(src); i++ {
		ch := src[i]
		switch state {
		case stCode:
			switch {
			case ch == '/' && i+1 < len(src) && src[i+1] == '/':
				state = stLineComment
				i++
			case ch == '/' && i+1 < len(src) && src[i+1] == '*':
				state = stBlockComment
				i++
			case ch == '/':
				if exprPosition(prevSig) {
					regexCount++
					if regexCount > limits.MaxRegexCount {
						st.Report(model.Issue{
							Code:     model.CodeTooManyRegexes,
							Message:  fmt.Sprintf("source contains more than %d regex-shaped literals", limits.MaxRegexCount),
							Severity: model.SeverityFatal,
							Pos:      lines.posAt(i),
							Data:     map[string]any{"limit": limits.MaxRegexCount},
						})
						return
					}
					state = stRegex
					regexStart = i
					inClass = false
				} else {
					prevSig = '/'
				}
			case ch == '\'' || ch == '"':
				state = stString
				quote = ch
				strStart = i
			case ch == '`':
				state = stTemplate
				strStart = i
			case ch == '(' || ch == '[' || ch == '{':
				depth++
				if depth > limits.MaxNestingDepth {
					st.Report(model.Issue{
						Code:     model.CodeNestingTooDeep,
						Message:  fmt.Sprintf("bracket nesting reaches depth %d (limit %d)", depth, limits.MaxNestingDepth),
						Severity: model.SeverityFatal,
						Pos:      lines.posAt(i),
						Data:     map[string]any{"depth": depth, "limit": limits.MaxNestingDepth},
					})
					return
				}
				prevSig = ch
			case ch == ')' || ch == ']' || ch == '}':
				if depth > 0 {
					depth--
				}
				prevSig = ch
			case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
				// whitespace does not change expression position
			default:
				prevSig = ch
			}
		case stLineComment:
			if ch == '\n' {
				state = stCode
			}
		case stBlockComment:
			if ch == '*' && i+1 < len(src) && src[i+1] == '/' {
				state = stCode
				i++
			}
		case stString:
			switch {
			case ch == '\\':
				i++
			case ch == quote:
				if !endString(i) {
					return
				}
				state = stCode
				prevSig = 'v' // value position
			case ch == '\n':
				// unterminated; the lexer reports it with a position
				state = stCode
			}
		case stTemplate:
			switch {
			case ch == '\\':
				i++
			case ch == '`':
				if !endString(i) {
					return
				}
				state = stCode
				prevSig = 'v'
			}
		case stRegex:
			switch {
			case ch == '\\':
				i++
			case ch == '[':
				inClass = true
			case ch == ']':
				inClass = false
			case ch == '/' && !inClass:
				length := i - regexStart - 1
				if length > limits.MaxRegexLength {
					st.Report(model.Issue{
						Code:     model.CodeRegexTooLong,
						Message:  fmt.Sprintf("regex-shaped literal is %d bytes (limit %d)", length, limits.MaxRegexLength),
						Severity: model.SeverityFatal,
						Pos:      lines.posAt(regexStart),
						Data:     map[string]any{"bytes": length, "limit": limits.MaxRegexLength},
					})
					return
				}
				state = stCode
				prevSig = 'v'
			case ch == '\n':
				// not a regex after all; resume normal scanning
				state = stCode
			}
		}
	}
}

// lineIndex maps byte offsets to 1-based line/column positions.
type lineIndex struct {
	starts []int
}

func indexLines(src string) *lineIndex {
	idx := &lineIndex{starts: []int{0}}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' && i+1 < len(src) {
			idx.starts = append(idx.starts, i+1)
		}
	}
	return idx
}

func (li *lineIndex) count() int { return len(li.starts) }

func (li *lineIndex) lineLen(src string, i int) int {
	start := li.starts[i]
	end := len(src)
	if i+1 < len(li.starts) {
		end = li.starts[i+1] - 1 // exclude the newline
	} else if end > start && src[end-1] == '\n' {
		end--
	}
	return end - start
}

func (li *lineIndex) posAt(offset int) model.Position {
	i := sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > offset }) - 1
	if i < 0 {
		i = 0
	}
	return model.Position{Offset: offset, Line: i + 1, Column: offset - li.starts[i] + 1}
}
