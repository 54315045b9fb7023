package guard

import (
	"fmt"

	"github.com/scriptward/scriptward/internal/model"
)

// bidiControls are the bidirectional formatting characters used in
// Trojan Source attacks: displayed code differs from executed code.
var bidiControls = map[rune]string{
	0x061C: "ARABIC LETTER MARK",
	0x200E: "LEFT-TO-RIGHT MARK",
	0x200F: "RIGHT-TO-LEFT MARK",
	0x202A: "LEFT-TO-RIGHT EMBEDDING",
	0x202B: "RIGHT-TO-LEFT EMBEDDING",
	0x202C: "POP DIRECTIONAL FORMATTING",
	0x202D: "LEFT-TO-RIGHT OVERRIDE",
	0x202E: "RIGHT-TO-LEFT OVERRIDE",
	0x2066: "LEFT-TO-RIGHT ISOLATE",
	0x2067: "RIGHT-TO-LEFT ISOLATE",
	0x2068: "FIRST STRONG ISOLATE",
	0x2069: "POP DIRECTIONAL ISOLATE",
}

// invisibleChars render as nothing (or near nothing) in editors and
// diffs. A few are benign in isolation; repeated occurrences indicate
// a steganographic payload.
var invisibleChars = map[rune]string{
	0x00AD: "SOFT HYPHEN",
	0x034F: "COMBINING GRAPHEME JOINER",
	0x115F: "HANGUL CHOSEONG FILLER",
	0x1160: "HANGUL JUNGSEONG FILLER",
	0x180E: "MONGOLIAN VOWEL SEPARATOR",
	0x200B: "ZERO WIDTH SPACE",
	0x200C: "ZERO WIDTH NON-JOINER",
	0x200D: "ZERO WIDTH JOINER",
	0x2060: "WORD JOINER",
	0x2061: "FUNCTION APPLICATION",
	0x2062: "INVISIBLE TIMES",
	0x2063: "INVISIBLE SEPARATOR",
	0x2064: "INVISIBLE PLUS",
	0x3164: "HANGUL FILLER",
	0xFEFF: "ZERO WIDTH NO-BREAK SPACE",
	0xFFA0: "HALFWIDTH HANGUL FILLER",
}

// confusables maps curated Cyrillic and Greek lookalikes to the ASCII
// letter they impersonate. Full-width forms are handled by range in
// confusableOf.
var confusables = map[rune]byte{
	// Cyrillic lowercase
	0x0430: 'a', 0x0435: 'e', 0x043E: 'o', 0x0440: 'p', 0x0441: 'c',
	0x0443: 'y', 0x0445: 'x', 0x0455: 's', 0x0456: 'i', 0x0458: 'j',
	// Cyrillic uppercase
	0x0410: 'A', 0x0412: 'B', 0x0415: 'E', 0x041A: 'K', 0x041C: 'M',
	0x041D: 'H', 0x041E: 'O', 0x0420: 'P', 0x0421: 'C', 0x0422: 'T',
	0x0425: 'X',
	// Greek lowercase
	0x03BF: 'o', 0x03BD: 'v', 0x03B1: 'a',
	// Greek uppercase
	0x0391: 'A', 0x0392: 'B', 0x0395: 'E', 0x0396: 'Z', 0x0397: 'H',
	0x0399: 'I', 0x039A: 'K', 0x039C: 'M', 0x039D: 'N', 0x039F: 'O',
	0x03A1: 'P', 0x03A4: 'T', 0x03A5: 'Y', 0x03A7: 'X',
}

// confusableOf returns the ASCII character r impersonates, or 0.
func confusableOf(r rune) byte {
	if c, ok := confusables[r]; ok {
		return c
	}
	// Full-width ASCII block
	if r >= 0xFF01 && r <= 0xFF5E {
		return byte(r - 0xFEE0)
	}
	return 0
}

// invisibleWarnLimit is how many invisible characters are reported as
// warnings before the scan escalates to a fatal issue.
const invisibleWarnLimit = 3

// checkBidi reports a fatal issue for the first bidirectional control
// character found anywhere in the source, including inside strings and
// comments, and halts further unicode scanning.
func (st *State) checkBidi(src string, lines *lineIndex) {
	for i, r := range src {
		name, ok := bidiControls[r]
		if !ok {
			continue
		}
		st.Report(model.Issue{
			Code:     model.CodeBidiAttack,
			Message:  fmt.Sprintf("bidirectional control character %s (U+%04X): possible Trojan Source attack", name, r),
			Severity: model.SeverityFatal,
			Pos:      lines.posAt(i),
			Data:     map[string]any{"codepoint": fmt.Sprintf("U+%04X", r), "name": name},
		})
		return
	}
}

// checkInvisible tolerates a single leading BOM, warns on up to
// invisibleWarnLimit invisible characters, and escalates to fatal on
// the first occurrence beyond that.
func (st *State) checkInvisible(src string, lines *lineIndex) {
	for i, r := range src {
		name, ok := invisibleChars[r]
		if !ok {
			continue
		}
		if i == 0 && r == 0xFEFF {
			continue // leading BOM
		}
		st.invisibleCount++
		if st.invisibleCount > invisibleWarnLimit {
			st.Report(model.Issue{
				Code:     model.CodeExcessiveInvisible,
				Message:  fmt.Sprintf("more than %d invisible characters: possible steganographic payload", invisibleWarnLimit),
				Severity: model.SeverityFatal,
				Pos:      lines.posAt(i),
				Data:     map[string]any{"limit": invisibleWarnLimit},
			})
			return
		}
		st.Report(model.Issue{
			Code:     model.CodeInvisibleChar,
			Message:  fmt.Sprintf("invisible character %s (U+%04X)", name, r),
			Severity: model.SeverityWarning,
			Pos:      lines.posAt(i),
			Data:     map[string]any{"codepoint": fmt.Sprintf("U+%04X", r), "name": name},
		})
	}
}

// checkHomoglyphs reports a fatal issue for the first confusable
// lookalike character found.
func (st *State) checkHomoglyphs(src string, lines *lineIndex) {
	for i, r := range src {
		ascii := confusableOf(r)
		if ascii == 0 {
			continue
		}
		st.Report(model.Issue{
			Code:     model.CodeHomographAttack,
			Message:  fmt.Sprintf("character %q (U+%04X) is a lookalike of %q: possible homograph attack", r, r, rune(ascii)),
			Severity: model.SeverityFatal,
			Pos:      lines.posAt(i),
			Data:     map[string]any{"codepoint": fmt.Sprintf("U+%04X", r), "ascii": string(ascii)},
		})
		return
	}
}
