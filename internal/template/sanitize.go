package template

import (
	"strings"
	"unicode"
)

// maxFieldLength caps any single substituted field. Club names and rejection
// reasons come from free-text form inputs.
const maxFieldLength = 500

// Sanitize normalizes a free-text field before template substitution:
// control characters are dropped, runs of spaces and tabs collapse to one
// space, and the value is capped at maxFieldLength runes. Line breaks
// survive so a multi-line rejection reason keeps its paragraphs: a run
// containing one newline becomes "\n", two or more become "\n\n". It does
// not escape markup; the post-render Validate pass rejects anything that
// still looks like an injection vector.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(s))

	pendingSpace := false
	pendingNewlines := 0
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			pendingNewlines++
		case unicode.IsSpace(r):
			pendingSpace = true
		case unicode.IsControl(r):
			// dropped
		default:
			switch {
			case pendingNewlines >= 2:
				b.WriteString("\n\n")
			case pendingNewlines == 1:
				b.WriteByte('\n')
			case pendingSpace:
				b.WriteByte(' ')
			}
			pendingSpace = false
			pendingNewlines = 0
			b.WriteRune(r)
		}
	}

	out := strings.TrimSpace(b.String())

	runes := []rune(out)
	if len(runes) > maxFieldLength {
		out = string(runes[:maxFieldLength])
	}

	return out
}
