package synth

import "strings"

// Sanitize replaces everything outside printable Latin (U+0020-U+007E,
// U+00A0-U+017F) with spaces, collapses whitespace and trims.
func Sanitize(text string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 0x20 && r <= 0x7E, r >= 0xA0 && r <= 0x17F:
			return r
		default:
			return ' '
		}
	}, text)
	return strings.Join(strings.Fields(clean), " ")
}

// Truncate cuts text to at most limit runes and trims trailing space.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit]))
}
