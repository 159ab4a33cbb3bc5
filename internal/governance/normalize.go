package governance

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var legalSuffixes = []string{"Inc", "LLC", "Ltd", "Limited", "Corp", "Corporation", "GmbH", "Co", "Pty"}

// NormalizeName strips one trailing legal-entity suffix and trims whitespace.
//
// A suffix only counts when it is preceded by at least one separator
// (whitespace, comma or period) and sits at the very end of the name,
// optionally followed by a single period. The whole separator run is removed
// together with the suffix.
func NormalizeName(raw string) string {
	return trimSpace(stripLegalSuffix(raw))
}

func stripLegalSuffix(name string) string {
	if strings.HasSuffix(name, ".") {
		if cut, ok := suffixStart(name, len(name)-1); ok {
			return name[:cut]
		}
	}
	if cut, ok := suffixStart(name, len(name)); ok {
		return name[:cut]
	}
	return name
}

// suffixStart reports where the separator run before a suffix ending at end begins.
func suffixStart(name string, end int) (int, bool) {
	for _, token := range legalSuffixes {
		start := end - len(token)
		if start <= 0 || !strings.EqualFold(name[start:end], token) {
			continue
		}

		i := start
		for i > 0 {
			r, size := utf8.DecodeLastRuneInString(name[:i])
			if !isSeparator(r) {
				break
			}
			i -= size
		}
		if i < start {
			return i, true
		}
	}
	return 0, false
}

func isSeparator(r rune) bool {
	return r == ',' || r == '.' || isSpace(r)
}

// isSpace matches unicode.IsSpace without NEL (U+0085), plus the byte order mark.
func isSpace(r rune) bool {
	if r == '\u0085' {
		return false
	}
	return unicode.IsSpace(r) || r == '\uFEFF'
}

func trimSpace(s string) string {
	return strings.TrimFunc(s, isSpace)
}
