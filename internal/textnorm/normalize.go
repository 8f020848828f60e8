// Package textnorm provides offset-preserving text normalization for
// dictionary matching over Brazilian Portuguese news text.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var hyphenVariants = map[rune]bool{
	'-':      true,
	'‐': true, // hyphen
	'‑': true, // non-breaking hyphen
	'‒': true, // figure dash
	'–': true, // en dash
	'—': true, // em dash
	'―': true, // horizontal bar
}

// droppedRunes contribute no normalized output and no offset entry.
var droppedRunes = map[rune]bool{
	'\u00AD': true, // soft hyphen
	'\u200B': true, // zero-width space
	'\u200C': true, // zero-width non-joiner
	'\u200D': true, // zero-width joiner
	'\uFEFF': true, // zero-width no-break space
}

// foldRune lowercases a rune, strips combining marks via NFKD decomposition
// and maps hyphen variants to a single space. Multi-rune expansions all share
// the source rune's offset.
func foldRune(r rune) []rune {
	if hyphenVariants[r] {
		return []rune{' '}
	}
	if droppedRunes[r] {
		return nil
	}

	decomposed := norm.NFKD.String(string(r))
	out := make([]rune, 0, len(decomposed))
	for _, c := range decomposed {
		if unicode.Is(unicode.Mn, c) {
			continue
		}
		out = append(out, unicode.ToLower(c))
	}
	return out
}

// NormalizeWithOffsets returns a normalized version of text plus a map back
// to original rune offsets. The result is lowercased, accent-stripped and has
// hyphen variants converted to plain spaces so hyphenated names still break
// on word boundaries. offsets[i] holds the index (in runes) of the original
// character that produced normalized[i], so matches found on the normalized
// text can be sliced losslessly out of the original.
func NormalizeWithOffsets(text string) (string, []int) {
	var sb strings.Builder
	offsets := make([]int, 0, len(text))

	for index, r := range []rune(text) {
		for _, folded := range foldRune(r) {
			sb.WriteRune(folded)
			offsets = append(offsets, index)
		}
	}
	return sb.String(), offsets
}

// Fold returns the normalized form of text without offset tracking. Used for
// building lookup keys where positions do not matter.
func Fold(text string) string {
	folded, _ := NormalizeWithOffsets(text)
	return strings.Join(strings.Fields(folded), " ")
}

// boilerplate line prefixes stripped from scraped article bodies.
var boilerplatePrefixes = []string{
	"leia também",
	"leia ainda",
	"crédito:",
	"reportagem:",
	"foto:",
}

// CleanArticleText removes boilerplate lines and collapses whitespace. It is
// applied to scraped bodies before extraction; offsets are not preserved.
func CleanArticleText(text string) string {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		skip := false
		for _, prefix := range boilerplatePrefixes {
			if strings.HasPrefix(lower, prefix) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(strings.Fields(strings.Join(lines, "\n")), " ")
}
