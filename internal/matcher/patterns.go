package matcher

import (
	"regexp"
	"sort"

	"github.com/farol-news/sentinela-geo/internal/model"
	"github.com/farol-news/sentinela-geo/internal/textnorm"
)

// Pattern matches run on the original text, so they can exploit casing and
// punctuation the normalized automaton pass throws away. They carry a lower
// score than automaton matches because the captured name is not guaranteed
// to be a catalog entry.
var (
	// "Natal - RN", "Natal/RN"
	cityStatePattern = regexp.MustCompile(`\b(\p{Lu}[\p{L}]*(?:[ '-]\p{Lu}[\p{L}]*|[ ](?:de|da|do|das|dos)\b)*)\s*[-/]\s*([A-Z]{2})\b`)

	// "prefeito de Natal", "prefeita da cidade de Natal". The cue phrase is
	// case insensitive but the captured name must keep title casing, so the
	// (?i:) group stays out of the capture.
	mayorPattern = regexp.MustCompile(`\b(?i:prefeit[oa]s?\s+d[aeo]\s+(?:cidade\s+de\s+)?)(\p{Lu}[\p{L}]*(?:[ '-]\p{Lu}[\p{L}]*|[ ](?:de|da|do|das|dos)[ ]\p{Lu}[\p{L}]*)*)`)

	// "município de Natal"
	municipalityPattern = regexp.MustCompile(`\b(?i:munic[íi]pios?\s+de\s+)(\p{Lu}[\p{L}]*(?:[ '-]\p{Lu}[\p{L}]*|[ ](?:de|da|do|das|dos)[ ]\p{Lu}[\p{L}]*)*)`)
)

const patternScore = 0.9

// PatternMatches extracts mentions cued by surrounding syntax rather than
// catalog membership. Spans cover the captured name only, as rune offsets
// into text, sorted by (start, end).
func PatternMatches(text string) []model.Occurrence {
	var occurrences []model.Occurrence

	for _, m := range cityStatePattern.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		state := text[m[4]:m[5]]
		occ := patternOccurrence(text, name, m[2], m[3])
		if textnorm.ValidStateCode(state) {
			occ.StateHint = state
		}
		occurrences = append(occurrences, occ)
	}

	for _, pattern := range []*regexp.Regexp{mayorPattern, municipalityPattern} {
		for _, m := range pattern.FindAllStringSubmatchIndex(text, -1) {
			name := text[m[2]:m[3]]
			occurrences = append(occurrences, patternOccurrence(text, name, m[2], m[3]))
		}
	}

	sort.SliceStable(occurrences, func(i, j int) bool {
		if occurrences[i].Start != occurrences[j].Start {
			return occurrences[i].Start < occurrences[j].Start
		}
		return occurrences[i].End < occurrences[j].End
	})
	return occurrences
}

func patternOccurrence(text, name string, byteStart, byteEnd int) model.Occurrence {
	return model.Occurrence{
		Name:    name,
		Surface: name,
		Start:   runeOffset(text, byteStart),
		End:     runeOffset(text, byteEnd),
		Method:  model.MethodPattern,
		Score:   patternScore,
	}
}

func runeOffset(text string, byteOffset int) int {
	return len([]rune(text[:byteOffset]))
}
