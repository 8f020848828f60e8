package matcher

import (
	"sort"
	"unicode"

	"go.uber.org/zap"

	"github.com/farol-news/sentinela-geo/internal/gazetteer"
	"github.com/farol-news/sentinela-geo/internal/model"
	"github.com/farol-news/sentinela-geo/internal/textnorm"
)

// Matcher scans article text for municipality names. Every canonical name
// and alternate name from the catalog is inserted in normalized form, so the
// scan is accent and case insensitive while spans still point into the
// original text.
type Matcher struct {
	automaton *automaton
	logger    *zap.Logger
}

// New builds a Matcher from a catalog payload. Building is a one-time cost
// per catalog version; the result is safe for concurrent use.
func New(payload *gazetteer.Payload) *Matcher {
	a := newAutomaton()
	total := 0
	for i := range payload.Data {
		record := &payload.Data[i]
		for _, variant := range record.Variants() {
			key := textnorm.Fold(variant)
			if key == "" {
				continue
			}
			a.insert(keyword{
				key:       key,
				length:    len([]rune(key)),
				cityID:    record.ID,
				name:      record.Name,
				stateCode: record.StateCode,
			})
			total++
		}
	}
	a.build()

	logger := zap.L().With(zap.String("component", "matcher"))
	logger.Debug("automaton built",
		zap.Int("records", len(payload.Data)),
		zap.Int("keys", total),
		zap.Int("nodes", len(a.nodes)))

	return &Matcher{automaton: a, logger: logger}
}

// FindMatches returns every catalog name occurring in text on word
// boundaries. Spans are rune offsets into the original text, sorted by
// (start, end). A surface shared by several municipalities yields one
// occurrence per municipality over the same span.
func (m *Matcher) FindMatches(text string) []model.Occurrence {
	normalized, offsets := textnorm.NormalizeWithOffsets(text)
	normRunes := []rune(normalized)
	origRunes := []rune(text)

	hits := m.automaton.scan(normRunes)

	var occurrences []model.Occurrence
	for _, h := range hits {
		if !onWordBoundary(normRunes, h.start, h.end) {
			continue
		}
		start := offsets[h.start]
		end := offsets[h.end-1] + 1
		kw := m.automaton.keywords[h.keywordID]
		occurrences = append(occurrences, model.Occurrence{
			CityID:    kw.cityID,
			Name:      kw.name,
			StateCode: kw.stateCode,
			Surface:   string(origRunes[start:end]),
			Start:     start,
			End:       end,
			Method:    model.MethodAutomaton,
			Score:     1.0,
		})
	}

	sort.SliceStable(occurrences, func(i, j int) bool {
		if occurrences[i].Start != occurrences[j].Start {
			return occurrences[i].Start < occurrences[j].Start
		}
		if occurrences[i].End != occurrences[j].End {
			return occurrences[i].End < occurrences[j].End
		}
		return occurrences[i].CityID < occurrences[j].CityID
	})
	return occurrences
}

// onWordBoundary rejects matches embedded in a longer word, so "natal" does
// not fire inside "natalino".
func onWordBoundary(runes []rune, start, end int) bool {
	if start > 0 && isWordRune(runes[start-1]) {
		return false
	}
	if end < len(runes) && isWordRune(runes[end]) {
		return false
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
