// Package signals derives the contextual evidence attached to each raw
// occurrence before disambiguation: headline position, nearby
// administrative-role cues and the state mentioned in the surrounding
// sentence.
package signals

import (
	"sort"
	"strings"

	"github.com/farol-news/sentinela-geo/internal/model"
	"github.com/farol-news/sentinela-geo/internal/textnorm"
)

const (
	// TitleBoost is added to the match score for headline occurrences.
	TitleBoost = 0.4
	// AdminBoost is added when a governance role keyword appears near the
	// occurrence.
	AdminBoost = 0.6
	// adminWindow is counted in normalized characters on each side of the
	// occurrence span.
	adminWindow = 48
)

// adminKeywords are normalized role titles that mark the surrounding text as
// discussing municipal or state government.
var adminKeywords = []string{
	"prefeito", "prefeita",
	"governador", "governadora",
	"vereador", "vereadora",
	"secretario", "secretaria",
}

// Derive computes the signal triple for occ against the full text of the
// field it was found in, and folds the boosts into the occurrence score.
// Deriving twice from the same inputs yields identical values; the score is
// recomputed from the base match score, never compounded.
func Derive(occ *model.Occurrence, fieldText string) {
	normalized, offsets := textnorm.NormalizeWithOffsets(fieldText)

	sig := model.Signals{}
	if occ.Field == model.FieldTitle {
		sig.TitleBoost = TitleBoost
	}
	sig.AdminMarker = hasAdminKeyword(normalized, offsets, occ.Start, occ.End)

	sentence := textnorm.SentenceContaining(fieldText, occ.Start)
	if mentions := textnorm.StateMentions(sentence); len(mentions) > 0 {
		sig.ContextState = mentions[0]
		sig.ContextStates = mentions
	}

	// Undo boosts from a previous derivation so the adjustment never
	// compounds; the base match score is whatever remains.
	base := occ.Score - occ.Signals.TitleBoost
	if occ.Signals.AdminMarker {
		base -= AdminBoost
	}

	occ.Signals = sig
	occ.Score = adjust(base, sig)
}

// hasAdminKeyword scans a window of normalized text around the occurrence
// span, given in original rune offsets.
func hasAdminKeyword(normalized string, offsets []int, start, end int) bool {
	normStart := sort.SearchInts(offsets, start)
	normEnd := sort.SearchInts(offsets, end)

	runes := []rune(normalized)
	windowStart := normStart - adminWindow
	if windowStart < 0 {
		windowStart = 0
	}
	windowEnd := normEnd + adminWindow
	if windowEnd > len(runes) {
		windowEnd = len(runes)
	}
	if windowStart >= windowEnd {
		return false
	}

	window := string(runes[windowStart:windowEnd])
	for _, keyword := range adminKeywords {
		if strings.Contains(window, keyword) {
			return true
		}
	}
	return false
}

func adjust(score float64, sig model.Signals) float64 {
	score += sig.TitleBoost
	if sig.AdminMarker {
		score += AdminBoost
	}
	if score < 0 {
		return 0
	}
	return score
}
