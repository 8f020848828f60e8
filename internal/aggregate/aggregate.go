// Package aggregate consolidates an article's resolved occurrences into
// per-city totals and picks the single primary city through a deterministic
// tie-break cascade.
package aggregate

import (
	"math"
	"sort"

	"github.com/farol-news/sentinela-geo/internal/gazetteer"
	"github.com/farol-news/sentinela-geo/internal/model"
)

const (
	// ContextMatchBonus is added when an occurrence's context state agrees
	// with the city it resolved to.
	ContextMatchBonus = 0.3
	// ContextMismatchPenalty is subtracted when the context names a
	// different state; the adjusted value never goes below zero.
	ContextMismatchPenalty = 0.7

	tolerance = 1e-6
)

// Result is the consolidated view of one article's occurrences.
type Result struct {
	Primary    *model.AggregatedCity
	Mentioned  []model.AggregatedCity
	Suppressed []model.Suppression
}

// Consolidate groups resolved occurrences by city, applies the context
// bonus/penalty per occurrence, sorts the groups, and runs primary-city
// selection. Occurrences without a resolved city id are reported as
// unresolved suppressions instead of being grouped. The result depends only
// on the multiset of occurrences, never on their order.
func Consolidate(occurrences []model.Occurrence, index *gazetteer.Index) Result {
	groups := make(map[string]*model.AggregatedCity)
	var order []string

	for _, occ := range occurrences {
		if occ.CityID == "" {
			continue
		}

		group, ok := groups[occ.CityID]
		if !ok {
			group = newGroup(occ, index)
			groups[occ.CityID] = group
			order = append(order, occ.CityID)
		}

		adjusted, status := contextAdjust(occ.Confidence, occ.Signals.ContextState, group.StateCode)
		group.Score += adjusted
		group.Occurrences++
		if occ.Signals.AdminMarker {
			group.AdminMarkers++
		}
		group.TitleBoostSum += occ.Signals.TitleBoost
		switch status {
		case contextMatch:
			group.ContextMatches++
		case contextMismatch:
			group.ContextMismatches++
		}
		group.Matches = append(group.Matches, occ)
	}

	mentioned := make([]model.AggregatedCity, 0, len(groups))
	for _, id := range order {
		mentioned = append(mentioned, *groups[id])
	}
	sort.SliceStable(mentioned, func(i, j int) bool {
		return rankLess(&mentioned[i], &mentioned[j])
	})

	primary, suppressed := selectPrimary(mentioned)
	suppressed = append(suppressed, unresolved(occurrences)...)

	return Result{Primary: primary, Mentioned: mentioned, Suppressed: suppressed}
}

func newGroup(occ model.Occurrence, index *gazetteer.Index) *model.AggregatedCity {
	group := &model.AggregatedCity{
		CityID:    occ.CityID,
		Name:      occ.Name,
		StateCode: occ.StateCode,
	}
	if index != nil {
		if record := index.ByID(occ.CityID); record != nil {
			group.Name = record.Name
			group.StateCode = record.StateCode
		}
	}
	if group.Name == "" {
		group.Name = occ.Surface
	}
	return group
}

type contextStatus int

const (
	contextAbsent contextStatus = iota
	contextMatch
	contextMismatch
)

func contextAdjust(confidence float64, contextState, cityState string) (float64, contextStatus) {
	if contextState == "" || cityState == "" {
		return confidence, contextAbsent
	}
	if contextState == cityState {
		return confidence + ContextMatchBonus, contextMatch
	}
	return math.Max(0, confidence-ContextMismatchPenalty), contextMismatch
}

// rankLess orders groups best-first with the same key the selection cascade
// uses, so mentioned_cities and the cascade agree.
func rankLess(a, b *model.AggregatedCity) bool {
	if !nearlyEqual(a.Score, b.Score) {
		return a.Score > b.Score
	}
	if a.AdminMarkers != b.AdminMarkers {
		return a.AdminMarkers > b.AdminMarkers
	}
	if !nearlyEqual(a.TitleBoostSum, b.TitleBoostSum) {
		return a.TitleBoostSum > b.TitleBoostSum
	}
	if a.ContextMismatches != b.ContextMismatches {
		return a.ContextMismatches < b.ContextMismatches
	}
	if a.Occurrences != b.Occurrences {
		return a.Occurrences > b.Occurrences
	}
	return a.CityID < b.CityID
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
}

// stage is one narrowing step of the selection cascade. keep reports whether
// a candidate survives given the best value among the remaining candidates.
type stage struct {
	reason string
	rule   string
	keep   func(candidate, best *model.AggregatedCity) bool
}

var cascade = []stage{
	{reason: "lower_score", rule: "score", keep: func(c, best *model.AggregatedCity) bool {
		return nearlyEqual(c.Score, best.Score)
	}},
	{reason: "tie_break", rule: "admin_marker", keep: func(c, best *model.AggregatedCity) bool {
		return c.AdminMarkers == best.AdminMarkers
	}},
	{reason: "tie_break", rule: "title_boost", keep: func(c, best *model.AggregatedCity) bool {
		return nearlyEqual(c.TitleBoostSum, best.TitleBoostSum)
	}},
	{reason: "tie_break", rule: "context_state", keep: func(c, best *model.AggregatedCity) bool {
		return c.ContextMismatches == best.ContextMismatches
	}},
	{reason: "tie_break", rule: "occurrences", keep: func(c, best *model.AggregatedCity) bool {
		return c.Occurrences == best.Occurrences
	}},
}

// selectPrimary runs the cascade over groups already sorted best-first by
// rankLess, so the best value at each stage is always held by the first
// remaining candidate.
func selectPrimary(sorted []model.AggregatedCity) (*model.AggregatedCity, []model.Suppression) {
	if len(sorted) == 0 {
		return nil, nil
	}

	remaining := make([]*model.AggregatedCity, len(sorted))
	for i := range sorted {
		remaining[i] = &sorted[i]
	}

	var suppressed []model.Suppression
	for _, st := range cascade {
		best := remaining[0]
		var kept []*model.AggregatedCity
		for _, candidate := range remaining {
			if st.keep(candidate, best) {
				kept = append(kept, candidate)
				continue
			}
			suppressed = append(suppressed, suppression(candidate, st.reason, st.rule))
		}
		remaining = kept
		if len(remaining) == 1 {
			return copyGroup(remaining[0]), suppressed
		}
	}

	// Final deterministic tie-break on the id; rankLess already ordered
	// equal candidates lexicographically.
	for _, candidate := range remaining[1:] {
		suppressed = append(suppressed, suppression(candidate, "tie_break", "city_id"))
	}
	return copyGroup(remaining[0]), suppressed
}

func suppression(group *model.AggregatedCity, reason, rule string) model.Suppression {
	return model.Suppression{
		CityID:      group.CityID,
		Name:        group.Name,
		StateCode:   group.StateCode,
		Score:       group.Score,
		Occurrences: group.Occurrences,
		Reason:      reason,
		Rule:        rule,
	}
}

func copyGroup(group *model.AggregatedCity) *model.AggregatedCity {
	clone := *group
	return &clone
}

// unresolved reports occurrences that never received a city id, one
// suppression entry each.
func unresolved(occurrences []model.Occurrence) []model.Suppression {
	var entries []model.Suppression
	for _, occ := range occurrences {
		if occ.CityID != "" {
			continue
		}
		score := occ.Confidence
		if score == 0 {
			score = occ.Score
		}
		entries = append(entries, model.Suppression{
			Name:        occ.Surface,
			StateCode:   occ.StateHint,
			Score:       score,
			Occurrences: 1,
			Reason:      "missing_candidate",
			Rule:        "candidate_id",
		})
	}
	return entries
}
