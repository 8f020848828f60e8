package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farol-news/sentinela-geo/internal/model"
)

func resolvedOccurrence(cityID, name, state string, confidence float64) model.Occurrence {
	return model.Occurrence{
		CityID:     cityID,
		Name:       name,
		StateCode:  state,
		Surface:    name,
		Method:     model.MethodAutomaton,
		Score:      1.0,
		Confidence: confidence,
		Status:     model.StatusResolved,
	}
}

func TestConsolidate_GroupsByCity(t *testing.T) {
	occs := []model.Occurrence{
		resolvedOccurrence("2408102", "Natal", "RN", 0.95),
		resolvedOccurrence("2408102", "Natal", "RN", 0.95),
		resolvedOccurrence("3550308", "São Paulo", "SP", 0.95),
	}

	result := Consolidate(occs, nil)

	require.Len(t, result.Mentioned, 2)
	natal := result.Mentioned[0]
	assert.Equal(t, "2408102", natal.CityID)
	assert.Equal(t, 2, natal.Occurrences)
	assert.InDelta(t, 1.9, natal.Score, 1e-9)
	assert.Len(t, natal.Matches, 2)
}

func TestConsolidate_ContextBonusAndPenalty(t *testing.T) {
	match := resolvedOccurrence("2408102", "Natal", "RN", 0.95)
	match.Signals.ContextState = "RN"
	mismatch := resolvedOccurrence("2408102", "Natal", "RN", 0.95)
	mismatch.Signals.ContextState = "SP"
	neutral := resolvedOccurrence("2408102", "Natal", "RN", 0.95)

	result := Consolidate([]model.Occurrence{match, mismatch, neutral}, nil)

	require.Len(t, result.Mentioned, 1)
	group := result.Mentioned[0]
	// 0.95+0.3, then 0.95-0.7, then 0.95 unchanged.
	assert.InDelta(t, 1.25+0.25+0.95, group.Score, 1e-9)
	assert.Equal(t, 1, group.ContextMatches)
	assert.Equal(t, 1, group.ContextMismatches)
}

func TestConsolidate_PenaltyFlooredAtZero(t *testing.T) {
	occ := resolvedOccurrence("2408102", "Natal", "RN", 0.4)
	occ.Signals.ContextState = "SP"

	result := Consolidate([]model.Occurrence{occ}, nil)

	require.Len(t, result.Mentioned, 1)
	assert.Zero(t, result.Mentioned[0].Score)
}

func TestConsolidate_PrimaryByScore(t *testing.T) {
	occs := []model.Occurrence{
		resolvedOccurrence("2408102", "Natal", "RN", 0.95),
		resolvedOccurrence("2408102", "Natal", "RN", 0.95),
		resolvedOccurrence("3550308", "São Paulo", "SP", 0.95),
	}

	result := Consolidate(occs, nil)

	require.NotNil(t, result.Primary)
	assert.Equal(t, "2408102", result.Primary.CityID)
	require.Len(t, result.Suppressed, 1)
	assert.Equal(t, "3550308", result.Suppressed[0].CityID)
	assert.Equal(t, "lower_score", result.Suppressed[0].Reason)
	assert.Equal(t, "score", result.Suppressed[0].Rule)
}

func TestConsolidate_AdminMarkerBreaksScoreTie(t *testing.T) {
	marked := resolvedOccurrence("3550308", "São Paulo", "SP", 0.95)
	marked.Signals.AdminMarker = true
	plain := resolvedOccurrence("2408102", "Natal", "RN", 0.95)

	result := Consolidate([]model.Occurrence{plain, marked}, nil)

	require.NotNil(t, result.Primary)
	assert.Equal(t, "3550308", result.Primary.CityID)
	require.Len(t, result.Suppressed, 1)
	assert.Equal(t, "2408102", result.Suppressed[0].CityID)
	assert.Equal(t, "tie_break", result.Suppressed[0].Reason)
	assert.Equal(t, "admin_marker", result.Suppressed[0].Rule)
}

func TestConsolidate_TitleBoostBreaksTie(t *testing.T) {
	titled := resolvedOccurrence("2408102", "Natal", "RN", 0.95)
	titled.Signals.TitleBoost = 0.4
	titled.Confidence = 0.95
	plain := resolvedOccurrence("3550308", "São Paulo", "SP", 0.95)

	result := Consolidate([]model.Occurrence{plain, titled}, nil)

	require.NotNil(t, result.Primary)
	assert.Equal(t, "2408102", result.Primary.CityID)
	assert.Equal(t, "title_boost", result.Suppressed[0].Rule)
}

func TestConsolidate_CityIDBreaksFinalTie(t *testing.T) {
	occs := []model.Occurrence{
		resolvedOccurrence("3550308", "São Paulo", "SP", 0.95),
		resolvedOccurrence("2408102", "Natal", "RN", 0.95),
	}

	result := Consolidate(occs, nil)

	require.NotNil(t, result.Primary)
	assert.Equal(t, "2408102", result.Primary.CityID)
	require.Len(t, result.Suppressed, 1)
	assert.Equal(t, "city_id", result.Suppressed[0].Rule)
}

func TestConsolidate_UnresolvedReported(t *testing.T) {
	foreign := model.Occurrence{
		Surface:    "Buenos Aires",
		Method:     model.MethodAutomaton,
		Score:      1.0,
		Confidence: 0.2,
		Status:     model.StatusForeign,
	}

	result := Consolidate([]model.Occurrence{foreign}, nil)

	assert.Nil(t, result.Primary)
	assert.Empty(t, result.Mentioned)
	require.Len(t, result.Suppressed, 1)
	entry := result.Suppressed[0]
	assert.Empty(t, entry.CityID)
	assert.Equal(t, "Buenos Aires", entry.Name)
	assert.Equal(t, "missing_candidate", entry.Reason)
	assert.Equal(t, "candidate_id", entry.Rule)
	assert.InDelta(t, 0.2, entry.Score, 1e-9)
}

func TestConsolidate_MentionedSortedByCascadeKey(t *testing.T) {
	occs := []model.Occurrence{
		resolvedOccurrence("3550308", "São Paulo", "SP", 0.5),
		resolvedOccurrence("2408102", "Natal", "RN", 0.95),
		resolvedOccurrence("1721000", "Palmas", "TO", 0.95),
	}

	result := Consolidate(occs, nil)

	require.Len(t, result.Mentioned, 3)
	assert.Equal(t, "1721000", result.Mentioned[0].CityID)
	assert.Equal(t, "2408102", result.Mentioned[1].CityID)
	assert.Equal(t, "3550308", result.Mentioned[2].CityID)
}

func TestConsolidate_OrderIndependent(t *testing.T) {
	a := resolvedOccurrence("2408102", "Natal", "RN", 0.95)
	a.Signals.AdminMarker = true
	b := resolvedOccurrence("3550308", "São Paulo", "SP", 0.95)
	c := resolvedOccurrence("3550308", "São Paulo", "SP", 0.5)

	forward := Consolidate([]model.Occurrence{a, b, c}, nil)
	backward := Consolidate([]model.Occurrence{c, b, a}, nil)

	require.NotNil(t, forward.Primary)
	require.NotNil(t, backward.Primary)
	assert.Equal(t, forward.Primary.CityID, backward.Primary.CityID)
	assert.Equal(t, forward.Suppressed, backward.Suppressed)

	require.Len(t, forward.Mentioned, len(backward.Mentioned))
	for i := range forward.Mentioned {
		assert.Equal(t, forward.Mentioned[i].CityID, backward.Mentioned[i].CityID)
		assert.InDelta(t, forward.Mentioned[i].Score, backward.Mentioned[i].Score, 1e-9)
	}
}

func TestConsolidate_Empty(t *testing.T) {
	result := Consolidate(nil, nil)

	assert.Nil(t, result.Primary)
	assert.Empty(t, result.Mentioned)
	assert.Empty(t, result.Suppressed)
}
