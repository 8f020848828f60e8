// Package disambig resolves a surface mention to catalog municipalities
// using explicit and contextual state hints.
package disambig

import (
	"sort"
	"strings"

	"github.com/farol-news/sentinela-geo/internal/gazetteer"
	"github.com/farol-news/sentinela-geo/internal/model"
	"github.com/farol-news/sentinela-geo/internal/textnorm"
)

// Status confidences are fixed per outcome. Callers multiply them with the
// match-stage score; this package never mixes the two.
const (
	ConfidenceResolved     = 0.95
	ConfidenceAmbiguous    = 0.5
	ConfidenceUnknownState = 0.4
	ConfidenceForeign      = 0.2
)

// ambiguousSurfaces are bare names that also occur as common words outside
// municipal context. A single catalog hit on one of these still needs a
// state hint before it counts as resolved.
var ambiguousSurfaces = map[string]bool{
	"natal":     true,
	"esperanca": true,
	"palmas":    true,
}

// Result is the outcome of disambiguating one occurrence.
type Result struct {
	Status         string
	Confidence     float64
	ResolvedCityID string
	Candidates     []model.Candidate
}

// Resolver answers surface lookups against a catalog index.
type Resolver struct {
	index *gazetteer.Index
}

func NewResolver(index *gazetteer.Index) *Resolver {
	return &Resolver{index: index}
}

// Resolve maps a surface string to catalog candidates. stateHint is an
// explicit suffix parsed from the surface itself ("Cidade - UF");
// contextStates are the codes mentioned around the occurrence. Resolve never
// fails; every mention gets one of the four statuses.
func (r *Resolver) Resolve(surface, stateHint string, contextStates []string) Result {
	records := r.index.Lookup(surface)
	if len(records) == 0 {
		return Result{Status: model.StatusForeign, Confidence: ConfidenceForeign}
	}

	if stateHint != "" {
		hint := strings.ToUpper(stateHint)
		filtered := filterByStates(records, map[string]bool{hint: true})
		if len(filtered) == 0 {
			return Result{
				Status:     model.StatusUnknownState,
				Confidence: ConfidenceUnknownState,
				Candidates: candidates(records),
			}
		}
		records = filtered
	}

	context := make(map[string]bool, len(contextStates))
	for _, code := range contextStates {
		context[strings.ToUpper(code)] = true
	}
	if len(records) > 1 && len(context) > 0 {
		if narrowed := filterByStates(records, context); len(narrowed) > 0 {
			records = narrowed
		}
	}

	if len(records) == 1 {
		record := records[0]
		if needsStateEvidence(surface, record, stateHint, context) {
			return Result{
				Status:     model.StatusUnknownState,
				Confidence: ConfidenceUnknownState,
				Candidates: candidates(records),
			}
		}
		return Result{
			Status:         model.StatusResolved,
			Confidence:     ConfidenceResolved,
			ResolvedCityID: record.ID,
			Candidates:     candidates(records),
		}
	}

	return Result{
		Status:     model.StatusAmbiguous,
		Confidence: ConfidenceAmbiguous,
		Candidates: candidates(records),
	}
}

// needsStateEvidence applies the known-ambiguous surface rule: the single
// remaining candidate only resolves when the mention carried an explicit
// state suffix or the surrounding context names the candidate's state.
func needsStateEvidence(surface string, record *gazetteer.Record, stateHint string, context map[string]bool) bool {
	if !ambiguousSurfaces[textnorm.Fold(surface)] {
		return false
	}
	if stateHint != "" {
		return false
	}
	return !context[record.StateCode]
}

func filterByStates(records []*gazetteer.Record, states map[string]bool) []*gazetteer.Record {
	var kept []*gazetteer.Record
	for _, record := range records {
		if states[record.StateCode] {
			kept = append(kept, record)
		}
	}
	return kept
}

func candidates(records []*gazetteer.Record) []model.Candidate {
	weight := 1.0 / float64(len(records))
	out := make([]model.Candidate, 0, len(records))
	for _, record := range records {
		out = append(out, model.Candidate{
			CityID:    record.ID,
			Name:      record.Name,
			StateCode: record.StateCode,
			Weight:    weight,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CityID < out[j].CityID })
	return out
}
