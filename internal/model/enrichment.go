package model

// AggregatedCity is the per-document consolidation of all occurrences that
// resolved to one city. It is created fresh per document and never persisted
// by the enrichment core itself.
type AggregatedCity struct {
	CityID            string       `json:"city_id"`
	Name              string       `json:"name"`
	StateCode         string       `json:"state_code,omitempty"`
	Score             float64      `json:"score"`
	Occurrences       int          `json:"occurrences"`
	AdminMarkers      int          `json:"admin_markers"`
	TitleBoostSum     float64      `json:"title_boost_sum"`
	ContextMatches    int          `json:"context_matches"`
	ContextMismatches int          `json:"context_mismatches"`
	Matches           []Occurrence `json:"matches,omitempty"`
}

// Suppression records a candidate removed during primary-city selection, or
// an occurrence that never resolved to a catalog entry.
type Suppression struct {
	CityID      string  `json:"city_id,omitempty"`
	Name        string  `json:"name,omitempty"`
	StateCode   string  `json:"state_code,omitempty"`
	Score       float64 `json:"score"`
	Occurrences int     `json:"occurrences"`
	Reason      string  `json:"reason"`
	Rule        string  `json:"rule"`
}

// Disambiguation is the audit trail attached to an enrichment output.
type Disambiguation struct {
	Suppressed []Suppression `json:"suppressed"`
}

// EnrichmentOutput is the full result of enriching one article.
type EnrichmentOutput struct {
	ArticleID       string           `json:"article_id"`
	Matches         []Occurrence     `json:"matches"`
	PrimaryCity     *AggregatedCity  `json:"primary_city"`
	MentionedCities []AggregatedCity `json:"mentioned_cities"`
	Disambiguation  Disambiguation   `json:"disambiguation"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
}
