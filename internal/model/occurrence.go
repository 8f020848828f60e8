package model

// Match method values.
const (
	MethodAutomaton = "automaton"
	MethodPattern   = "pattern"
	MethodNER       = "ner"
)

// Resolution status values assigned by disambiguation.
const (
	StatusResolved     = "resolved"
	StatusAmbiguous    = "ambiguous"
	StatusUnknownState = "unknown_state"
	StatusForeign      = "foreign"
)

// Signals holds the contextual signals derived for one occurrence.
// ContextState is the reported representative; ContextStates carries every
// state mentioned in the containing sentence for candidate narrowing and
// stays off the wire.
type Signals struct {
	TitleBoost    float64  `json:"title_boost"`
	AdminMarker   bool     `json:"admin_marker"`
	ContextState  string   `json:"context_state,omitempty"`
	ContextStates []string `json:"-"`
}

// Candidate is a catalog candidate considered during disambiguation.
type Candidate struct {
	CityID    string  `json:"city_id"`
	Name      string  `json:"name"`
	StateCode string  `json:"state_code"`
	Weight    float64 `json:"weight"`
}

// Occurrence is one location mention found in an article field. Start and End
// are offsets into the original (unnormalized) text of that field.
type Occurrence struct {
	Field      string      `json:"field"`
	CityID     string      `json:"city_id,omitempty"`
	Name       string      `json:"name"`
	StateCode  string      `json:"state_code,omitempty"`
	StateHint  string      `json:"state_hint,omitempty"`
	Surface    string      `json:"surface"`
	Start      int         `json:"start"`
	End        int         `json:"end"`
	Method     string      `json:"method"`
	Score      float64     `json:"score"`
	Signals    Signals     `json:"signals"`
	Confidence float64     `json:"confidence"`
	Status     string      `json:"status,omitempty"`
	Candidates []Candidate `json:"candidates,omitempty"`
}
