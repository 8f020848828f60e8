package textnorm

import (
	"regexp"
	"sort"
	"strings"
)

// stateNames maps lowercase full state names to their two-letter codes.
var stateNames = map[string]string{
	"acre":                "AC",
	"alagoas":             "AL",
	"amapá":               "AP",
	"amazonas":            "AM",
	"bahia":               "BA",
	"ceará":               "CE",
	"distrito federal":    "DF",
	"espírito santo":      "ES",
	"goiás":               "GO",
	"maranhão":            "MA",
	"mato grosso":         "MT",
	"mato grosso do sul":  "MS",
	"minas gerais":        "MG",
	"pará":                "PA",
	"paraíba":             "PB",
	"paraná":              "PR",
	"pernambuco":          "PE",
	"piauí":               "PI",
	"rio de janeiro":      "RJ",
	"rio grande do norte": "RN",
	"rio grande do sul":   "RS",
	"rondônia":            "RO",
	"roraima":             "RR",
	"santa catarina":      "SC",
	"são paulo":           "SP",
	"sergipe":             "SE",
	"tocantins":           "TO",
}

var stateCodes = func() map[string]bool {
	codes := make(map[string]bool, len(stateNames))
	for _, code := range stateNames {
		codes[code] = true
	}
	return codes
}()

var stateCodePattern = regexp.MustCompile(`\b[A-Z]{2}\b`)

// ValidStateCode reports whether code is a Brazilian state abbreviation.
func ValidStateCode(code string) bool {
	return stateCodes[strings.ToUpper(code)]
}

// StateMentions returns the state codes referenced in text, either by full
// state name (case-insensitive) or by standalone uppercase abbreviation.
// The result is sorted and deduplicated so callers get a deterministic
// representative by taking the first element.
func StateMentions(text string) []string {
	found := make(map[string]bool)
	lowered := strings.ToLower(text)
	for name, code := range stateNames {
		if strings.Contains(lowered, name) {
			found[code] = true
		}
	}
	for _, abbr := range stateCodePattern.FindAllString(text, -1) {
		if stateCodes[abbr] {
			found[abbr] = true
		}
	}

	mentions := make([]string, 0, len(found))
	for code := range found {
		mentions = append(mentions, code)
	}
	sort.Strings(mentions)
	return mentions
}

var sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?]?`)

// SentenceContaining returns the sentence of text that covers the rune
// offset start. When no sentence boundary covers the offset the whole text
// is returned.
func SentenceContaining(text string, start int) string {
	runes := []rune(text)
	if start < 0 {
		start = 0
	}

	// Sentence boundaries are located on the byte form, then compared in
	// rune space so spans from the offset map line up.
	for _, loc := range sentencePattern.FindAllStringIndex(text, -1) {
		sentStart := len([]rune(text[:loc[0]]))
		sentEnd := sentStart + len([]rune(text[loc[0]:loc[1]]))
		if sentStart <= start && start < sentEnd {
			return strings.TrimSpace(string(runes[sentStart:sentEnd]))
		}
	}
	return strings.TrimSpace(text)
}
