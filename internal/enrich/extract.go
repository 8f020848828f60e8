package enrich

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/farol-news/sentinela-geo/internal/matcher"
	"github.com/farol-news/sentinela-geo/internal/model"
	"github.com/farol-news/sentinela-geo/internal/textnorm"
	"github.com/farol-news/sentinela-geo/pkg/ner"
)

// Extractor turns an article into raw occurrences by combining automaton
// matches, syntax-pattern matches and location entities from the NER engine.
type Extractor struct {
	matcher *matcher.Matcher
	engine  ner.Engine
	logger  *zap.Logger
}

func NewExtractor(m *matcher.Matcher, engine ner.Engine) *Extractor {
	if engine == nil {
		engine = ner.Noop{}
	}
	return &Extractor{
		matcher: m,
		engine:  engine,
		logger:  zap.L().With(zap.String("component", "extractor")),
	}
}

// Extract scans the article's headline and text for municipality mentions.
// When the body is empty the scraped content field fills in, noted under
// metadata["field_used"]. A NER failure is logged and skipped rather than
// failing the extraction; the automaton results stand on their own.
func (e *Extractor) Extract(ctx context.Context, article *model.Article) ([]model.Occurrence, map[string]any, error) {
	metadata := map[string]any{}

	textField := model.FieldBody
	if article.Body == "" && article.Content != "" {
		textField = model.FieldContent
		metadata["field_used"] = model.FieldContent
	}

	fields := []string{model.FieldTitle, textField}
	var occurrences []model.Occurrence

	for _, field := range fields {
		text := fieldText(article, field)
		if text == "" {
			continue
		}

		for _, occ := range e.matcher.FindMatches(text) {
			occ.Field = field
			occurrences = append(occurrences, occ)
		}
		for _, occ := range matcher.PatternMatches(text) {
			occ.Field = field
			occurrences = append(occurrences, occ)
		}

		entities, err := e.engine.Analyze(ctx, text)
		if err != nil {
			e.logger.Warn("ner analysis failed",
				zap.String("article_id", article.ID),
				zap.String("field", field),
				zap.Error(err))
		}
		for _, entity := range entities {
			if !entity.IsLocation() {
				continue
			}
			occurrences = append(occurrences, model.Occurrence{
				Field:   field,
				Name:    entity.Text,
				Surface: entity.Text,
				Start:   entity.Start,
				End:     entity.End,
				Method:  model.MethodNER,
				Score:   entity.Score,
			})
		}
	}

	sortOccurrences(occurrences)
	return occurrences, metadata, nil
}

// fieldText is the single place article fields are read for matching, so
// occurrence offsets and signal derivation always see the same cleaned text.
func fieldText(article *model.Article, field string) string {
	return textnorm.CleanArticleText(article.FieldText(field))
}

// fieldOrder keeps headline occurrences ahead of text occurrences.
var fieldOrder = map[string]int{
	model.FieldTitle:   0,
	model.FieldBody:    1,
	model.FieldContent: 2,
}

func sortOccurrences(occurrences []model.Occurrence) {
	sort.SliceStable(occurrences, func(i, j int) bool {
		a, b := occurrences[i], occurrences[j]
		if fieldOrder[a.Field] != fieldOrder[b.Field] {
			return fieldOrder[a.Field] < fieldOrder[b.Field]
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End < b.End
	})
}
