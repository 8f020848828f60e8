// Package enrich composes the per-article resolution stages: extract raw
// occurrences, derive signals, disambiguate against the catalog and
// aggregate into the final output.
package enrich

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/farol-news/sentinela-geo/internal/aggregate"
	"github.com/farol-news/sentinela-geo/internal/disambig"
	"github.com/farol-news/sentinela-geo/internal/gazetteer"
	"github.com/farol-news/sentinela-geo/internal/model"
	"github.com/farol-news/sentinela-geo/internal/signals"
)

// Stage functions are injectable so each stage can be tested and swapped
// independently; the pipeline itself carries no business logic.
type (
	// LoadCatalogFunc provides the catalog payload for this enrichment.
	LoadCatalogFunc func(ctx context.Context) (*gazetteer.Payload, error)
	// ApplySignalsFunc attaches contextual signals to each occurrence.
	ApplySignalsFunc func(article *model.Article, occurrences []model.Occurrence) []model.Occurrence
	// DisambiguateFunc resolves occurrences against the catalog index.
	DisambiguateFunc func(index *gazetteer.Index, occurrences []model.Occurrence) []model.Occurrence
	// AggregateFunc consolidates occurrences into the enrichment output.
	AggregateFunc func(article *model.Article, index *gazetteer.Index, occurrences []model.Occurrence) *model.EnrichmentOutput
)

// Pipeline runs the four enrichment stages in fixed order.
type Pipeline struct {
	loadCatalog  LoadCatalogFunc
	applySignals ApplySignalsFunc
	disambiguate DisambiguateFunc
	aggregate    AggregateFunc
	logger       *zap.Logger
}

func NewPipeline(load LoadCatalogFunc, apply ApplySignalsFunc, resolve DisambiguateFunc, agg AggregateFunc) *Pipeline {
	return &Pipeline{
		loadCatalog:  load,
		applySignals: apply,
		disambiguate: resolve,
		aggregate:    agg,
		logger:       zap.L().With(zap.String("component", "pipeline")),
	}
}

// Enrich runs catalog load, signal application, disambiguation and
// aggregation over the raw occurrences. A nil result from the aggregation
// stage is a stage contract violation, a programming error rather than a
// runtime condition to recover from.
func (p *Pipeline) Enrich(ctx context.Context, article *model.Article, raw []model.Occurrence) (*model.EnrichmentOutput, error) {
	payload, err := p.loadCatalog(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: load catalog")
	}
	index := gazetteer.NewIndex(payload)

	occurrences := p.applySignals(article, raw)
	occurrences = p.disambiguate(index, occurrences)

	output := p.aggregate(article, index, occurrences)
	if output == nil {
		return nil, eris.New("enrich: aggregation stage returned no output")
	}

	p.logger.Debug("article enriched",
		zap.String("article_id", article.ID),
		zap.Int("occurrences", len(occurrences)),
		zap.Int("mentioned_cities", len(output.MentionedCities)))
	return output, nil
}

// DefaultSignals derives signals in place over a copy of the input,
// re-reading each occurrence's field text from the article.
func DefaultSignals(article *model.Article, occurrences []model.Occurrence) []model.Occurrence {
	out := make([]model.Occurrence, len(occurrences))
	copy(out, occurrences)
	for i := range out {
		signals.Derive(&out[i], fieldText(article, out[i].Field))
	}
	return out
}

// DefaultDisambiguate collapses occurrences that cover the same span and
// resolves each surviving span against the catalog. The automaton emits one
// occurrence per catalog candidate sharing a surface; resolution decides
// among them, so duplicates over one span would double count.
func DefaultDisambiguate(index *gazetteer.Index, occurrences []model.Occurrence) []model.Occurrence {
	resolver := disambig.NewResolver(index)

	type span struct {
		field      string
		start, end int
	}
	seen := make(map[span]int)

	// Collapse occurrences sharing a span before resolving. A pattern
	// duplicate of an automaton match contributes its explicit state
	// suffix to the kept occurrence so the suffix filter still applies.
	var collapsed []model.Occurrence
	for _, occ := range occurrences {
		key := span{field: occ.Field, start: occ.Start, end: occ.End}
		if i, ok := seen[key]; ok {
			if collapsed[i].StateHint == "" && occ.StateHint != "" {
				collapsed[i].StateHint = occ.StateHint
			}
			continue
		}
		seen[key] = len(collapsed)
		collapsed = append(collapsed, occ)
	}

	var out []model.Occurrence
	for _, occ := range collapsed {
		result := resolver.Resolve(occ.Surface, occ.StateHint, occ.Signals.ContextStates)

		occ.Status = result.Status
		occ.Confidence = occ.Score * result.Confidence
		occ.Candidates = result.Candidates
		occ.CityID = result.ResolvedCityID
		if record := index.ByID(result.ResolvedCityID); record != nil {
			occ.Name = record.Name
			occ.StateCode = record.StateCode
		} else {
			occ.StateCode = ""
		}
		out = append(out, occ)
	}
	return out
}

// DefaultAggregate builds the enrichment output from the resolved
// occurrences.
func DefaultAggregate(article *model.Article, index *gazetteer.Index, occurrences []model.Occurrence) *model.EnrichmentOutput {
	result := aggregate.Consolidate(occurrences, index)
	return &model.EnrichmentOutput{
		ArticleID:       article.ID,
		Matches:         occurrences,
		PrimaryCity:     result.Primary,
		MentionedCities: result.Mentioned,
		Disambiguation:  model.Disambiguation{Suppressed: result.Suppressed},
	}
}

// Service bundles extraction with a pipeline wired to the default stages.
type Service struct {
	extractor *Extractor
	pipeline  *Pipeline
}

func NewService(extractor *Extractor, load LoadCatalogFunc) *Service {
	return &Service{
		extractor: extractor,
		pipeline:  NewPipeline(load, DefaultSignals, DefaultDisambiguate, DefaultAggregate),
	}
}

// EnrichArticle extracts raw occurrences and runs the full pipeline,
// carrying extraction notes into the output metadata.
func (s *Service) EnrichArticle(ctx context.Context, article *model.Article) (*model.EnrichmentOutput, error) {
	raw, metadata, err := s.extractor.Extract(ctx, article)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: extract occurrences")
	}

	output, err := s.pipeline.Enrich(ctx, article, raw)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if output.Metadata == nil {
			output.Metadata = map[string]any{}
		}
		for k, v := range metadata {
			output.Metadata[k] = v
		}
	}
	return output, nil
}
