package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/farol-news/sentinela-geo/internal/enrich"
	"github.com/farol-news/sentinela-geo/internal/gazetteer"
	"github.com/farol-news/sentinela-geo/internal/matcher"
	"github.com/farol-news/sentinela-geo/internal/resilience"
	"github.com/farol-news/sentinela-geo/internal/store"
	"github.com/farol-news/sentinela-geo/pkg/ner"
)

// pipelineEnv bundles everything an enrichment command needs.
type pipelineEnv struct {
	Store   store.Store
	Loader  *gazetteer.Loader
	Payload *gazetteer.Payload
	Service *enrich.Service

	catalogStorage gazetteer.Storage
}

func (e *pipelineEnv) Close() {
	if closer, ok := e.catalogStorage.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

func newCatalogLoader() (*gazetteer.Loader, gazetteer.Storage, error) {
	sources := gazetteer.DefaultSources()
	if cfg.Catalog.SourcesFile != "" {
		loaded, err := gazetteer.LoadSources(cfg.Catalog.SourcesFile)
		if err != nil {
			return nil, nil, err
		}
		sources = loaded
	}

	rps := cfg.Catalog.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	fetcher := gazetteer.NewFetcher(sources,
		gazetteer.WithRateLimit(rate.Limit(rps), rps),
		gazetteer.WithRetryConfig(resilience.DefaultRetryConfig()),
	)

	storage, err := gazetteer.NewSQLiteStorage(filepath.Join(cfg.Catalog.DataDir, "catalog.db"))
	if err != nil {
		return nil, nil, err
	}

	opts := []gazetteer.LoaderOption{
		gazetteer.WithFetcher(fetcher),
		gazetteer.WithStorage(storage),
	}
	if cfg.Catalog.MemoryTTLMinutes > 0 {
		opts = append(opts, gazetteer.WithMemoryTTL(time.Duration(cfg.Catalog.MemoryTTLMinutes)*time.Minute))
	}

	return gazetteer.NewLoader(cfg.Catalog.DataDir, opts...), storage, nil
}

func catalogLoadOptions(forceRefresh bool) gazetteer.LoadOptions {
	return gazetteer.LoadOptions{
		Version:            cfg.Catalog.Version,
		PrimarySource:      cfg.Catalog.PrimarySource,
		EnsureComplete:     cfg.Catalog.EnsureComplete,
		MinimumRecordCount: cfg.Catalog.MinimumRecordCount,
		ForceRefresh:       forceRefresh,
	}
}

// initPipeline validates config for the given mode, opens the article
// store, loads the catalog and wires the enrichment service.
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	loader, storage, err := newCatalogLoader()
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init catalog loader")
	}

	env := &pipelineEnv{Store: st, Loader: loader, catalogStorage: storage}

	payload, err := loader.Load(ctx, catalogLoadOptions(false))
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Payload = payload
	gazetteer.Enrich(payload)

	var engine ner.Engine = ner.Noop{}
	if cfg.NER.BaseURL != "" {
		engine = ner.NewClient(cfg.NER.BaseURL, cfg.NER.Key)
		zap.L().Info("ner engine enabled", zap.String("base_url", cfg.NER.BaseURL))
	} else {
		zap.L().Debug("SENTINELA_NER_BASE_URL not set, ner candidates disabled")
	}

	extractor := enrich.NewExtractor(matcher.New(payload), engine)
	env.Service = enrich.NewService(extractor, func(ctx context.Context) (*gazetteer.Payload, error) {
		return loader.Load(ctx, catalogLoadOptions(false))
	})

	zap.L().Info("pipeline ready",
		zap.Int("catalog_records", len(payload.Data)),
		zap.String("catalog_version", payload.Metadata.Version),
	)
	return env, nil
}
