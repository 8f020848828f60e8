// Package store persists articles, their enrichment results and batch run
// bookkeeping. Two backends implement the same interface: an embedded
// SQLite database for single-machine use and Postgres for shared
// deployments.
package store

import (
	"context"

	"github.com/farol-news/sentinela-geo/internal/model"
	"github.com/farol-news/sentinela-geo/internal/resilience"
)

// EnrichmentFilter specifies criteria for listing enrichment results.
type EnrichmentFilter struct {
	StateCode string `json:"state_code,omitempty"`
	CityID    string `json:"city_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the enrichment pipeline.
type Store interface {
	// Articles
	SaveArticle(ctx context.Context, article *model.Article) error
	GetArticle(ctx context.Context, id string) (*model.Article, error)
	ListPendingArticles(ctx context.Context, limit int) ([]model.Article, error)
	MarkProcessed(ctx context.Context, articleID string, output *model.EnrichmentOutput) error
	MarkError(ctx context.Context, articleID string, message string) error

	// Enrichments
	GetEnrichment(ctx context.Context, articleID string) (*model.EnrichmentOutput, error)
	ListEnrichments(ctx context.Context, filter EnrichmentFilter) ([]model.EnrichmentOutput, error)

	// Runs
	CreateRun(ctx context.Context, total int) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, processed, failed int) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)

	// Dead letter queue
	AddDLQEntry(ctx context.Context, entry *resilience.DLQEntry) error
	ListDLQEntries(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	DeleteDLQEntry(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
