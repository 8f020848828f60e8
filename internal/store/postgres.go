package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/farol-news/sentinela-geo/internal/db"
	"github.com/farol-news/sentinela-geo/internal/model"
	"github.com/farol-news/sentinela-geo/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS articles (
	id           TEXT PRIMARY KEY,
	url          TEXT,
	title        TEXT NOT NULL,
	body         TEXT,
	content      TEXT,
	source       TEXT,
	published_at TIMESTAMPTZ,
	status       TEXT NOT NULL DEFAULT 'pending',
	error        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS enrichments (
	article_id   TEXT PRIMARY KEY REFERENCES articles(id),
	primary_city TEXT,
	state_code   TEXT,
	payload      JSONB NOT NULL,
	enriched_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status     TEXT NOT NULL DEFAULT 'running',
	total      INTEGER NOT NULL DEFAULT 0,
	processed  INTEGER NOT NULL DEFAULT 0,
	failed     INTEGER NOT NULL DEFAULT 0,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dead_letters (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	article_id     TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	failed_stage   TEXT,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status);
CREATE INDEX IF NOT EXISTS idx_enrichments_state ON enrichments(state_code);
CREATE INDEX IF NOT EXISTS idx_enrichments_city ON enrichments(primary_city);
CREATE INDEX IF NOT EXISTS idx_dead_letters_type ON dead_letters(error_type);
CREATE INDEX IF NOT EXISTS idx_dead_letters_next_retry ON dead_letters(next_retry_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveArticle(ctx context.Context, article *model.Article) error {
	if article.ID == "" {
		article.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO articles (id, url, title, body, content, source, published_at, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url, title = EXCLUDED.title, body = EXCLUDED.body,
			content = EXCLUDED.content, source = EXCLUDED.source,
			published_at = EXCLUDED.published_at, updated_at = EXCLUDED.updated_at`,
		article.ID, article.URL, article.Title, article.Body, article.Content,
		article.Source, article.PublishedAt, model.ArticleStatusPending, now, now,
	)
	return eris.Wrapf(err, "postgres: save article %s", article.ID)
}

// ImportArticles bulk-upserts a batch of articles in one round trip, used by
// the import command for large feeds.
func (s *PostgresStore) ImportArticles(ctx context.Context, articles []model.Article) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(articles))
	for i := range articles {
		a := &articles[i]
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		rows = append(rows, []any{
			a.ID, a.URL, a.Title, a.Body, a.Content, a.Source, a.PublishedAt,
			model.ArticleStatusPending, now, now,
		})
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "articles",
		Columns: []string{
			"id", "url", "title", "body", "content", "source", "published_at",
			"status", "created_at", "updated_at",
		},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"url", "title", "body", "content", "source", "published_at", "updated_at"},
	}, rows)
}

func (s *PostgresStore) GetArticle(ctx context.Context, id string) (*model.Article, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, url, title, body, content, source, published_at FROM articles WHERE id = $1`, id)
	return scanPgArticle(row)
}

func (s *PostgresStore) ListPendingArticles(ctx context.Context, limit int) ([]model.Article, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, title, body, content, source, published_at FROM articles
		 WHERE status = $1 ORDER BY created_at LIMIT $2`,
		model.ArticleStatusPending, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending articles")
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		a, err := scanPgArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, eris.Wrap(rows.Err(), "postgres: list pending iterate")
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, articleID string, output *model.EnrichmentOutput) error {
	payload, err := json.Marshal(output)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal enrichment")
	}

	var primaryCity, stateCode *string
	if output.PrimaryCity != nil {
		primaryCity = &output.PrimaryCity.CityID
		stateCode = &output.PrimaryCity.StateCode
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO enrichments (article_id, primary_city, state_code, payload, enriched_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (article_id) DO UPDATE SET
			primary_city = EXCLUDED.primary_city, state_code = EXCLUDED.state_code,
			payload = EXCLUDED.payload, enriched_at = EXCLUDED.enriched_at`,
		articleID, primaryCity, stateCode, payload, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save enrichment %s", articleID)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE articles SET status = $1, error = NULL, updated_at = $2 WHERE id = $3`,
		model.ArticleStatusProcessed, time.Now().UTC(), articleID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark processed %s", articleID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("article not found: %s", articleID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func (s *PostgresStore) MarkError(ctx context.Context, articleID string, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE articles SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		model.ArticleStatusError, message, time.Now().UTC(), articleID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark error %s", articleID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("article not found: %s", articleID)
	}
	return nil
}

func (s *PostgresStore) GetEnrichment(ctx context.Context, articleID string) (*model.EnrichmentOutput, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM enrichments WHERE article_id = $1`, articleID,
	).Scan(&payload)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, eris.Errorf("enrichment not found: %s", articleID)
		}
		return nil, eris.Wrap(err, "postgres: get enrichment")
	}

	var output model.EnrichmentOutput
	if err := json.Unmarshal(payload, &output); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal enrichment")
	}
	return &output, nil
}

func (s *PostgresStore) ListEnrichments(ctx context.Context, filter EnrichmentFilter) ([]model.EnrichmentOutput, error) {
	query := `SELECT payload FROM enrichments WHERE true`
	args := []any{}
	argIdx := 1

	if filter.StateCode != "" {
		query += fmt.Sprintf(` AND state_code = $%d`, argIdx)
		args = append(args, filter.StateCode)
		argIdx++
	}
	if filter.CityID != "" {
		query += fmt.Sprintf(` AND primary_city = $%d`, argIdx)
		args = append(args, filter.CityID)
		argIdx++
	}
	query += ` ORDER BY enriched_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list enrichments")
	}
	defer rows.Close()

	var outputs []model.EnrichmentOutput
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan enrichment")
		}
		var output model.EnrichmentOutput
		if err := json.Unmarshal(payload, &output); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal enrichment")
		}
		outputs = append(outputs, output)
	}
	return outputs, eris.Wrap(rows.Err(), "postgres: list enrichments iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, total int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, total, started_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(model.RunStatusRunning), total, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusRunning,
		Total:     total,
		StartedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, processed, failed int) error {
	status := model.RunStatusComplete
	if failed > 0 && processed == 0 {
		status = model.RunStatusFailed
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, processed = $2, failed = $3, updated_at = $4 WHERE id = $5`,
		string(status), processed, failed, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, total, processed, failed, started_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Status, &r.Total, &r.Processed, &r.Failed, &r.StartedAt, &r.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, eris.Errorf("run not found: %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return &r, nil
}

func (s *PostgresStore) AddDLQEntry(ctx context.Context, entry *resilience.DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO dead_letters (id, article_id, error, error_type, failed_stage, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
			error = EXCLUDED.error, error_type = EXCLUDED.error_type,
			retry_count = EXCLUDED.retry_count, next_retry_at = EXCLUDED.next_retry_at,
			last_failed_at = EXCLUDED.last_failed_at`,
		entry.ID, entry.ArticleID, entry.Error, entry.ErrorType, entry.FailedStage,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrapf(err, "postgres: add dlq entry %s", entry.ArticleID)
}

func (s *PostgresStore) ListDLQEntries(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, article_id, error, error_type, failed_stage, retry_count, max_retries, next_retry_at, created_at, last_failed_at FROM dead_letters WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}
	query += ` ORDER BY created_at`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dlq entries")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var stage *string
		if err := rows.Scan(&e.ID, &e.ArticleID, &e.Error, &e.ErrorType, &stage,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		if stage != nil {
			e.FailedStage = *stage
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list dlq iterate")
}

func (s *PostgresStore) DeleteDLQEntry(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM dead_letters WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete dlq entry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("dlq entry not found: %s", id)
	}
	return nil
}

type pgScannable interface {
	Scan(dest ...any) error
}

func scanPgArticle(row pgScannable) (*model.Article, error) {
	var a model.Article
	var url, body, content, source *string
	var publishedAt *time.Time

	err := row.Scan(&a.ID, &url, &a.Title, &body, &content, &source, &publishedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, eris.New("article not found")
		}
		return nil, eris.Wrap(err, "postgres: scan article")
	}

	if url != nil {
		a.URL = *url
	}
	if body != nil {
		a.Body = *body
	}
	if content != nil {
		a.Content = *content
	}
	if source != nil {
		a.Source = *source
	}
	a.PublishedAt = publishedAt
	return &a, nil
}
