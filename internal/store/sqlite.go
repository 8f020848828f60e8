package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/farol-news/sentinela-geo/internal/model"
	"github.com/farol-news/sentinela-geo/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS articles (
	id           TEXT PRIMARY KEY,
	url          TEXT,
	title        TEXT NOT NULL,
	body         TEXT,
	content      TEXT,
	source       TEXT,
	published_at DATETIME,
	status       TEXT NOT NULL DEFAULT 'pending',
	error        TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS enrichments (
	article_id    TEXT PRIMARY KEY REFERENCES articles(id),
	primary_city  TEXT,
	state_code    TEXT,
	payload       TEXT NOT NULL,
	enriched_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'running',
	total      INTEGER NOT NULL DEFAULT 0,
	processed  INTEGER NOT NULL DEFAULT 0,
	failed     INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS dead_letters (
	id             TEXT PRIMARY KEY,
	article_id     TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	failed_stage   TEXT,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_failed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status);
CREATE INDEX IF NOT EXISTS idx_enrichments_state ON enrichments(state_code);
CREATE INDEX IF NOT EXISTS idx_enrichments_city ON enrichments(primary_city);
CREATE INDEX IF NOT EXISTS idx_dead_letters_type ON dead_letters(error_type);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveArticle(ctx context.Context, article *model.Article) error {
	if article.ID == "" {
		article.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO articles (id, url, title, body, content, source, published_at, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			url = excluded.url, title = excluded.title, body = excluded.body,
			content = excluded.content, source = excluded.source,
			published_at = excluded.published_at, updated_at = excluded.updated_at`,
		article.ID, article.URL, article.Title, article.Body, article.Content,
		article.Source, article.PublishedAt, model.ArticleStatusPending, now, now,
	)
	return eris.Wrapf(err, "sqlite: save article %s", article.ID)
}

func (s *SQLiteStore) GetArticle(ctx context.Context, id string) (*model.Article, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, title, body, content, source, published_at FROM articles WHERE id = ?`, id)
	return scanArticle(row)
}

func (s *SQLiteStore) ListPendingArticles(ctx context.Context, limit int) ([]model.Article, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, title, body, content, source, published_at FROM articles
		 WHERE status = ? ORDER BY created_at LIMIT ?`,
		model.ArticleStatusPending, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending articles")
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, eris.Wrap(rows.Err(), "sqlite: list pending iterate")
}

func (s *SQLiteStore) MarkProcessed(ctx context.Context, articleID string, output *model.EnrichmentOutput) error {
	payload, err := json.Marshal(output)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal enrichment")
	}

	var primaryCity, stateCode sql.NullString
	if output.PrimaryCity != nil {
		primaryCity = sql.NullString{String: output.PrimaryCity.CityID, Valid: true}
		stateCode = sql.NullString{String: output.PrimaryCity.StateCode, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO enrichments (article_id, primary_city, state_code, payload, enriched_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(article_id) DO UPDATE SET
			primary_city = excluded.primary_city, state_code = excluded.state_code,
			payload = excluded.payload, enriched_at = excluded.enriched_at`,
		articleID, primaryCity, stateCode, string(payload), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save enrichment %s", articleID)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE articles SET status = ?, error = NULL, updated_at = ? WHERE id = ?`,
		model.ArticleStatusProcessed, time.Now().UTC(), articleID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark processed %s", articleID)
	}
	if err := checkRowsAffected(res, "article", articleID); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) MarkError(ctx context.Context, articleID string, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		model.ArticleStatusError, message, time.Now().UTC(), articleID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark error %s", articleID)
	}
	return checkRowsAffected(res, "article", articleID)
}

func (s *SQLiteStore) GetEnrichment(ctx context.Context, articleID string) (*model.EnrichmentOutput, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM enrichments WHERE article_id = ?`, articleID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("enrichment not found: %s", articleID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get enrichment")
	}

	var output model.EnrichmentOutput
	if err := json.Unmarshal([]byte(payload), &output); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal enrichment")
	}
	return &output, nil
}

func (s *SQLiteStore) ListEnrichments(ctx context.Context, filter EnrichmentFilter) ([]model.EnrichmentOutput, error) {
	query := `SELECT payload FROM enrichments WHERE 1=1`
	var args []any

	if filter.StateCode != "" {
		query += ` AND state_code = ?`
		args = append(args, filter.StateCode)
	}
	if filter.CityID != "" {
		query += ` AND primary_city = ?`
		args = append(args, filter.CityID)
	}
	query += ` ORDER BY enriched_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list enrichments")
	}
	defer rows.Close()

	var outputs []model.EnrichmentOutput
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan enrichment")
		}
		var output model.EnrichmentOutput
		if err := json.Unmarshal([]byte(payload), &output); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal enrichment")
		}
		outputs = append(outputs, output)
	}
	return outputs, eris.Wrap(rows.Err(), "sqlite: list enrichments iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, total int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, total, started_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(model.RunStatusRunning), total, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusRunning,
		Total:     total,
		StartedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, processed, failed int) error {
	status := model.RunStatusComplete
	if failed > 0 && processed == 0 {
		status = model.RunStatusFailed
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, processed = ?, failed = ?, updated_at = ? WHERE id = ?`,
		string(status), processed, failed, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, total, processed, failed, started_at, updated_at FROM runs WHERE id = ?`,
		runID,
	).Scan(&r.ID, &r.Status, &r.Total, &r.Processed, &r.Failed, &r.StartedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run")
	}
	return &r, nil
}

func (s *SQLiteStore) AddDLQEntry(ctx context.Context, entry *resilience.DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letters (id, article_id, error, error_type, failed_stage, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			error = excluded.error, error_type = excluded.error_type,
			retry_count = excluded.retry_count, next_retry_at = excluded.next_retry_at,
			last_failed_at = excluded.last_failed_at`,
		entry.ID, entry.ArticleID, entry.Error, entry.ErrorType, entry.FailedStage,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrapf(err, "sqlite: add dlq entry %s", entry.ArticleID)
}

func (s *SQLiteStore) ListDLQEntries(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, article_id, error, error_type, failed_stage, retry_count, max_retries, next_retry_at, created_at, last_failed_at FROM dead_letters WHERE 1=1`
	var args []any

	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY created_at`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dlq entries")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var stage sql.NullString
		if err := rows.Scan(&e.ID, &e.ArticleID, &e.Error, &e.ErrorType, &stage,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		e.FailedStage = stage.String
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list dlq iterate")
}

func (s *SQLiteStore) DeleteDLQEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete dlq entry %s", id)
	}
	return checkRowsAffected(res, "dlq entry", id)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanArticle(row scannable) (*model.Article, error) {
	var a model.Article
	var url, body, content, source sql.NullString
	var publishedAt sql.NullTime

	err := row.Scan(&a.ID, &url, &a.Title, &body, &content, &source, &publishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.New("article not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan article")
	}

	a.URL = url.String
	a.Body = body.String
	a.Content = content.String
	a.Source = source.String
	if publishedAt.Valid {
		t := publishedAt.Time
		a.PublishedAt = &t
	}
	return &a, nil
}
