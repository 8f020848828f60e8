package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farol-news/sentinela-geo/internal/model"
	"github.com/farol-news/sentinela-geo/internal/resilience"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgresSaveArticle(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO articles").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	article := &model.Article{Title: "Obras em Natal"}
	require.NoError(t, s.SaveArticle(context.Background(), article))
	assert.NotEmpty(t, article.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetArticle(t *testing.T) {
	s, mock := newMockStore(t)
	published := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, url, title, body, content, source, published_at FROM articles").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "url", "title", "body", "content", "source", "published_at"},
		).AddRow("a1", ptr("https://example.com/a1"), "Obras em Natal",
			ptr("corpo"), (*string)(nil), ptr("diario"), &published))

	got, err := s.GetArticle(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "Obras em Natal", got.Title)
	assert.Equal(t, "corpo", got.Body)
	assert.Empty(t, got.Content)
	require.NotNil(t, got.PublishedAt)
	assert.True(t, got.PublishedAt.Equal(published))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetArticleNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, url, title, body, content, source, published_at FROM articles").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetArticle(context.Background(), "missing")
	assert.ErrorContains(t, err, "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkProcessed(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrichments").
		WithArgs("a1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE articles SET status").
		WithArgs(model.ArticleStatusProcessed, pgxmock.AnyArg(), "a1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	output := &model.EnrichmentOutput{
		ArticleID:   "a1",
		PrimaryCity: &model.AggregatedCity{CityID: "2408102", StateCode: "RN"},
	}
	require.NoError(t, s.MarkProcessed(context.Background(), "a1", output))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkProcessedUnknownArticle(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrichments").
		WithArgs("missing", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE articles SET status").
		WithArgs(model.ArticleStatusProcessed, pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.MarkProcessed(context.Background(), "missing", &model.EnrichmentOutput{ArticleID: "missing"})
	assert.ErrorContains(t, err, "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE articles SET status").
		WithArgs(model.ArticleStatusError, "ner timeout", pgxmock.AnyArg(), "a1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.MarkError(context.Background(), "a1", "ner timeout"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListPendingArticles(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, url, title, body, content, source, published_at FROM articles").
		WithArgs(model.ArticleStatusPending, 50).
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "url", "title", "body", "content", "source", "published_at"},
		).
			AddRow("a1", (*string)(nil), "primeira", (*string)(nil), (*string)(nil), (*string)(nil), (*time.Time)(nil)).
			AddRow("a2", (*string)(nil), "segunda", (*string)(nil), (*string)(nil), (*string)(nil), (*time.Time)(nil)))

	articles, err := s.ListPendingArticles(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "primeira", articles[0].Title)
	assert.Equal(t, "segunda", articles[1].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetEnrichment(t *testing.T) {
	s, mock := newMockStore(t)

	output := model.EnrichmentOutput{
		ArticleID:   "a1",
		PrimaryCity: &model.AggregatedCity{CityID: "2408102", Name: "Natal", StateCode: "RN"},
	}
	payload, err := json.Marshal(output)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM enrichments").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := s.GetEnrichment(context.Background(), "a1")
	require.NoError(t, err)
	require.NotNil(t, got.PrimaryCity)
	assert.Equal(t, "Natal", got.PrimaryCity.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListEnrichmentsAppliesFilters(t *testing.T) {
	s, mock := newMockStore(t)

	payload, err := json.Marshal(model.EnrichmentOutput{ArticleID: "a1"})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT payload FROM enrichments WHERE true AND state_code = \$1 AND primary_city = \$2`).
		WithArgs("RN", "2408102", 100).
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))

	outputs, err := s.ListEnrichments(context.Background(), EnrichmentFilter{
		StateCode: "RN",
		CityID:    "2408102",
	})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "a1", outputs[0].ArticleID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRunLifecycle(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(pgxmock.AnyArg(), string(model.RunStatusRunning), 10, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), 10)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	mock.ExpectExec("UPDATE runs SET status").
		WithArgs(string(model.RunStatusComplete), 8, 2, pgxmock.AnyArg(), run.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.CompleteRun(context.Background(), run.ID, 8, 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompleteRunAllFailed(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE runs SET status").
		WithArgs(string(model.RunStatusFailed), 0, 5, pgxmock.AnyArg(), "r1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.CompleteRun(context.Background(), "r1", 0, 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetRun(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, status, total, processed, failed, started_at, updated_at FROM runs").
		WithArgs("r1").
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "status", "total", "processed", "failed", "started_at", "updated_at"},
		).AddRow("r1", model.RunStatusComplete, 10, 8, 2, now, now))

	run, err := s.GetRun(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 8, run.Processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDLQEntries(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO dead_letters").
		WithArgs(pgxmock.AnyArg(), "a1", "boom", resilience.ErrorTypeTransient, "extract",
			1, 3, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	entry := &resilience.DLQEntry{
		ArticleID:    "a1",
		Error:        "boom",
		ErrorType:    resilience.ErrorTypeTransient,
		FailedStage:  "extract",
		RetryCount:   1,
		MaxRetries:   3,
		NextRetryAt:  now,
		LastFailedAt: now,
	}
	require.NoError(t, s.AddDLQEntry(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)

	mock.ExpectQuery("SELECT id, article_id, error, error_type").
		WithArgs(resilience.ErrorTypeTransient, 100).
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "article_id", "error", "error_type", "failed_stage",
				"retry_count", "max_retries", "next_retry_at", "created_at", "last_failed_at"},
		).AddRow(entry.ID, "a1", "boom", resilience.ErrorTypeTransient, ptr("extract"),
			1, 3, now, now, now))

	entries, err := s.ListDLQEntries(context.Background(), resilience.DLQFilter{
		ErrorType: resilience.ErrorTypeTransient,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "extract", entries[0].FailedStage)

	mock.ExpectExec("DELETE FROM dead_letters").
		WithArgs(entry.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.DeleteDLQEntry(context.Background(), entry.ID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresImportArticles(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_articles"}, []string{
		"id", "url", "title", "body", "content", "source", "published_at",
		"status", "created_at", "updated_at",
	}).WillReturnResult(2)
	mock.ExpectExec("INSERT INTO \"articles\"").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	articles := []model.Article{
		{Title: "primeira"},
		{Title: "segunda"},
	}
	n, err := s.ImportArticles(context.Background(), articles)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NotEmpty(t, articles[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func ptr(s string) *string { return &s }
