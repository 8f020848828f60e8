package main

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/farol-news/sentinela-geo/internal/enrich"
	"github.com/farol-news/sentinela-geo/internal/model"
	"github.com/farol-news/sentinela-geo/internal/resilience"
	"github.com/farol-news/sentinela-geo/internal/store"
)

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Enrich all pending articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		articles, err := env.Store.ListPendingArticles(ctx, batchLimit)
		if err != nil {
			return eris.Wrap(err, "list pending articles")
		}

		return processBatch(ctx, env.Store, env.Service, articles, cfg.Batch.MaxConcurrentArticles)
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 500, "max number of articles to process")
	rootCmd.AddCommand(batchCmd)
}

// processBatch enriches articles concurrently, recording progress on a run
// and parking failures in the dead letter queue.
func processBatch(ctx context.Context, st store.Store, svc *enrich.Service, articles []model.Article, concurrency int) error {
	if len(articles) == 0 {
		zap.L().Info("no pending articles")
		return nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	run, err := st.CreateRun(ctx, len(articles))
	if err != nil {
		return eris.Wrap(err, "create run")
	}

	zap.L().Info("processing batch",
		zap.String("run_id", run.ID),
		zap.Int("articles", len(articles)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for i := range articles {
		article := articles[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			log := zap.L().With(zap.String("article_id", article.ID))

			output, err := svc.EnrichArticle(gctx, &article)
			if err != nil {
				failed.Add(1)
				log.Error("enrichment failed", zap.Error(err))
				recordFailure(gctx, st, article.ID, err)
				return nil // individual failures do not abort the batch
			}

			if err := st.MarkProcessed(gctx, article.ID, output); err != nil {
				failed.Add(1)
				log.Error("persist enrichment failed", zap.Error(err))
				recordFailure(gctx, st, article.ID, err)
				return nil
			}

			succeeded.Add(1)
			primary := "none"
			if output.PrimaryCity != nil {
				primary = output.PrimaryCity.Name
			}
			log.Info("article enriched",
				zap.String("primary_city", primary),
				zap.Int("mentioned", len(output.MentionedCities)),
			)
			return nil
		})
	}

	waitErr := g.Wait()

	if err := st.CompleteRun(ctx, run.ID, int(succeeded.Load()), int(failed.Load())); err != nil {
		zap.L().Warn("complete run failed", zap.Error(err))
	}

	zap.L().Info("batch complete",
		zap.String("run_id", run.ID),
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)

	if waitErr != nil {
		return eris.Wrap(waitErr, "batch interrupted")
	}
	return nil
}

// recordFailure marks the article as errored and adds a dead letter entry
// so transient failures can be retried later.
func recordFailure(ctx context.Context, st store.Store, articleID string, cause error) {
	if err := st.MarkError(ctx, articleID, cause.Error()); err != nil {
		zap.L().Warn("mark error failed", zap.String("article_id", articleID), zap.Error(err))
	}

	now := time.Now().UTC()
	entry := &resilience.DLQEntry{
		ArticleID:    articleID,
		Error:        cause.Error(),
		ErrorType:    resilience.Classify(cause),
		FailedStage:  "enrich",
		MaxRetries:   cfg.Batch.MaxRetries,
		NextRetryAt:  now.Add(5 * time.Minute),
		LastFailedAt: now,
	}
	if err := st.AddDLQEntry(ctx, entry); err != nil {
		zap.L().Warn("add dlq entry failed", zap.String("article_id", articleID), zap.Error(err))
	}
}
