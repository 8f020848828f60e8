package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/farol-news/sentinela-geo/internal/resilience"
)

var dlqErrorType string

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and retry failed batch articles",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead letter entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("batch"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		entries, err := st.ListDLQEntries(ctx, resilience.DLQFilter{ErrorType: dlqErrorType})
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("dead letter queue is empty")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  article=%s  type=%s  retries=%d/%d  next_retry=%s\n  %s\n",
				e.ID, e.ArticleID, e.ErrorType, e.RetryCount, e.MaxRetries,
				e.NextRetryAt.Format(time.RFC3339), e.Error)
		}
		return nil
	},
}

var dlqRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-enrich retryable dead letter articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := env.Store.ListDLQEntries(ctx, resilience.DLQFilter{ErrorType: resilience.ErrorTypeTransient})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		var retried, succeeded int
		for _, entry := range entries {
			if !entry.CanRetry() || entry.NextRetryAt.After(now) {
				continue
			}
			retried++
			log := zap.L().With(zap.String("article_id", entry.ArticleID))

			article, err := env.Store.GetArticle(ctx, entry.ArticleID)
			if err != nil {
				log.Warn("dlq article missing, dropping entry", zap.Error(err))
				_ = env.Store.DeleteDLQEntry(ctx, entry.ID)
				continue
			}

			output, err := env.Service.EnrichArticle(ctx, article)
			if err != nil {
				entry.RetryCount++
				entry.Error = err.Error()
				entry.ErrorType = resilience.Classify(err)
				entry.LastFailedAt = now
				entry.NextRetryAt = now.Add(time.Duration(entry.RetryCount) * 5 * time.Minute)
				if saveErr := env.Store.AddDLQEntry(ctx, &entry); saveErr != nil {
					log.Warn("update dlq entry failed", zap.Error(saveErr))
				}
				log.Warn("retry failed", zap.Int("retry_count", entry.RetryCount), zap.Error(err))
				continue
			}

			if err := env.Store.MarkProcessed(ctx, article.ID, output); err != nil {
				log.Warn("persist retried enrichment failed", zap.Error(err))
				continue
			}
			if err := env.Store.DeleteDLQEntry(ctx, entry.ID); err != nil {
				log.Warn("delete dlq entry failed", zap.Error(err))
			}
			succeeded++
			log.Info("retry succeeded")
		}

		zap.L().Info("dlq retry complete", zap.Int("retried", retried), zap.Int("succeeded", succeeded))
		return nil
	},
}

func init() {
	dlqListCmd.Flags().StringVar(&dlqErrorType, "type", "", "filter by error type (transient|permanent)")
	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqRetryCmd)
	rootCmd.AddCommand(dlqCmd)
}
