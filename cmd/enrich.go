package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/farol-news/sentinela-geo/internal/model"
)

var (
	enrichArticleID string
	enrichFile      string
	enrichSave      bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a single article with its municipality mentions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if enrichArticleID == "" && enrichFile == "" {
			return eris.New("either --id or --file is required")
		}

		env, err := initPipeline(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		var article *model.Article
		if enrichFile != "" {
			article, err = readArticleFile(enrichFile)
			if err != nil {
				return err
			}
			if enrichSave {
				if err := env.Store.SaveArticle(ctx, article); err != nil {
					return err
				}
			}
		} else {
			article, err = env.Store.GetArticle(ctx, enrichArticleID)
			if err != nil {
				return err
			}
		}

		output, err := env.Service.EnrichArticle(ctx, article)
		if err != nil {
			if enrichArticleID != "" {
				if markErr := env.Store.MarkError(ctx, article.ID, err.Error()); markErr != nil {
					zap.L().Warn("mark error failed", zap.Error(markErr))
				}
			}
			return eris.Wrapf(err, "enrich article %s", article.ID)
		}

		if enrichSave || enrichArticleID != "" {
			if err := env.Store.MarkProcessed(ctx, article.ID, output); err != nil {
				return err
			}
		}

		encoded, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return eris.Wrap(err, "encode output")
		}
		fmt.Println(string(encoded))
		return nil
	},
}

func readArticleFile(path string) (*model.Article, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read article file %s", path)
	}
	var article model.Article
	if err := json.Unmarshal(raw, &article); err != nil {
		return nil, eris.Wrapf(err, "parse article file %s", path)
	}
	if article.Title == "" && article.Body == "" && article.Content == "" {
		return nil, eris.Errorf("article file %s has no text fields", path)
	}
	return &article, nil
}

func init() {
	enrichCmd.Flags().StringVar(&enrichArticleID, "id", "", "id of a stored article to enrich")
	enrichCmd.Flags().StringVar(&enrichFile, "file", "", "path to a JSON article file")
	enrichCmd.Flags().BoolVar(&enrichSave, "save", false, "persist the article and its result when enriching from --file")
	rootCmd.AddCommand(enrichCmd)
}
