package main

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/farol-news/sentinela-geo/internal/model"
	"github.com/farol-news/sentinela-geo/internal/store"
)

var importFilePath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import articles from a JSON lines file into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		articles, err := readArticleLines(importFilePath)
		if err != nil {
			return err
		}
		if len(articles) == 0 {
			zap.L().Info("no articles in file", zap.String("file", importFilePath))
			return nil
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		// Postgres gets a single bulk round trip; SQLite inserts one by one.
		if ps, ok := st.(*store.PostgresStore); ok {
			n, err := ps.ImportArticles(ctx, articles)
			if err != nil {
				return eris.Wrap(err, "bulk import")
			}
			zap.L().Info("import complete", zap.Int64("imported", n), zap.String("file", importFilePath))
			return nil
		}

		for i := range articles {
			if err := st.SaveArticle(ctx, &articles[i]); err != nil {
				return eris.Wrapf(err, "save article %d", i)
			}
		}
		zap.L().Info("import complete", zap.Int("imported", len(articles)), zap.String("file", importFilePath))
		return nil
	},
}

// readArticleLines parses one JSON article per line, tolerating blank lines.
func readArticleLines(path string) ([]model.Article, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open articles file %s", path)
	}
	defer f.Close()

	var articles []model.Article
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var article model.Article
		if err := json.Unmarshal(raw, &article); err != nil {
			return nil, eris.Wrapf(err, "parse article at line %d", line)
		}
		articles = append(articles, article)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "read articles file %s", path)
	}
	return articles, nil
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to JSON lines article file (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
