package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/farol-news/sentinela-geo/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sentinela-geo",
	Short: "Geographic enrichment engine for Brazilian news articles",
	Long:  "Recognizes municipality mentions in article text, disambiguates them against the IBGE gazetteer and ranks a primary city per article.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
