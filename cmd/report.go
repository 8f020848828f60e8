package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/farol-news/sentinela-geo/internal/report"
	"github.com/farol-news/sentinela-geo/internal/store"
)

var (
	reportOutput string
	reportState  string
	reportCity   string
	reportLimit  int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export an XLSX coverage report of enrichment results",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("report"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		outputs, err := st.ListEnrichments(ctx, store.EnrichmentFilter{
			StateCode: reportState,
			CityID:    reportCity,
			Limit:     reportLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list enrichments")
		}
		if len(outputs) == 0 {
			zap.L().Info("no enrichments match the report filters")
			return nil
		}

		if err := report.WriteXLSX(reportOutput, outputs); err != nil {
			return err
		}

		zap.L().Info("report written",
			zap.String("path", reportOutput),
			zap.Int("articles", len(outputs)),
		)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportOutput, "out", "sentinela-report.xlsx", "output XLSX path")
	reportCmd.Flags().StringVar(&reportState, "state", "", "filter by primary city state code")
	reportCmd.Flags().StringVar(&reportCity, "city", "", "filter by primary city id")
	reportCmd.Flags().IntVar(&reportLimit, "limit", 1000, "max number of enrichments to include")
	rootCmd.AddCommand(reportCmd)
}
