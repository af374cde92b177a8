package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jvl-group/leadradar/internal/archive"
	"github.com/jvl-group/leadradar/internal/jobs"
)

var archiveDeep bool

// archiveCmd runs the pipeline and snapshots every lead to PostgreSQL
// instead of writing report files.
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Run the pipeline and snapshot leads to PostgreSQL",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Archive.DatabaseURL == "" {
			return eris.New("archive: archive.database_url is not configured")
		}

		ctx := cmd.Context()
		env, err := initPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		pool, err := archive.Connect(ctx, cfg.Archive.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		arc := archive.New(pool)
		if err := arc.Migrate(ctx); err != nil {
			return err
		}

		if _, err := env.Orch.StartScan(ctx, jobs.ScanRequest{
			Countries:    scanCountries,
			Sources:      scanSources,
			SinceMonths:  scanSinceMonths,
			MaxPerSource: scanMaxPerSource,
		}); err != nil {
			return err
		}
		if _, err := env.Walker.Shallow(ctx); err != nil {
			return err
		}
		if _, err := env.Scorer.Pass(ctx); err != nil {
			return err
		}
		if archiveDeep {
			if _, err := env.Walker.Deep(ctx, deepOptions()); err != nil {
				return err
			}
			if _, err := env.Scorer.Pass(ctx); err != nil {
				return err
			}
		}

		n, err := arc.SnapshotAll(ctx, env.Store.All())
		if err != nil {
			return err
		}
		zap.L().Info("archive complete", zap.Int("snapshots", n))
		return nil
	},
}

func init() {
	archiveCmd.Flags().StringSliceVar(&scanCountries, "countries", []string{"EU_EEA_PLUS"}, "ISO2 country codes or region aliases")
	archiveCmd.Flags().StringSliceVar(&scanSources, "sources", []string{"ALL"}, "source names or ALL")
	archiveCmd.Flags().IntVar(&scanSinceMonths, "since-months", 18, "recency window passed to adapters")
	archiveCmd.Flags().IntVar(&scanMaxPerSource, "max-per-source", 300, "candidate cap per source and country")
	archiveCmd.Flags().BoolVar(&archiveDeep, "deep", false, "run deep enrichment before snapshotting")
	rootCmd.AddCommand(archiveCmd)
}
