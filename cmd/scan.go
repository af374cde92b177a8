package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jvl-group/leadradar/internal/jobs"
)

var (
	scanCountries    []string
	scanSources      []string
	scanSinceMonths  int
	scanMaxPerSource int
	scanDeep         bool
	scanFormats      []string
	scanNoExport     bool
)

// scanCmd runs the whole pipeline in one shot: scan, enrich, optionally
// deep-enrich, score, export.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run the full pipeline once and export reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, !scanNoExport)
		if err != nil {
			return err
		}
		defer env.Close()

		jobID, err := env.Orch.StartScan(ctx, jobs.ScanRequest{
			Countries:    scanCountries,
			Sources:      scanSources,
			SinceMonths:  scanSinceMonths,
			MaxPerSource: scanMaxPerSource,
		})
		if err != nil {
			return err
		}
		zap.L().Info("scan complete", zap.String("job_id", jobID), zap.Int("leads", env.Store.Len()))

		if _, err := env.Walker.Shallow(ctx); err != nil {
			return err
		}
		env.Orch.Jobs().SetStatus(jobID, jobs.StatusEnriched)

		// First scoring pass establishes priorities for target selection.
		if _, err := env.Scorer.Pass(ctx); err != nil {
			return err
		}

		if scanDeep {
			if _, err := env.Walker.Deep(ctx, deepOptions()); err != nil {
				return err
			}
			// Rescore with the tags the deep walk discovered.
			if _, err := env.Scorer.Pass(ctx); err != nil {
				return err
			}
		}
		env.Orch.Jobs().SetStatus(jobID, jobs.StatusScored)

		if scanNoExport {
			return nil
		}
		files, err := env.Exporter.Export(scanFormats, exportFiltersFromFlags())
		if err != nil {
			return err
		}
		for _, f := range files {
			zap.L().Info("report written", zap.String("type", f.Type), zap.String("path", f.Path))
		}
		env.Orch.Jobs().SetStatus(jobID, jobs.StatusExported)
		return nil
	},
}

func init() {
	scanCmd.Flags().StringSliceVar(&scanCountries, "countries", []string{"EU_EEA_PLUS"}, "ISO2 country codes or region aliases")
	scanCmd.Flags().StringSliceVar(&scanSources, "sources", []string{"ALL"}, "source names or ALL")
	scanCmd.Flags().IntVar(&scanSinceMonths, "since-months", 18, "recency window passed to adapters")
	scanCmd.Flags().IntVar(&scanMaxPerSource, "max-per-source", 300, "candidate cap per source and country")
	scanCmd.Flags().BoolVar(&scanDeep, "deep", false, "run deep enrichment on HOT/WARM leads")
	scanCmd.Flags().StringSliceVar(&scanFormats, "format", []string{"csv", "md"}, "export formats: csv, md, jsonl, xlsx")
	scanCmd.Flags().BoolVar(&scanNoExport, "no-export", false, "skip the export step")
	rootCmd.AddCommand(scanCmd)
}
