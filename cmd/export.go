package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jvl-group/leadradar/internal/export"
)

var (
	exportFormats   []string
	exportPriority  string
	exportCountries []string
	exportSegments  []string
	exportStacks    []string
	exportMinScore  int
)

// exportCmd renders reports from the current in-memory store. Mostly useful
// after `scan --no-export`, or against a store repopulated from the archive.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write lead reports in the selected formats",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer env.Close()

		files, err := env.Exporter.Export(exportFormats, exportFiltersFromFlags())
		if err != nil {
			return err
		}
		for _, f := range files {
			zap.L().Info("report written", zap.String("type", f.Type), zap.String("path", f.Path))
		}
		return nil
	},
}

func exportFiltersFromFlags() export.Filters {
	return export.Filters{
		Priority:  exportPriority,
		Countries: exportCountries,
		Segments:  exportSegments,
		Stacks:    exportStacks,
		MinScore:  exportMinScore,
	}
}

func init() {
	exportCmd.Flags().StringSliceVar(&exportFormats, "format", []string{"csv", "md"}, "formats: csv, md, jsonl, xlsx")
	for _, c := range []*cobra.Command{exportCmd, scanCmd} {
		c.Flags().StringVar(&exportPriority, "priority", "", "filter by priority class")
		c.Flags().StringSliceVar(&exportCountries, "filter-countries", nil, "filter by ISO2 countries")
		c.Flags().StringSliceVar(&exportSegments, "filter-segments", nil, "filter by segments")
		c.Flags().StringSliceVar(&exportStacks, "filter-stacks", nil, "filter by stack tags")
		c.Flags().IntVar(&exportMinScore, "min-score", 0, "minimum score")
	}
	rootCmd.AddCommand(exportCmd)
}
