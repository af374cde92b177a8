package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jvl-group/leadradar/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "leadradar",
	Short: "Industrial automation lead pipeline",
	Long:  "Scans vendor and fieldbus-organization directories for companies, merges and enriches them into deduplicated leads, scores their fit for MAC motor integrations and exports prioritized outreach reports.",
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
