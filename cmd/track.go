package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jvl-group/leadradar/internal/tracker"
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Inspect outreach engagement",
}

var trackStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-token open and event counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		trk, err := tracker.NewSQLite(cfg.Tracker.DBPath)
		if err != nil {
			return err
		}
		defer trk.Close()
		if err := trk.Migrate(cmd.Context()); err != nil {
			return err
		}

		stats, err := trk.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			fmt.Println("no tracked tokens")
			return nil
		}
		for _, s := range stats {
			fmt.Printf("%s  company=%s  opens=%d  events=%d\n", s.Token, s.CompanyID, s.Opens, s.Events)
		}
		return nil
	},
}

func init() {
	trackCmd.AddCommand(trackStatsCmd)
	rootCmd.AddCommand(trackCmd)
}
