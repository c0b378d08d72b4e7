package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/docflow/internal/feedback"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Inspect and export the verification feedback log",
}

var feedbackStatsCmd = &cobra.Command{
	Use:   "stats [operator]",
	Short: "Show feedback statistics over the rolling window",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		c := feedback.New(cfg.Feedback)
		if len(args) == 1 {
			stats, err := c.OperatorStats(args[0])
			if err != nil {
				return err
			}
			return printJSON(stats)
		}
		stats, err := c.GlobalStats()
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var feedbackExportCmd = &cobra.Command{
	Use:   "export <output.jsonl>",
	Short: "Export approved high-confidence entries as training records",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		c := feedback.New(cfg.Feedback)
		n, err := c.ExportForTraining(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("exported %d training records to %s\n", n, args[0])
		return nil
	},
}

func init() {
	feedbackCmd.AddCommand(feedbackStatsCmd, feedbackExportCmd)
	rootCmd.AddCommand(feedbackCmd)
}
