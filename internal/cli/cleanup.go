package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runsCleanupCmd = &cobra.Command{
	Use:   "runs-cleanup",
	Short: "Delete expired run records and diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer application.Close()

		n, err := application.CleanupRuns(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired run entries.\n", n)
		return nil
	},
}

var cleanupDays int

var metricsCleanupCmd = &cobra.Command{
	Use:   "metrics-cleanup",
	Short: "Delete old execution metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cleanupDays < 1 {
			return fmt.Errorf("--days must be at least 1")
		}
		application, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer application.Close()

		n, err := application.CleanupMetrics(cmd.Context(), cleanupDays)
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Successfully removed %d old metric records.\n", n)
		return nil
	},
}

func init() {
	metricsCleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "Keep records for the last N days")
}
