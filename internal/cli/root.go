// Package cli wires the command line entry points.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"meal-plan-coordinator/internal/app"
	"meal-plan-coordinator/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "meal-planner",
	Short:         "Meal plan run coordinator",
	Long:          `Generates meal plans with priced shopping lists and serves run status over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, generateCmd, runsCleanupCmd, metricsCleanupCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return app.New(ctx, cfg)
}
