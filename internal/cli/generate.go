package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"meal-plan-coordinator/internal/nutrition"
)

var (
	profilePath string
	jsonOutput  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a meal plan and shopping list for a profile",
	Long:  `Runs the full pipeline in the foreground and prints the result. The run is not persisted.`,
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&profilePath, "profile", "p", "", "Path to a profile JSON file")
	generateCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw artifact as JSON")
	generateCmd.MarkFlagRequired("profile")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	profile, err := loadProfile(profilePath)
	if err != nil {
		return err
	}

	application, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	artifact, err := application.GenerateOnce(cmd.Context(), profile)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(artifact)
	}
	fmt.Fprint(out, RenderArtifact(artifact))
	return nil
}

func loadProfile(path string) (nutrition.Profile, error) {
	var p nutrition.Profile
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	return p, nil
}
