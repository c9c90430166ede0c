package cmd

import (
	"github.com/spf13/cobra"
)

var projectDir string

var rootCmd = &cobra.Command{
	Use:   "autoflow",
	Short: "Autoflow - automation blueprint engine",
	Long: `Autoflow runs declarative automation blueprints: ordered steps that call
third-party integrations, branch on conditions, loop, wait and ask LLM agents.

Configuration is read from autoflow.yaml in the project directory.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory containing autoflow.yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(evalCmd)
}
