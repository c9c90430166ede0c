package cmd

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BDNK1/autoflow/cli/internal/security"
	"github.com/BDNK1/autoflow/runtime"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Validate blueprint files",
	Long: `Validate parses and checks blueprints without running them. With no
arguments every blueprint in the configured blueprints directory is checked.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	loader := runtime.NewFileLoader()

	var blueprints []runtime.Blueprint
	if len(args) == 0 {
		if cfg.Engine.BlueprintsDir == "" {
			return errors.New("no blueprints directory configured and no files given")
		}
		loaded, err := loader.LoadDir(cfg.Engine.BlueprintsDir)
		if err != nil {
			return err
		}
		for _, bp := range loaded {
			blueprints = append(blueprints, bp)
		}
		sort.Slice(blueprints, func(i, j int) bool { return blueprints[i].ID < blueprints[j].ID })
	} else {
		for _, arg := range args {
			path, err := security.Resolve(projectDir, arg)
			if err != nil {
				return err
			}
			bp, err := loader.Load(path)
			if err != nil {
				return fmt.Errorf("%s: %w", arg, err)
			}
			blueprints = append(blueprints, bp)
		}
	}

	failed := 0
	for _, bp := range blueprints {
		if err := bp.Validate(); err != nil {
			failed++
			fmt.Fprintf(out, "✗ %s: %v\n", bp.ID, err)
			continue
		}
		fmt.Fprintf(out, "✓ %s (%d steps)\n", bp.ID, len(bp.Steps))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d blueprints are invalid", failed, len(blueprints))
	}
	return nil
}
