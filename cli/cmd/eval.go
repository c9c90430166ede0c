package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/BDNK1/autoflow/runtime/expression"
	"github.com/spf13/cobra"
)

var evalVars string

var evalCmd = &cobra.Command{
	Use:   "eval <expression>",
	Short: "Evaluate a condition expression",
	Long: `Eval runs a condition expression through the same sanitizer and evaluator
used by condition steps and prints true or false.

Example:
  autoflow eval "count > 3 && status == 'open'" --vars '{"count": 5, "status": "open"}'
`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVar(&evalVars, "vars", "", "Variables as a JSON object")
}

func runEval(cmd *cobra.Command, args []string) error {
	vars := map[string]any{}
	if evalVars != "" {
		if err := json.Unmarshal([]byte(evalVars), &vars); err != nil {
			return fmt.Errorf("invalid --vars: %w", err)
		}
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	result, err := expression.NewEvaluator(newLogger(cfg.Log, cmd.ErrOrStderr())).Eval(args[0], vars)
	fmt.Fprintln(cmd.OutOrStdout(), result)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "expression evaluates to false: %v\n", err)
	}
	return nil
}
