package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/BDNK1/autoflow/cli/internal/security"
	"github.com/BDNK1/autoflow/runtime"
	"github.com/spf13/cobra"
)

var (
	runUserID     string
	runID         string
	runInputs     map[string]string
	runInputsJSON string
)

var runCmd = &cobra.Command{
	Use:   "run <blueprint-id | file>",
	Short: "Run a blueprint once and print the result",
	Long: `Run executes a single blueprint, either one registered from the blueprints
directory (by id) or a YAML/JSON file inside the project directory.

Example:
  autoflow run welcome --user u1 --input channel=C123
  autoflow run blueprints/digest.yaml --user u1 --inputs '{"limit": 5}'
`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runUserID, "user", "", "User whose credentials the run uses")
	runCmd.Flags().StringVar(&runID, "run-id", "", "Run id (generated when empty)")
	runCmd.Flags().StringToStringVar(&runInputs, "input", nil, "Input variable as key=value (repeatable)")
	runCmd.Flags().StringVar(&runInputsJSON, "inputs", "", "Input variables as a JSON object")
	_ = runCmd.MarkFlagRequired("user")
}

func parseInputs(kv map[string]string, raw string) (map[string]any, error) {
	inputs := make(map[string]any, len(kv))
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
			return nil, fmt.Errorf("invalid --inputs: %w", err)
		}
	}
	for k, v := range kv {
		inputs[k] = v
	}
	return inputs, nil
}

func isBlueprintFile(arg string) bool {
	switch strings.ToLower(filepath.Ext(arg)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func runRun(cmd *cobra.Command, args []string) error {
	inputs, err := parseInputs(runInputs, runInputsJSON)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	s, err := newStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close(cmd.Context())

	req := runtime.RunRequest{RunID: runID, UserID: runUserID, Inputs: inputs}

	var (
		result *runtime.Result
		runErr error
	)
	if isBlueprintFile(args[0]) {
		path, err := security.Resolve(projectDir, args[0])
		if err != nil {
			return err
		}
		bp, err := runtime.NewFileLoader().Load(path)
		if err != nil {
			return err
		}
		result, runErr = s.engine.Run(ctx, &bp, req)
	} else {
		result, runErr = s.engine.RunByID(ctx, args[0], req)
	}
	if result == nil {
		return runErr
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if runErr != nil {
		return fmt.Errorf("run %s %s: %w", result.RunID, result.Status, runErr)
	}
	return nil
}
