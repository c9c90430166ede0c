package runtime

import "context"

// BlueprintLoader loads blueprint definitions from files.
type BlueprintLoader interface {
	Extensions() []string
	Load(filePath string) (Blueprint, error)
}

// ConditionEvaluator evaluates condition-step expressions. Implementations
// never fail: anything they cannot evaluate is false.
type ConditionEvaluator interface {
	Evaluate(expression string, vars map[string]any) bool
}

// StepExecutor executes a single step. The explicit ctx carries the run's
// cancellation; the *Execution carries the mutable state shared by all steps.
// The returned output is recorded in the run log.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, execution *Execution, step Step) (output any, err error)
}

// StepRunner runs a nested list of steps with the same logging, error
// policy and persistence as top-level steps.
type StepRunner interface {
	RunSteps(ctx context.Context, execution *Execution, steps []Step) error
}
