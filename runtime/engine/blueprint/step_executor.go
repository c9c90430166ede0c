package blueprint

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BDNK1/autoflow/runtime"
	"github.com/BDNK1/autoflow/runtime/platform"
)

// Handler executes one step type. Handlers for container types run their
// nested steps through execution.RunSteps.
type Handler func(ctx context.Context, execution *runtime.Execution, step runtime.Step) (any, error)

// StepExecutor dispatches steps to the handler registered for their type.
type StepExecutor struct {
	l            *slog.Logger
	evaluator    runtime.ConditionEvaluator
	integrations *IntegrationRegistry
	catalog      platform.Catalog
	transport    runtime.Transport
	agents       runtime.AgentRegistry
	provider     runtime.AgentProvider
	cfg          Config

	handlers map[runtime.StepType]Handler
}

// StepDependencies are the collaborators used by the built-in handlers.
// Transport is required for action steps, Agents and Provider for
// agent_call steps; a missing one surfaces as a configuration error when a
// step needs it.
type StepDependencies struct {
	Evaluator    runtime.ConditionEvaluator `validate:"required"`
	Integrations *IntegrationRegistry       `validate:"required"`
	Catalog      platform.Catalog
	Transport    runtime.Transport
	Agents       runtime.AgentRegistry
	Provider     runtime.AgentProvider
}

func NewStepExecutor(l *slog.Logger, cfg Config, deps StepDependencies) (*StepExecutor, error) {
	if err := runtime.ValidateStruct(deps); err != nil {
		return nil, fmt.Errorf("invalid step executor dependencies: %w", err)
	}
	if l == nil {
		l = slog.Default()
	}

	e := &StepExecutor{
		l:            l,
		evaluator:    deps.Evaluator,
		integrations: deps.Integrations,
		catalog:      deps.Catalog,
		transport:    deps.Transport,
		agents:       deps.Agents,
		provider:     deps.Provider,
		cfg:          cfg,
	}
	e.handlers = map[runtime.StepType]Handler{
		runtime.StepAction:    e.handleAction,
		runtime.StepCondition: e.handleCondition,
		runtime.StepLoop:      e.handleLoop,
		runtime.StepDelay:     e.handleDelay,
		runtime.StepAgentCall: e.handleAgentCall,
	}
	return e, nil
}

// Register replaces the handler for a step type.
func (e *StepExecutor) Register(stepType runtime.StepType, h Handler) {
	e.handlers[stepType] = h
}

func (e *StepExecutor) ExecuteStep(ctx context.Context, execution *runtime.Execution, step runtime.Step) (any, error) {
	h, ok := e.handlers[step.Type]
	if !ok {
		return nil, runtime.NewValidationError(runtime.ErrorCodeUnknownStepType,
			fmt.Sprintf("unknown step type %q", step.Type), nil).WithStep(step.ID)
	}
	return h(ctx, execution, step)
}

func (e *StepExecutor) handleCondition(ctx context.Context, execution *runtime.Execution, step runtime.Step) (any, error) {
	cfg, err := runtime.DecodeStepConfig[runtime.ConditionConfig](step)
	if err != nil {
		return nil, err
	}

	result := e.evaluator.Evaluate(cfg.Expression, execution.Values())
	branch := cfg.IfFalse
	if result {
		branch = cfg.IfTrue
	}
	e.l.InfoContext(execution, fmt.Sprintf("Resolving condition: %s is %t", cfg.Expression, result),
		"step_id", step.ID,
		"branch_steps", len(branch))

	if err := execution.RunSteps(ctx, branch); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *StepExecutor) handleLoop(ctx context.Context, execution *runtime.Execution, step runtime.Step) (any, error) {
	cfg, err := runtime.DecodeStepConfig[runtime.LoopConfig](step)
	if err != nil {
		return nil, err
	}

	items, err := loopItems(cfg.Source, execution)
	if err != nil {
		return nil, runtime.NewValidationError(runtime.ErrorCodeInvalidLoopSource, err.Error(), nil).WithStep(step.ID)
	}

	e.l.InfoContext(execution, fmt.Sprintf("Looping over %d items", len(items)), "step_id", step.ID)
	for i, item := range items {
		execution.AddValue("loop_item", item)
		execution.AddValue("loop_index", i)
		if err := execution.RunSteps(ctx, cfg.Body); err != nil {
			return nil, err
		}
	}
	return map[string]any{"iterations": len(items)}, nil
}

// loopItems resolves a loop source: a "{{ref}}" template, a bare variable
// name or a literal array.
func loopItems(source any, execution *runtime.Execution) ([]any, error) {
	vars := execution.Values()
	resolved := runtime.Interpolate(source, vars)
	if name, ok := resolved.(string); ok {
		if v, found := execution.Variables.Get(name); found {
			resolved = v
		}
	}

	switch items := resolved.(type) {
	case []any:
		return items, nil
	case []string:
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out, nil
	case []map[string]any:
		out := make([]any, len(items))
		for i, m := range items {
			out[i] = m
		}
		return out, nil
	default:
		return nil, fmt.Errorf("loop source %v is %T, not an array", source, resolved)
	}
}

func (e *StepExecutor) handleDelay(ctx context.Context, execution *runtime.Execution, step runtime.Step) (any, error) {
	cfg, err := runtime.DecodeStepConfig[runtime.DelayConfig](step)
	if err != nil {
		return nil, err
	}

	d := time.Duration(cfg.Seconds * float64(time.Second))
	if d <= 0 {
		return nil, nil
	}
	e.l.InfoContext(execution, fmt.Sprintf("Delaying for %s", d), "step_id", step.ID)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, runtime.NewCancelledError(ctx.Err()).WithStep(step.ID)
	}
}
