// Package blueprint wires the blueprint interpreter to its step handlers,
// the platform resolver and the shared integration state.
package blueprint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/BDNK1/autoflow/runtime"
	"github.com/BDNK1/autoflow/runtime/expression"
	"github.com/BDNK1/autoflow/runtime/platform"
)

var ErrBlueprintNotFound = errors.New("blueprint not found")

// Dependencies are the adapters the engine runs against.
type Dependencies struct {
	Credentials runtime.CredentialStore `validate:"required"`
	Progress    runtime.ProgressSink    `validate:"required"`
	Transport   runtime.Transport
	Agents      runtime.AgentRegistry
	Provider    runtime.AgentProvider
	// Catalog overrides Config.CatalogPath.
	Catalog platform.Catalog
}

type Option func(*engineOptions)

type engineOptions struct {
	executor []runtime.ExecutorOption
	registry []RegistryOption
}

func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(o *engineOptions) {
		if tp != nil {
			o.executor = append(o.executor, runtime.WithTracerProvider(tp))
		}
		if mp != nil {
			o.executor = append(o.executor, runtime.WithMeterProvider(mp))
		}
	}
}

func WithRegistryOptions(opts ...RegistryOption) Option {
	return func(o *engineOptions) {
		o.registry = append(o.registry, opts...)
	}
}

// Engine owns the registered blueprints and runs them.
type Engine struct {
	l            *slog.Logger
	executor     *runtime.Executor
	steps        *StepExecutor
	integrations *IntegrationRegistry
	evaluator    *expression.Evaluator

	mu         sync.RWMutex
	blueprints map[string]runtime.Blueprint
}

func New(l *slog.Logger, cfg Config, deps Dependencies, opts ...Option) (*Engine, error) {
	if err := runtime.ValidateStruct(deps); err != nil {
		return nil, fmt.Errorf("invalid engine dependencies: %w", err)
	}
	if l == nil {
		l = slog.Default()
	}
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	catalog := deps.Catalog
	if catalog == nil && cfg.CatalogPath != "" {
		loaded, err := platform.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load platform catalog: %w", err)
		}
		catalog = loaded
		l.Info(fmt.Sprintf("Loaded platform catalog: %d platforms", len(catalog)), "path", cfg.CatalogPath)
	}

	agents := deps.Agents
	if agents != nil && cfg.AgentCacheTTL > 0 {
		agents = NewCachedAgentRegistry(agents, cfg.AgentCacheTTL)
	}

	evaluator := expression.NewEvaluator(l)
	integrations := NewIntegrationRegistry(l, cfg, o.registry...)

	steps, err := NewStepExecutor(l, cfg, StepDependencies{
		Evaluator:    evaluator,
		Integrations: integrations,
		Catalog:      catalog,
		Transport:    deps.Transport,
		Agents:       agents,
		Provider:     deps.Provider,
	})
	if err != nil {
		return nil, err
	}

	executor, err := runtime.NewExecutor(l, steps, deps.Credentials, deps.Progress, o.executor...)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		l:            l,
		executor:     executor,
		steps:        steps,
		integrations: integrations,
		evaluator:    evaluator,
		blueprints:   make(map[string]runtime.Blueprint),
	}

	if cfg.BlueprintsDir != "" {
		blueprints, err := runtime.NewFileLoader().LoadDir(cfg.BlueprintsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load blueprints: %w", err)
		}
		for _, bp := range blueprints {
			if err := e.Register(bp); err != nil {
				return nil, err
			}
		}
		l.Info(fmt.Sprintf("Loaded %d blueprints", len(blueprints)), "dir", cfg.BlueprintsDir)
	}

	return e, nil
}

// Register validates bp and makes it runnable by id, replacing any
// blueprint with the same id.
func (e *Engine) Register(bp runtime.Blueprint) error {
	if err := bp.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.blueprints[bp.ID] = bp
	e.mu.Unlock()
	return nil
}

func (e *Engine) Blueprint(id string) (runtime.Blueprint, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	bp, ok := e.blueprints[id]
	return bp, ok
}

// Blueprints returns the registered blueprints sorted by id.
func (e *Engine) Blueprints() []runtime.Blueprint {
	e.mu.RLock()
	out := make([]runtime.Blueprint, 0, len(e.blueprints))
	for _, bp := range e.blueprints {
		out = append(out, bp)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Run executes bp directly, without registering it.
func (e *Engine) Run(ctx context.Context, bp *runtime.Blueprint, req runtime.RunRequest) (*runtime.Result, error) {
	return e.executor.Execute(ctx, bp, req)
}

// RunByID executes a registered blueprint.
func (e *Engine) RunByID(ctx context.Context, id string, req runtime.RunRequest) (*runtime.Result, error) {
	bp, ok := e.Blueprint(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlueprintNotFound, id)
	}
	return e.executor.Execute(ctx, &bp, req)
}

// Evaluate checks a condition expression against vars, exposing the
// reason an expression evaluates to false because it was rejected.
func (e *Engine) Evaluate(expr string, vars map[string]any) (bool, error) {
	return e.evaluator.Eval(expr, vars)
}

func (e *Engine) Integrations() []IntegrationStatus {
	return e.integrations.Status()
}

// Steps exposes the step executor so callers can replace the handlers of
// built-in step types.
func (e *Engine) Steps() *StepExecutor {
	return e.steps
}
