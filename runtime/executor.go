package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// RunRequest identifies who a run is for. RunID is generated when empty.
type RunRequest struct {
	RunID  string         `json:"run_id,omitempty"`
	UserID string         `json:"user_id" validate:"required"`
	Inputs map[string]any `json:"inputs,omitempty"`
}

// Result is the outcome of a run.
type Result struct {
	RunID     string         `json:"run_id"`
	Status    RunStatus      `json:"status"`
	Success   bool           `json:"success"`
	Variables map[string]any `json:"variables"`
	Log       []LogEntry     `json:"log"`
	Error     string         `json:"error,omitempty"`
}

type ExecutorOption func(*executorOptions)

type executorOptions struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

func WithTracerProvider(tp trace.TracerProvider) ExecutorOption {
	return func(o *executorOptions) {
		o.tracerProvider = tp
	}
}

func WithMeterProvider(mp metric.MeterProvider) ExecutorOption {
	return func(o *executorOptions) {
		o.meterProvider = mp
	}
}

// Executor interprets blueprints. It owns the step loop, the per-step
// error policy and progress persistence, and delegates each step to a
// StepExecutor.
type Executor struct {
	l            *slog.Logger
	stepExecutor StepExecutor
	credentials  CredentialStore
	progress     ProgressSink
	tracer       trace.Tracer
	metrics      *engineMetrics
}

func NewExecutor(l *slog.Logger, stepExecutor StepExecutor, credentials CredentialStore, progress ProgressSink, opts ...ExecutorOption) (*Executor, error) {
	if stepExecutor == nil {
		return nil, errors.New("step executor is required")
	}
	if credentials == nil {
		return nil, errors.New("credential store is required")
	}
	if progress == nil {
		return nil, errors.New("progress sink is required")
	}
	if l == nil {
		l = slog.Default()
	}

	o := executorOptions{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	m, err := newEngineMetrics(o.meterProvider.Meter(instrumentationName))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return &Executor{
		l:            l,
		stepExecutor: stepExecutor,
		credentials:  credentials,
		progress:     progress,
		tracer:       o.tracerProvider.Tracer(instrumentationName),
		metrics:      m,
	}, nil
}

// Execute validates bp, loads the user's credentials once and runs every
// step in order. The returned error is the error that aborted the run; the
// Result is non-nil whenever the run started.
func (e *Executor) Execute(ctx context.Context, bp *Blueprint, req RunRequest) (*Result, error) {
	if err := bp.Validate(); err != nil {
		e.l.ErrorContext(ctx, "Blueprint validation failed", "error", err)
		return nil, err
	}

	records, err := e.credentials.ActiveCredentials(ctx, req.UserID)
	if err != nil {
		e.l.ErrorContext(ctx, "Failed to load credentials",
			"blueprint_id", bp.ID,
			"user_id", req.UserID,
			"error", err)
		return nil, NewConfigurationError(ErrorCodeStore, "failed to load credentials", err)
	}

	ctx, span := e.tracer.Start(ctx, "blueprint.run", trace.WithAttributes(
		attribute.String("blueprint.id", bp.ID),
		attribute.String("user.id", req.UserID),
		attribute.Int("blueprint.steps", len(bp.Steps)),
	))
	defer span.End()

	exec := NewExecution(ctx, bp, req.RunID, req.UserID, records, req.Inputs)
	exec.runner = e
	span.SetAttributes(attribute.String("run.id", exec.ID))

	e.l.InfoContext(exec, fmt.Sprintf("Starting blueprint: %s", bp.ID),
		"run_id", exec.ID,
		"user_id", exec.UserID,
		"steps", len(bp.Steps),
		"platforms", len(exec.Credentials))
	e.persist(exec, exec, RunRunning, nil)

	runErr := e.runSteps(exec, exec, bp.Steps, true)

	status := RunCompleted
	switch {
	case runErr == nil:
	case IsCancelled(runErr):
		status = RunCancelled
	default:
		status = RunFailed
	}
	e.persist(exec, exec, status, runErr)
	e.metrics.recordRun(exec, bp.ID, status)

	result := &Result{
		RunID:     exec.ID,
		Status:    status,
		Success:   runErr == nil,
		Variables: exec.Values(),
		Log:       exec.Log(),
	}
	if runErr != nil {
		result.Error = runErr.Error()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, string(status))
		e.l.ErrorContext(exec, fmt.Sprintf("Blueprint %s: %s", status, bp.ID),
			"run_id", exec.ID,
			"error", runErr)
		return result, runErr
	}

	e.l.InfoContext(exec, fmt.Sprintf("Blueprint completed: %s", bp.ID), "run_id", exec.ID)
	return result, nil
}

// RunSteps implements StepRunner for nested step lists (condition branches
// and loop bodies).
func (e *Executor) RunSteps(ctx context.Context, execution *Execution, steps []Step) error {
	return e.runSteps(ctx, execution, steps, false)
}

func (e *Executor) runSteps(ctx context.Context, execution *Execution, steps []Step, topLevel bool) error {
	for i, s := range steps {
		if topLevel {
			execution.setCurrentStep(i)
		}
		if err := e.runStep(ctx, execution, i, s); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) runStep(ctx context.Context, execution *Execution, index int, step Step) error {
	attrs := []any{
		"run_id", execution.ID,
		"blueprint_id", execution.Blueprint.ID,
		"step_id", step.ID,
		"step_type", step.Type,
	}

	if err := ctx.Err(); err != nil {
		cancelled := NewCancelledError(err).WithStep(step.ID)
		e.l.WarnContext(execution, fmt.Sprintf("Run cancelled before step: %s", step.Label()), attrs...)
		return cancelled
	}

	execution.appendLog(newLogEntry(index, step, StepRunning, nil, nil))
	e.l.InfoContext(execution, fmt.Sprintf("Running step: %s", step.Label()), attrs...)

	output, err := e.invoke(ctx, execution, step)
	if err != nil && step.Policy() == OnErrorRetry && !IsCancelled(err) {
		e.l.WarnContext(execution, fmt.Sprintf("Retrying step: %s", step.Label()), append(attrs, "error", err)...)
		output, err = e.invoke(ctx, execution, step)
		if fe, ok := AsFlowError(err); ok {
			fe.Retries++
		}
	}

	if err == nil {
		execution.appendLog(newLogEntry(index, step, StepCompleted, output, nil))
		e.l.InfoContext(execution, fmt.Sprintf("Completed step: %s", step.Label()), attrs...)
		e.persist(ctx, execution, RunRunning, nil)
		return nil
	}

	err = annotate(err, step.ID)
	execution.appendLog(newLogEntry(index, step, StepFailed, nil, err))

	if step.Policy() == OnErrorContinue && !IsCancelled(err) {
		e.l.WarnContext(execution, fmt.Sprintf("Step failed, continuing: %s", step.Label()), append(attrs, "error", err)...)
		e.persist(ctx, execution, RunRunning, nil)
		return nil
	}

	e.l.ErrorContext(execution, fmt.Sprintf("Step failed: %s", step.Label()), append(attrs, "error", err)...)
	e.persist(ctx, execution, RunRunning, nil)
	return err
}

func (e *Executor) invoke(ctx context.Context, execution *Execution, step Step) (any, error) {
	ctx, span := e.tracer.Start(ctx, "step."+string(step.Type), trace.WithAttributes(
		attribute.String("step.id", step.ID),
		attribute.String("step.type", string(step.Type)),
	))
	defer span.End()

	start := time.Now()
	output, err := e.stepExecutor.ExecuteStep(ctx, execution, step)
	status := StepCompleted
	if err != nil {
		status = StepFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	e.metrics.recordStep(ctx, step, status, time.Since(start))
	return output, err
}

// persist upserts the run's progress. Failures are logged and never abort
// the run; the write is detached from cancellation so a cancelled run is
// still recorded.
func (e *Executor) persist(ctx context.Context, execution *Execution, status RunStatus, runErr error) {
	if err := e.progress.SaveProgress(context.WithoutCancel(ctx), execution.Snapshot(status, runErr)); err != nil {
		e.metrics.persistFails.Add(ctx, 1)
		e.l.ErrorContext(execution, "Failed to persist progress",
			"run_id", execution.ID,
			"status", status,
			"error", err)
	}
}

func newLogEntry(index int, step Step, status StepStatus, output any, err error) LogEntry {
	entry := LogEntry{
		Step:      index,
		StepID:    step.ID,
		Name:      step.Label(),
		Type:      step.Type,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Output:    output,
	}
	switch status {
	case StepRunning:
		entry.Message = fmt.Sprintf("Running %s", step.Label())
	case StepCompleted:
		entry.Message = fmt.Sprintf("Completed %s", step.Label())
	case StepFailed:
		entry.Message = fmt.Sprintf("Failed %s", step.Label())
	}
	if err != nil {
		entry.Error = err.Error()
	}
	return entry
}

func annotate(err error, stepID string) error {
	if fe, ok := AsFlowError(err); ok {
		fe.WithStep(stepID)
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewCancelledError(err).WithStep(stepID)
	}
	return fmt.Errorf("error executing step %s: %w", stepID, err)
}
