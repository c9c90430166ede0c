package runtime

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/BDNK1/autoflow/runtime"

type engineMetrics struct {
	runs         metric.Int64Counter
	steps        metric.Int64Counter
	stepDuration metric.Float64Histogram
	persistFails metric.Int64Counter
}

func newEngineMetrics(m metric.Meter) (*engineMetrics, error) {
	runs, err1 := m.Int64Counter("autoflow.runs",
		metric.WithDescription("Blueprint runs by final status"))
	steps, err2 := m.Int64Counter("autoflow.steps",
		metric.WithDescription("Executed steps by type and status"))
	stepDuration, err3 := m.Float64Histogram("autoflow.step.duration",
		metric.WithDescription("Step execution time"),
		metric.WithUnit("s"))
	persistFails, err4 := m.Int64Counter("autoflow.progress.persist_failures",
		metric.WithDescription("Progress upserts that failed"))

	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, err
	}
	return &engineMetrics{
		runs:         runs,
		steps:        steps,
		stepDuration: stepDuration,
		persistFails: persistFails,
	}, nil
}

func (m *engineMetrics) recordRun(ctx context.Context, blueprintID string, status RunStatus) {
	m.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("blueprint_id", blueprintID),
		attribute.String("status", string(status)),
	))
}

func (m *engineMetrics) recordStep(ctx context.Context, step Step, status StepStatus, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("step_type", string(step.Type)),
		attribute.String("status", string(status)),
	)
	m.steps.Add(ctx, 1, attrs)
	m.stepDuration.Record(ctx, elapsed.Seconds(), attrs)
}
