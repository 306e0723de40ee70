package otelx

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments recorded by the orchestration core.
type Metrics struct {
	MessagesRouted metric.Int64Counter
	TasksCreated   metric.Int64Counter
	TasksCompleted metric.Int64Counter
	TasksFailed    metric.Int64Counter
	TasksActive    metric.Int64UpDownCounter
	JobRuns        metric.Int64Counter
	JobRunErrors   metric.Int64Counter
	JobRunDuration metric.Float64Histogram
}

// NewMetrics creates the core instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.MessagesRouted, err = meter.Int64Counter("seopilot.messages.routed",
		metric.WithDescription("Messages routed between agents"))
	if err != nil {
		return nil, fmt.Errorf("create messages counter: %w", err)
	}

	m.TasksCreated, err = meter.Int64Counter("seopilot.tasks.created",
		metric.WithDescription("Tasks created"))
	if err != nil {
		return nil, fmt.Errorf("create tasks created counter: %w", err)
	}

	m.TasksCompleted, err = meter.Int64Counter("seopilot.tasks.completed",
		metric.WithDescription("Tasks completed successfully"))
	if err != nil {
		return nil, fmt.Errorf("create tasks completed counter: %w", err)
	}

	m.TasksFailed, err = meter.Int64Counter("seopilot.tasks.failed",
		metric.WithDescription("Tasks that ended in error"))
	if err != nil {
		return nil, fmt.Errorf("create tasks failed counter: %w", err)
	}

	m.TasksActive, err = meter.Int64UpDownCounter("seopilot.tasks.active",
		metric.WithDescription("Tasks currently processing"))
	if err != nil {
		return nil, fmt.Errorf("create tasks active counter: %w", err)
	}

	m.JobRuns, err = meter.Int64Counter("seopilot.job.runs",
		metric.WithDescription("Scheduled job executions"))
	if err != nil {
		return nil, fmt.Errorf("create job runs counter: %w", err)
	}

	m.JobRunErrors, err = meter.Int64Counter("seopilot.job.run.errors",
		metric.WithDescription("Scheduled job executions that failed"))
	if err != nil {
		return nil, fmt.Errorf("create job run errors counter: %w", err)
	}

	m.JobRunDuration, err = meter.Float64Histogram("seopilot.job.run.duration",
		metric.WithDescription("Job execution duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create job run duration histogram: %w", err)
	}

	return m, nil
}

// RecordMessage records a routed message for the given sender.
func (m *Metrics) RecordMessage(ctx context.Context, from string) {
	if m == nil {
		return
	}
	m.MessagesRouted.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", from)))
}

// RecordJobRun records one job execution and its outcome.
func (m *Metrics) RecordJobRun(ctx context.Context, jobType string, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("type", jobType))
	m.JobRuns.Add(ctx, 1, attrs)
	m.JobRunDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.JobRunErrors.Add(ctx, 1, attrs)
	}
}
