package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records parallelkit metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordBatch records a completed batch.
	RecordBatch(ctx context.Context, size, failed int, duration time.Duration)

	// RecordRun records a run completion.
	RecordRun(ctx context.Context, success, resumed bool, duration time.Duration)

	// RecordCheckpointSave records a checkpoint write and its size.
	RecordCheckpointSave(ctx context.Context, name string, sizeBytes int64, err error)

	// RecordCheckpointLoad records a checkpoint read. found is false for
	// an absent checkpoint.
	RecordCheckpointLoad(ctx context.Context, name string, found bool, err error)

	// RecordCheckpointDelete records a checkpoint removal and the number
	// of files it removed.
	RecordCheckpointDelete(ctx context.Context, name string, removed int, err error)

	// RecordDeadLetter records items handed to a dead-letter queue.
	RecordDeadLetter(ctx context.Context, count int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	itemsProcessed  metric.Int64Counter
	itemsFailed     metric.Int64Counter
	batchLatency    metric.Float64Histogram
	runs            metric.Int64Counter
	runLatency      metric.Float64Histogram
	checkpointSaves metric.Int64Counter
	checkpointLoads metric.Int64Counter
	checkpointDels  metric.Int64Counter
	checkpointSize  metric.Int64Histogram
	checkpointErrs  metric.Int64Counter
	deadLetters     metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("parallelkit")
	m := &otelMetrics{}
	var err error

	if m.itemsProcessed, err = meter.Int64Counter("parallelkit.items.processed",
		metric.WithDescription("Number of items processed successfully"),
	); err != nil {
		return nil, err
	}
	if m.itemsFailed, err = meter.Int64Counter("parallelkit.items.failed",
		metric.WithDescription("Number of items that exhausted their attempts"),
	); err != nil {
		return nil, err
	}
	if m.batchLatency, err = meter.Float64Histogram("parallelkit.batch.latency_ms",
		metric.WithDescription("Batch latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.runs, err = meter.Int64Counter("parallelkit.runs",
		metric.WithDescription("Number of parallel runs"),
	); err != nil {
		return nil, err
	}
	if m.runLatency, err = meter.Float64Histogram("parallelkit.run.latency_ms",
		metric.WithDescription("Run latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.checkpointSaves, err = meter.Int64Counter("parallelkit.checkpoint.saves",
		metric.WithDescription("Number of checkpoint writes"),
	); err != nil {
		return nil, err
	}
	if m.checkpointLoads, err = meter.Int64Counter("parallelkit.checkpoint.loads",
		metric.WithDescription("Number of checkpoint reads"),
	); err != nil {
		return nil, err
	}
	if m.checkpointDels, err = meter.Int64Counter("parallelkit.checkpoint.deletes",
		metric.WithDescription("Number of checkpoint deletions"),
	); err != nil {
		return nil, err
	}
	if m.checkpointSize, err = meter.Int64Histogram("parallelkit.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if m.checkpointErrs, err = meter.Int64Counter("parallelkit.checkpoint.errors",
		metric.WithDescription("Number of failed checkpoint operations"),
	); err != nil {
		return nil, err
	}
	if m.deadLetters, err = meter.Int64Counter("parallelkit.dlq.items",
		metric.WithDescription("Number of items sent to a dead-letter queue"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordBatch records a completed batch.
func (m *otelMetrics) RecordBatch(ctx context.Context, size, failed int, duration time.Duration) {
	m.itemsProcessed.Add(ctx, int64(size-failed))
	if failed > 0 {
		m.itemsFailed.Add(ctx, int64(failed))
	}
	m.batchLatency.Record(ctx, float64(duration.Milliseconds()))
}

// RecordRun records a run completion.
func (m *otelMetrics) RecordRun(ctx context.Context, success, resumed bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.Bool("success", success),
		attribute.Bool("resumed", resumed),
	)
	m.runs.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordCheckpointSave records a checkpoint write.
func (m *otelMetrics) RecordCheckpointSave(ctx context.Context, name string, sizeBytes int64, err error) {
	if err != nil {
		m.checkpointErrs.Add(ctx, 1, metric.WithAttributes(
			attribute.String("checkpoint", name),
			attribute.String("operation", "save"),
		))
		return
	}
	attrs := metric.WithAttributes(attribute.String("checkpoint", name))
	m.checkpointSaves.Add(ctx, 1, attrs)
	m.checkpointSize.Record(ctx, sizeBytes, attrs)
}

// RecordCheckpointLoad records a checkpoint read.
func (m *otelMetrics) RecordCheckpointLoad(ctx context.Context, name string, found bool, err error) {
	if err != nil {
		m.checkpointErrs.Add(ctx, 1, metric.WithAttributes(
			attribute.String("checkpoint", name),
			attribute.String("operation", "load"),
		))
		return
	}
	m.checkpointLoads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("checkpoint", name),
		attribute.Bool("found", found),
	))
}

// RecordCheckpointDelete records a checkpoint removal. found is false
// when nothing existed under name.
func (m *otelMetrics) RecordCheckpointDelete(ctx context.Context, name string, removed int, err error) {
	if err != nil {
		m.checkpointErrs.Add(ctx, 1, metric.WithAttributes(
			attribute.String("checkpoint", name),
			attribute.String("operation", "delete"),
		))
		return
	}
	m.checkpointDels.Add(ctx, 1, metric.WithAttributes(
		attribute.String("checkpoint", name),
		attribute.Bool("found", removed > 0),
	))
}

// RecordDeadLetter records items sent to a DLQ.
func (m *otelMetrics) RecordDeadLetter(ctx context.Context, count int) {
	if count <= 0 {
		return
	}
	m.deadLetters.Add(ctx, int64(count))
}
