package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest installs a meter provider backed by a manual reader.
func setupMetricsTest(t *testing.T) *sdkmetric.ManualReader {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(original)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown meter provider: %v", err)
		}
	})
	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterTotal sums every data point of an int64 counter.
func counterTotal(t *testing.T, rm *metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	require.NotNil(t, m, "metric %s not found", name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", name)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewMetricsRecorder(t *testing.T) {
	setupMetricsTest(t)

	recorder := NewMetricsRecorder()

	require.NotNil(t, recorder)
	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop)
}

func TestRecordBatch(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordBatch(ctx, 10, 2, 15*time.Millisecond)
	m.RecordBatch(ctx, 5, 0, 5*time.Millisecond)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(13), counterTotal(t, rm, "parallelkit.items.processed"))
	assert.Equal(t, int64(2), counterTotal(t, rm, "parallelkit.items.failed"))

	latency := findMetric(rm, "parallelkit.batch.latency_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
}

func TestRecordRun(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	m.RecordRun(context.Background(), true, true, time.Second)

	rm := collectMetrics(t, reader)
	runs := findMetric(rm, "parallelkit.runs")
	require.NotNil(t, runs)
	sum := runs.Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)

	resumed, ok := sum.DataPoints[0].Attributes.Value(attribute.Key("resumed"))
	require.True(t, ok)
	assert.True(t, resumed.AsBool())
}

func TestRecordCheckpointSave(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCheckpointSave(ctx, "embed", 2048, nil)
	m.RecordCheckpointSave(ctx, "embed", 0, errors.New("disk full"))

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), counterTotal(t, rm, "parallelkit.checkpoint.saves"))
	assert.Equal(t, int64(1), counterTotal(t, rm, "parallelkit.checkpoint.errors"))

	size := findMetric(rm, "parallelkit.checkpoint.size_bytes")
	require.NotNil(t, size)
	hist := size.Data.(metricdata.Histogram[int64])
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, int64(2048), hist.DataPoints[0].Sum)
}

func TestRecordCheckpointLoad(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCheckpointLoad(ctx, "embed", true, nil)
	m.RecordCheckpointLoad(ctx, "embed", false, nil)
	m.RecordCheckpointLoad(ctx, "embed", false, errors.New("corrupt"))

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(2), counterTotal(t, rm, "parallelkit.checkpoint.loads"))
	assert.Equal(t, int64(1), counterTotal(t, rm, "parallelkit.checkpoint.errors"))
}

func TestRecordCheckpointDelete(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCheckpointDelete(ctx, "embed", 3, nil)
	m.RecordCheckpointDelete(ctx, "embed", 0, nil)
	m.RecordCheckpointDelete(ctx, "embed", 1, errors.New("permission denied"))

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(2), counterTotal(t, rm, "parallelkit.checkpoint.deletes"))
	assert.Equal(t, int64(1), counterTotal(t, rm, "parallelkit.checkpoint.errors"))
}

func TestRecordDeadLetter(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	m.RecordDeadLetter(context.Background(), 3)
	m.RecordDeadLetter(context.Background(), 0)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(3), counterTotal(t, rm, "parallelkit.dlq.items"))
}

func TestNoopMetrics(t *testing.T) {
	var m MetricsRecorder = NoopMetrics{}
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordBatch(ctx, 1, 0, time.Millisecond)
		m.RecordRun(ctx, true, false, time.Second)
		m.RecordCheckpointSave(ctx, "x", 1, nil)
		m.RecordCheckpointLoad(ctx, "x", false, nil)
		m.RecordCheckpointDelete(ctx, "x", 0, nil)
		m.RecordDeadLetter(ctx, 1)
	})
}
