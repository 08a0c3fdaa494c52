package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTracingTest(t *testing.T) (*tracetest.SpanRecorder, SpanManager) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return recorder, NewSpanManagerWithProvider(tp)
}

func TestSpanManager_RunAndBatch(t *testing.T) {
	recorder, sm := setupTracingTest(t)

	ctx, runSpan := sm.StartRunSpan(context.Background(), "embed", "run-1", 100)
	_, batchSpan := sm.StartBatchSpan(ctx, 0, 10)
	sm.EndSpanWithError(batchSpan, nil)
	sm.EndSpanWithError(runSpan, errors.New("3 items failed"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	batch, run := spans[0], spans[1]
	assert.Equal(t, "parallelkit.batch", batch.Name())
	assert.Equal(t, run.SpanContext().SpanID(), batch.Parent().SpanID())
	assert.Equal(t, codes.Ok, batch.Status().Code)

	assert.Equal(t, "parallelkit.run", run.Name())
	assert.Equal(t, codes.Error, run.Status().Code)
	assert.Contains(t, run.Attributes(), attribute.String("run.id", "run-1"))
	assert.Contains(t, run.Attributes(), attribute.Int("run.total_items", 100))
	assert.Len(t, run.Events(), 1)
}

func TestSpanManager_AddSpanEvent(t *testing.T) {
	recorder, sm := setupTracingTest(t)

	ctx, span := sm.StartRunSpan(context.Background(), "embed", "run-1", 1)
	sm.AddSpanEvent(ctx, "checkpoint.saved", attribute.Int("completed", 5))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "checkpoint.saved", spans[0].Events()[0].Name)
}

func TestAddSpanEvent_NoSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		AddSpanEvent(context.Background(), "nothing")
		EndSpanWithError(nil, nil)
	})
}

func TestNoopSpanManager(t *testing.T) {
	var sm SpanManager = NoopSpanManager{}
	ctx := context.Background()

	got, span := sm.StartRunSpan(ctx, "x", "y", 1)
	assert.Equal(t, ctx, got)
	assert.NotPanics(t, func() {
		_, batch := sm.StartBatchSpan(got, 0, 1)
		sm.EndSpanWithError(batch, errors.New("ignored"))
		sm.EndSpanWithError(span, nil)
	})
}
