package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/codes"

	"github.com/nikahq/nika/internal/telemetry"
)

func TestNoopLoggerDiscardsMessages(t *testing.T) {
	logger := telemetry.NewNoopLogger()
	assert.NotPanics(t, func() {
		logger.Debug(context.Background(), "debug", "k", "v")
		logger.Info(context.Background(), "info")
		logger.Warn(context.Background(), "warn", "k", 1)
		logger.Error(context.Background(), "error", "err", errors.New("boom"))
	})
}

func TestNoopMetricsDiscardsMeasurements(t *testing.T) {
	metrics := telemetry.NewNoopMetrics()
	assert.NotPanics(t, func() {
		metrics.IncCounter("tasks.completed", 1, "verb", "exec")
		metrics.RecordTimer("tasks.duration", 10*time.Millisecond, "verb", "fetch")
		metrics.RecordGauge("tasks.running", 3)
	})
}

func TestNoopTracerReturnsUsableSpan(t *testing.T) {
	tracer := telemetry.NewNoopTracer()
	ctx, span := tracer.Start(context.Background(), "task.run")
	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() {
		span.AddEvent("started")
		span.SetStatus(codes.Ok, "")
		span.RecordError(errors.New("boom"))
		span.End()
	})

	same := tracer.Span(ctx)
	assert.NotNil(t, same)
}
