package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nikahq/nika/internal/telemetry"
)

// These exercise the clue-backed constructors against the global OTEL
// providers (the default no-op ones when nothing has called
// otel.Set*Provider), verifying the adapters are wired correctly rather
// than asserting on exported telemetry data.

func TestClueLoggerAcceptsKeyvals(t *testing.T) {
	logger := telemetry.NewClueLogger()
	assert.NotPanics(t, func() {
		logger.Info(context.Background(), "task started", "task_id", "a", "verb", "exec")
		logger.Warn(context.Background(), "retrying", "attempt", 2)
	})
}

func TestClueMetricsRecordsAgainstDefaultMeter(t *testing.T) {
	metrics := telemetry.NewClueMetrics()
	assert.NotPanics(t, func() {
		metrics.IncCounter("nika.tasks.completed", 1, "verb", "exec")
		metrics.RecordTimer("nika.tasks.duration_seconds", 0, "verb", "invoke")
		metrics.RecordGauge("nika.tasks.running", 2)
	})
}

func TestClueTracerStartsAndEndsSpan(t *testing.T) {
	tracer := telemetry.NewClueTracer()
	ctx, span := tracer.Start(context.Background(), "task.run")
	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() {
		span.AddEvent("dispatch", "verb", "exec")
		span.End()
	})
}
