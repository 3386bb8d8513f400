// Package telemetry defines logging/metrics/tracing interfaces, grounded on
// the teacher's runtime/agent/telemetry package: a small
// Logger/Metrics/Tracer/Span surface with a no-op implementation and a
// goa.design/clue-backed implementation. No other package of this
// repository imports it; the engines, executor and CLI do not log, meter
// or trace through it.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger emits structured log lines. keyvals follows the
// key1, value1, key2, value2, ... convention the teacher's ClueLogger
// also accepts.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics records counters, timers, and gauges. tags follows the same
// key1, value1, ... convention as Logger's keyvals.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, d time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer starts and retrieves spans.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span is the subset of an OTEL span the runtime needs.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, keyvals ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}
