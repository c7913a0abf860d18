package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a tracer for the given name
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan starts a new span from context
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// StartDBSpan starts a span for local store operations
func StartDBSpan(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("DB %s %s", operation, table),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "sqlite"),
			attribute.String("db.operation", operation),
			attribute.String("db.sql.table", table),
		),
	)
}

// StartServiceSpan starts a span for service operations
func StartServiceSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.component", service),
			attribute.String("service.operation", operation),
		),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SyncMetrics holds capture and drain metrics
type SyncMetrics struct {
	captureCount  metric.Int64Counter
	drainSuccess  metric.Int64Counter
	drainFailure  metric.Int64Counter
	drainDuration metric.Float64Histogram
	pendingDepth  metric.Int64UpDownCounter
}

// NewSyncMetrics creates metrics instruments for the capture queue
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter(instrumentationName)

	captureCount, err := meter.Int64Counter(
		"capture.count",
		metric.WithDescription("Total number of capture records enqueued"),
		metric.WithUnit("{records}"),
	)
	if err != nil {
		return nil, err
	}

	drainSuccess, err := meter.Int64Counter(
		"sync.drain.succeeded",
		metric.WithDescription("Records confirmed by the verification service"),
		metric.WithUnit("{records}"),
	)
	if err != nil {
		return nil, err
	}

	drainFailure, err := meter.Int64Counter(
		"sync.drain.failed",
		metric.WithDescription("Submission attempts left pending after a drain pass"),
		metric.WithUnit("{records}"),
	)
	if err != nil {
		return nil, err
	}

	drainDuration, err := meter.Float64Histogram(
		"sync.drain.duration",
		metric.WithDescription("Drain pass duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	pendingDepth, err := meter.Int64UpDownCounter(
		"queue.pending.depth",
		metric.WithDescription("Number of records currently pending sync"),
		metric.WithUnit("{records}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		captureCount:  captureCount,
		drainSuccess:  drainSuccess,
		drainFailure:  drainFailure,
		drainDuration: drainDuration,
		pendingDepth:  pendingDepth,
	}, nil
}

// RecordCapture counts one enqueued capture record
func (m *SyncMetrics) RecordCapture(ctx context.Context) {
	if m == nil {
		return
	}
	m.captureCount.Add(ctx, 1)
	m.pendingDepth.Add(ctx, 1)
}

// RecordDrain counts the outcome of one drain pass
func (m *SyncMetrics) RecordDrain(ctx context.Context, succeeded, failed int, durationMs float64) {
	if m == nil {
		return
	}
	m.drainSuccess.Add(ctx, int64(succeeded))
	m.drainFailure.Add(ctx, int64(failed))
	m.drainDuration.Record(ctx, durationMs)
	m.pendingDepth.Add(ctx, -int64(succeeded))
}
