package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// GradingMetrics are the runner's instruments. They record into whatever
// meter provider is installed, the global no-op one when none is. A nil
// *GradingMetrics records nothing.
type GradingMetrics struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	retries  metric.Int64Counter
	inflight metric.Int64UpDownCounter
	duration metric.Float64Histogram
}

func NewGradingMetrics() (*GradingMetrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &GradingMetrics{}
	var err error

	if m.calls, err = meter.Int64Counter("grading_calls_total",
		metric.WithDescription("Grader calls made, including retries"),
		metric.WithUnit("{call}")); err != nil {
		return nil, err
	}
	if m.failures, err = meter.Int64Counter("grading_failures_total",
		metric.WithDescription("Questions recorded as failed to grade"),
		metric.WithUnit("{question}")); err != nil {
		return nil, err
	}
	if m.retries, err = meter.Int64Counter("grading_retries_total",
		metric.WithDescription("Grader calls retried after a transient failure"),
		metric.WithUnit("{call}")); err != nil {
		return nil, err
	}
	if m.inflight, err = meter.Int64UpDownCounter("grading_inflight",
		metric.WithDescription("Grader calls currently in flight"),
		metric.WithUnit("{call}")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("grading_call_duration_seconds",
		metric.WithDescription("Latency of a single grader call"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return m, nil
}

func typeAttr(questionType string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("question_type", questionType))
}

func (m *GradingMetrics) CallStarted(ctx context.Context, questionType string) {
	if m == nil {
		return
	}
	m.calls.Add(ctx, 1, typeAttr(questionType))
	m.inflight.Add(ctx, 1)
}

func (m *GradingMetrics) CallFinished(ctx context.Context, questionType string, seconds float64) {
	if m == nil {
		return
	}
	m.inflight.Add(ctx, -1)
	m.duration.Record(ctx, seconds, typeAttr(questionType))
}

func (m *GradingMetrics) Retried(ctx context.Context, questionType string) {
	if m == nil {
		return
	}
	m.retries.Add(ctx, 1, typeAttr(questionType))
}

func (m *GradingMetrics) Failed(ctx context.Context, questionType, kind string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("question_type", questionType),
		attribute.String("kind", kind),
	))
}

// Tracer is the tracer the grading path starts spans on.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
