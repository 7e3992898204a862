package process

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	goerrors "github.com/kbukum/cmdkit/errors"
	"github.com/kbukum/cmdkit/observability"
)

type telemetry struct {
	tracer  trace.Tracer
	metrics *observability.ProcessMetrics
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) (*telemetry, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m, err := observability.NewProcessMetrics(mp.Meter(observability.InstrumentationName))
	if err != nil {
		return nil, err
	}
	return &telemetry{
		tracer:  tp.Tracer(observability.InstrumentationName),
		metrics: m,
	}, nil
}

func (t *telemetry) startAttempt(ctx context.Context, name string, inv *invocation, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, observability.SpanProcessAttempt, trace.WithAttributes(
		attribute.String(observability.AttrCommand, name),
		attribute.StringSlice(observability.AttrArgs, inv.args),
		attribute.Int(observability.AttrAttempt, attempt),
		attribute.String(observability.AttrInvocationID, inv.id),
	))
}

func (t *telemetry) endAttempt(ctx context.Context, span trace.Span, name string, code int, err error, d time.Duration) {
	span.SetAttributes(attribute.Int(observability.AttrExitCode, code))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(goerrors.CodeOf(err)))
	}
	span.End()
	t.metrics.RecordAttempt(ctx, name, code, d)
}

func (t *telemetry) recordRetry(ctx context.Context, name string) {
	t.metrics.RecordRetry(ctx, name)
}

func (t *telemetry) recordFailure(ctx context.Context, name string, err error) {
	code := goerrors.CodeOf(err)
	if code == "" {
		code = goerrors.ErrCodeInternal
	}
	t.metrics.RecordFailure(ctx, name, string(code))
}
