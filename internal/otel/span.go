// Package otel provides tracing helpers shared by the monitoring packages.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on monitoring spans
const (
	AttrCourseID    = attribute.Key("course.id")
	AttrCRN         = attribute.Key("course.crn")
	AttrUserID      = attribute.Key("user.id")
	AttrStatus      = attribute.Key("course.is_open")
	AttrChanged     = attribute.Key("course.status_changed")
	AttrFailureKind = attribute.Key("check.failure_kind")
	AttrResultCount = attribute.Key("result.count")
)

// Tracer returns a named tracer, or nil when provider is nil
func Tracer(provider trace.TracerProvider, name string) trace.Tracer {
	if provider == nil {
		return nil
	}
	return provider.Tracer(name)
}

// StartSpan starts a span if tracer is non-nil, otherwise it returns the span
// already in ctx (a no-op span when there is none).
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks it failed. The status description is
// kept generic so connection strings and queries stay out of the status; the
// error itself is attached as an event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
