package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/learnhub/internal/pkg/apierr"
)

const tracerName = "github.com/yungbote/learnhub"

// StartSpan opens a span named "<component>.<op>". Without InitOTel the
// global provider is a no-op.
func StartSpan(ctx context.Context, component, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, component+"."+op)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// EndSpan records err (with its apierr code) and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apierr.CodeOf(err)))
		if code := apierr.CodeOf(err); code != "" {
			span.SetAttributes(attribute.String("error.code", string(code)))
		}
	}
	span.End()
}

// Track opens a span for component.op and returns a finisher that records
// the operation metrics and ends the span.
func Track(ctx context.Context, component, op string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	start := time.Now()
	ctx, span := StartSpan(ctx, component, op, attrs...)
	return ctx, func(err error) {
		ObserveOp(component, op, start, err)
		EndSpan(span, err)
	}
}
