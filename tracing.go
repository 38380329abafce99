package circulate

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	attrItemID        = attribute.Key("circulate.item_id")
	attrUserID        = attribute.Key("circulate.user_id")
	attrReservationID = attribute.Key("circulate.reservation_id")
	attrOutcome       = attribute.Key("circulate.outcome")
)

func (e *Engine) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "circulate."+op, trace.WithAttributes(attrs...))
}

// endSpan closes span. Only internal failures mark it as an error; denials
// and conflicts are expected outcomes and are recorded as attributes.
func endSpan(span trace.Span, err error) {
	switch {
	case err == nil:
		span.SetAttributes(attrOutcome.String("ok"))
	case IsInternal(err):
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case IsDenied(err):
		span.SetAttributes(attrOutcome.String("denied"))
	case IsConflict(err):
		span.SetAttributes(attrOutcome.String("conflict"))
	case IsNotFound(err):
		span.SetAttributes(attrOutcome.String("not_found"))
	case IsInvalidInput(err):
		span.SetAttributes(attrOutcome.String("invalid_input"))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
