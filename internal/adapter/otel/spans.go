package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "helmsman"

// StartTurnSpan starts a span for one user turn.
func StartTurnSpan(ctx context.Context, sessionID, mode string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "turn",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("turn.mode", mode),
		),
	)
}

// StartToolSpan starts a span for one tool invocation within a turn.
func StartToolSpan(ctx context.Context, callID, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tool",
		trace.WithAttributes(
			attribute.String("tool.call_id", callID),
			attribute.String("tool.name", tool),
		),
	)
}
