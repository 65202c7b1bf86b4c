package agent

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentroute/core"
)

const tracerName = "github.com/hupe1980/agentroute/agent"

func startSpan(ctx context.Context, name string, id core.Identity, kind core.AgentType) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(
		attribute.String("agent.name", id.Name),
		attribute.String("agent.type", string(kind)),
		attribute.String("agent.model", id.ModelID),
	))
}

// endSpan records err, if any, and ends the span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
