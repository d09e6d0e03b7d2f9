package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aegislabs/aegis-gateway/pkg/domain"
)

// RecordDecision annotates the provided span with a mediation outcome.
func RecordDecision(span trace.Span, action domain.Action, d domain.Decision) {
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.String("gateway.decision.action", string(action)))
	if d.Blocked {
		span.SetAttributes(
			attribute.String("gateway.decision.category", d.Category),
			attribute.Float64("gateway.decision.score", d.Score),
		)
		span.AddEvent("gateway.blocked")
	}
}
