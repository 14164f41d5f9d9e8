package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation name used for authgate spans
const TracerName = "github.com/upb/authgate"

// NewTracer returns a tracer from the global provider, or a no-op tracer when
// tracing is disabled. Exporters are configured by installing a provider with
// otel.SetTracerProvider before startup.
func NewTracer(enabled bool) trace.Tracer {
	if !enabled {
		return noop.NewTracerProvider().Tracer(TracerName)
	}
	return otel.Tracer(TracerName)
}
