// Package telemetry centralizes OTel accessor helpers so every package
// that emits spans or metrics goes through the same global providers.
package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a tracer scoped to name, delegating to the global
// provider. The global provider is a no-op until a real SDK provider is
// installed via otel.SetTracerProvider, so callers may use this before
// telemetry setup without special-casing it.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Meter returns a meter scoped to name, delegating to the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}
