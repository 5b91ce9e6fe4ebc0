// Package telemetry wires OpenTelemetry tracing for bid-scout.
//
// Tracing is off unless an OTLP HTTP endpoint is configured; without one the
// global no-op provider stays in place and spans cost nothing.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects the OTLP exporter
type Config struct {
	OtlpEndpoint string            `json:"otlp_endpoint"`
	Headers      map[string]string `json:"headers"`
}

// Enabled reports whether an exporter endpoint is configured.
func (c Config) Enabled() bool {
	return c.OtlpEndpoint != ""
}

// Setup installs a global tracer provider exporting to the configured OTLP
// endpoint and returns its shutdown function.
func Setup(ctx context.Context, serviceName string, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled() {
		return func(context.Context) error { return nil }, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	exporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpointURL(cfg.OtlpEndpoint),
		otlptracehttp.WithHeaders(cfg.Headers),
	)
	if err != nil {
		return nil, err
	}

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
