// Package telemetry sets up OpenTelemetry tracing.
package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Options configures tracing.
type Options struct {
	Enabled     bool
	Endpoint    string // "host:port" (plain HTTP) or a full URL
	ServiceName string
	NodeID      string
}

// Setup installs a global tracer provider exporting over OTLP/HTTP.
//
// Tracing is opt-in: when disabled or without an endpoint, Setup returns a
// no-op shutdown function and no global provider is registered, so spans
// started by the service are dropped.
//
// The returned shutdown function flushes pending spans and should be deferred
// by the caller.
func Setup(ctx context.Context, opts Options) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	endpoint := strings.TrimSpace(opts.Endpoint)
	if !opts.Enabled || endpoint == "" {
		return noop, nil
	}

	var exporterOpts []otlptracehttp.Option
	if strings.Contains(endpoint, "://") {
		exporterOpts = append(exporterOpts, otlptracehttp.WithEndpointURL(endpoint))
	} else {
		exporterOpts = append(exporterOpts, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceInstanceID(opts.NodeID),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
