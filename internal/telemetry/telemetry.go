// Package telemetry exports one trace span per executed script when an OTLP
// endpoint is configured.
package telemetry

import (
	"context"
	"errors"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config controls telemetry initialization behavior.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string // empty disables export
	Insecure       bool
}

// Init initializes OpenTelemetry tracing using an OTLP/HTTP exporter and
// installs it as the global TracerProvider. With no endpoint it leaves the
// no-op provider in place. The returned function flushes and stops the
// provider.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		return nil, errors.New("service name required")
	}
	if cfg.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	u, err := url.Parse(cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	endpoint := u.Host
	if endpoint == "" {
		// host:port without scheme
		endpoint = u.Path
		if endpoint == "" {
			endpoint = u.Opaque
		}
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if cfg.Insecure || u.Scheme == "http" {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	tp, shutdown, err := newTracerProviderWithExporter(exporter, cfg)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetTracerProvider(tp)

	return shutdown, nil
}

// newTracerProviderWithExporter builds a TracerProvider around exporter.
// Tests pass an in-memory exporter.
func newTracerProviderWithExporter(exporter sdktrace.SpanExporter, cfg Config) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	res, err := sdkresource.New(context.Background(), sdkresource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	))
	if err != nil {
		return nil, nil, err
	}

	bsp := sdktrace.NewBatchSpanProcessor(exporter)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
	)

	shutdown := func(ctx context.Context) error {
		return tp.Shutdown(ctx)
	}
	return tp, shutdown, nil
}
