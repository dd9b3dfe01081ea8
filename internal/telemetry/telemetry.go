// Package telemetry configures OpenTelemetry tracing for the lineage server.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Options selects the span exporter.
type Options struct {
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint is an OTLP/HTTP URL. When empty, OTEL_EXPORTER_OTLP_ENDPOINT
	// is consulted.
	OTLPEndpoint string
	// Stdout pretty-prints spans to Writer (os.Stdout when nil) if no OTLP
	// endpoint is configured. Otherwise spans are discarded.
	Stdout bool
	Writer io.Writer
}

// Init installs a global tracer provider and propagator. The returned
// function flushes and shuts the provider down.
func Init(ctx context.Context, opts Options) (func(context.Context) error, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", opts.ServiceName),
			attribute.String("service.version", opts.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	exporter, err := newExporter(ctx, opts)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, opts Options) (sdktrace.SpanExporter, error) {
	endpoint := opts.OTLPEndpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint != "" {
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			return nil, fmt.Errorf("create OTLP exporter: %w", err)
		}
		return exp, nil
	}

	w := io.Discard
	stdoutOpts := []stdouttrace.Option{}
	if opts.Stdout {
		w = opts.Writer
		if w == nil {
			w = os.Stdout
		}
		stdoutOpts = append(stdoutOpts, stdouttrace.WithPrettyPrint())
	}
	exp, err := stdouttrace.New(append(stdoutOpts, stdouttrace.WithWriter(w))...)
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}
	return exp, nil
}
