package concierge

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// InitTracing installs a global TracerProvider that exports turn spans
// through the given exporter. It returns a shutdown function that flushes
// pending spans; call it before process exit.
//
// Spans are exported through a SimpleSpanProcessor, so they leave the
// process as soon as they end. Pass nil to keep the default no-op
// provider.
func InitTracing(ctx context.Context, exporter sdktrace.SpanExporter, logger *slog.Logger) func(context.Context) error {
	if exporter == nil {
		return func(context.Context) error { return nil }
	}
	if logger == nil {
		logger = slog.Default()
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String("concierge"),
		),
	)
	if err != nil {
		logger.Warn("failed to create resource, using default", "error", err)
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown
}
