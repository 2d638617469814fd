// Package observability wires OpenTelemetry tracing for the pipeline.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/ragline/ragline/internal/log"
)

const shutdownTimeout = 5 * time.Second

// Config selects the trace destination.
type Config struct {
	Endpoint    string // OTLP/HTTP collector host:port, empty disables tracing
	ServiceName string
	Environment string
}

// Setup installs a global tracer provider exporting to the configured
// OTLP collector and returns its shutdown function. Tracing failures are
// never fatal: on any setup error the returned cleanup is a no-op and the
// process runs untraced.
func Setup(ctx context.Context, cfg Config, logger log.Logger) func() {
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.Endpoint == "" {
		return func() {}
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(), // collector runs alongside the service
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		logger.Warn("building trace resource, tracing disabled", "error", err)
		return func() {}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Debug("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}
