// Package observability wires OpenTelemetry trace export into Genkit's
// TracerProvider. Spans cover every generate and embed call the pipeline
// makes, so pointing the exporter at any OTLP/HTTP collector (Datadog Agent,
// Jaeger, the OTel Collector) gives end-to-end visibility per question.
package observability

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ankabe/policyfaq/internal/config"
)

// DefaultEndpoint is the default OTLP/HTTP collector address.
const DefaultEndpoint = "localhost:4318"

const shutdownTimeout = 5 * time.Second

// Setup registers an OTLP span exporter with Genkit's TracerProvider.
// Returns a shutdown function that flushes pending spans; the returned
// function is always safe to call. Tracing failures degrade gracefully:
// a collector that cannot be reached never blocks the pipeline.
func Setup(ctx context.Context, cfg config.TracingConfig, logger *slog.Logger) func() {
	if !cfg.Enabled {
		return func() {}
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	// Set OTEL env vars for Genkit's TracerProvider to pick up.
	// SAFETY: os.Setenv is not concurrent-safe, but Setup runs exactly once
	// during startup before any goroutines are spawned.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // collector is expected on the local network
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	shutdown := tracing.TracerProvider().Shutdown
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}
