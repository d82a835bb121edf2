package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// tracerPrefix namespaces every tracer created through Tracer.
const tracerPrefix = "pollwatch/"

// TracingConfig selects where spans go and how many are kept.
type TracingConfig struct {
	ServiceName string
	// Endpoint is an OTLP gRPC collector address such as tempo:4317.
	Endpoint    string
	SampleRate  float64
	Environment string
}

// InitTracing installs a global tracer provider exporting to cfg.Endpoint and
// returns its shutdown function.
func InitTracing(ctx context.Context, logger *zap.Logger, cfg TracingConfig) (func(context.Context) error, error) {
	env := cfg.Environment
	if env == "" {
		env = "production"
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		attribute.String("deployment.environment", env),
	)

	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.Float64("sample_rate", cfg.SampleRate),
		zap.String("environment", env))
	return tp.Shutdown, nil
}

// samplerFor maps a 0..1 rate onto an SDK sampler; the root decision is
// respected by child spans.
func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case rate <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Tracer returns the tracer for one component, e.g. Tracer("incidents").
func Tracer(component string) trace.Tracer {
	return otel.Tracer(tracerPrefix + component)
}
