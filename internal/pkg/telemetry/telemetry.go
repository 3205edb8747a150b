// Package telemetry initializes OpenTelemetry metrics and tracing with OTLP
// exporters over gRPC. The exporters read their endpoint and credentials from
// the standard OTEL_EXPORTER_OTLP_* environment variables.
//
// When telemetry is disabled the global no-op providers stay in place, so
// instrumented code runs unchanged and simply records nothing.
package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// ShutdownFunc flushes and stops the providers registered by Init.
type ShutdownFunc func(ctx context.Context) error

// config holds internal settings for Init.
type config struct {
	enabled     bool
	sampleRatio float64
}

// Option configures Init.
type Option func(*config)

// WithEnabled toggles the OTLP pipelines. Default: true.
func WithEnabled(enabled bool) Option {
	return func(c *config) {
		c.enabled = enabled
	}
}

// WithSampleRatio sets the fraction of root traces that are sampled. Default: 1.
func WithSampleRatio(ratio float64) Option {
	return func(c *config) {
		c.sampleRatio = ratio
	}
}

func initMeterProvider(ctx context.Context, res *sdkresource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)
	return mp, nil
}

func initTracerProvider(ctx context.Context, res *sdkresource.Resource, ratio float64) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// newResource merges the default resource with the service name.
func newResource(serviceName string) (*sdkresource.Resource, error) {
	return sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
}

// Init registers global meter and tracer providers for serviceName and returns
// the function that flushes them on shutdown.
func Init(ctx context.Context, serviceName string, opts ...Option) (ShutdownFunc, error) {
	cfg := config{
		enabled:     true,
		sampleRatio: 1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if !cfg.enabled {
		return func(context.Context) error { return nil }, nil
	}

	res, err := newResource(serviceName)
	if err != nil {
		return nil, err
	}

	mp, err := initMeterProvider(ctx, res)
	if err != nil {
		return nil, err
	}

	tp, err := initTracerProvider(ctx, res, cfg.sampleRatio)
	if err != nil {
		return nil, errors.Join(err, mp.Shutdown(ctx))
	}

	return func(ctx context.Context) error {
		return errors.Join(
			mp.Shutdown(ctx),
			tp.Shutdown(ctx),
		)
	}, nil
}
