package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc/credentials"

	"github.com/fyrsmithlabs/attachd/pkg/config"
)

// Option configures provider construction.
type Option func(*options)

type options struct {
	spanProcessors []trace.SpanProcessor
	traceExporter  trace.SpanExporter
	metricReader   metric.Reader
	logExporter    sdklog.Exporter
}

// WithSpanProcessor registers a span processor on the tracer provider at
// build time. The duration-tracking span-start observer is wired through
// this.
func WithSpanProcessor(sp trace.SpanProcessor) Option {
	return func(o *options) {
		o.spanProcessors = append(o.spanProcessors, sp)
	}
}

// WithTraceExporter overrides the default OTLP exporter (for testing).
func WithTraceExporter(exp trace.SpanExporter) Option {
	return func(o *options) {
		o.traceExporter = exp
	}
}

// WithMetricReader overrides the default periodic OTLP reader (for testing).
func WithMetricReader(r metric.Reader) Option {
	return func(o *options) {
		o.metricReader = r
	}
}

// WithLogExporter overrides the default OTLP log exporter (for testing).
func WithLogExporter(exp sdklog.Exporter) Option {
	return func(o *options) {
		o.logExporter = exp
	}
}

// newResource creates a resource describing the agent.
// A standalone resource avoids schema URL conflicts with resource.Default().
func newResource(cfg *config.TelemetryConfig) (*resource.Resource, error) {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	), nil
}

// newTracerProvider creates a TracerProvider with an OTLP exporter, unless a
// test exporter was supplied.
func newTracerProvider(ctx context.Context, cfg *config.TelemetryConfig, res *resource.Resource, o *options) (*trace.TracerProvider, error) {
	exporter := o.traceExporter
	if exporter == nil {
		var err error
		switch cfg.Protocol {
		case "http/protobuf":
			opts := []otlptracehttp.Option{
				otlptracehttp.WithEndpoint(stripScheme(cfg.Endpoint)),
			}
			if cfg.Insecure {
				opts = append(opts, otlptracehttp.WithInsecure())
			} else if cfg.TLSSkipVerify {
				opts = append(opts, otlptracehttp.WithTLSClientConfig(&tls.Config{
					InsecureSkipVerify: true, //nolint:gosec // User explicitly requested
				}))
			}
			exporter, err = otlptracehttp.New(ctx, opts...)
		default: // "grpc"
			opts := []otlptracegrpc.Option{
				otlptracegrpc.WithEndpoint(cfg.Endpoint),
			}
			if cfg.Insecure {
				opts = append(opts, otlptracegrpc.WithInsecure())
			} else if cfg.TLSSkipVerify {
				opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(&tls.Config{
					InsecureSkipVerify: true, //nolint:gosec // User explicitly requested
				})))
			}
			exporter, err = otlptracegrpc.New(ctx, opts...)
		}
		if err != nil {
			return nil, fmt.Errorf("creating trace exporter: %w", err)
		}
	}

	var sampler trace.Sampler
	switch {
	case cfg.Sampling.Rate >= 1.0:
		sampler = trace.AlwaysSample()
	case cfg.Sampling.Rate <= 0:
		sampler = trace.NeverSample()
	default:
		sampler = trace.TraceIDRatioBased(cfg.Sampling.Rate)
	}
	sampler = trace.ParentBased(sampler)

	tpOpts := []trace.TracerProviderOption{
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(sampler),
	}
	for _, sp := range o.spanProcessors {
		tpOpts = append(tpOpts, trace.WithSpanProcessor(sp))
	}

	return trace.NewTracerProvider(tpOpts...), nil
}

// newMeterProvider creates a MeterProvider with an OTLP exporter, unless a
// test reader was supplied.
func newMeterProvider(ctx context.Context, cfg *config.TelemetryConfig, res *resource.Resource, o *options) (*metric.MeterProvider, error) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}

	reader := o.metricReader
	if reader == nil {
		var exporter metric.Exporter
		var err error
		switch cfg.Protocol {
		case "http/protobuf":
			opts := []otlpmetrichttp.Option{
				otlpmetrichttp.WithEndpoint(stripScheme(cfg.Endpoint)),
			}
			if cfg.Insecure {
				opts = append(opts, otlpmetrichttp.WithInsecure())
			} else if cfg.TLSSkipVerify {
				opts = append(opts, otlpmetrichttp.WithTLSClientConfig(&tls.Config{
					InsecureSkipVerify: true, //nolint:gosec // User explicitly requested
				}))
			}
			exporter, err = otlpmetrichttp.New(ctx, opts...)
		default: // "grpc"
			opts := []otlpmetricgrpc.Option{
				otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			}
			if cfg.Insecure {
				opts = append(opts, otlpmetricgrpc.WithInsecure())
			} else if cfg.TLSSkipVerify {
				opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(&tls.Config{
					InsecureSkipVerify: true, //nolint:gosec // User explicitly requested
				})))
			}
			exporter, err = otlpmetricgrpc.New(ctx, opts...)
		}
		if err != nil {
			return nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		reader = metric.NewPeriodicReader(
			exporter,
			metric.WithInterval(cfg.Metrics.ExportInterval.Duration()),
		)
	}

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(reader),
	), nil
}

// newLoggerProvider creates a LoggerProvider with an OTLP exporter, unless a
// test exporter was supplied. It backs the OTEL output of the agent logger.
func newLoggerProvider(ctx context.Context, cfg *config.TelemetryConfig, res *resource.Resource, o *options) (*sdklog.LoggerProvider, error) {
	exporter := o.logExporter
	if exporter == nil {
		var err error
		switch cfg.Protocol {
		case "http/protobuf":
			opts := []otlploghttp.Option{
				otlploghttp.WithEndpoint(stripScheme(cfg.Endpoint)),
			}
			if cfg.Insecure {
				opts = append(opts, otlploghttp.WithInsecure())
			} else if cfg.TLSSkipVerify {
				opts = append(opts, otlploghttp.WithTLSClientConfig(&tls.Config{
					InsecureSkipVerify: true, //nolint:gosec // User explicitly requested
				}))
			}
			exporter, err = otlploghttp.New(ctx, opts...)
		default: // "grpc"
			opts := []otlploggrpc.Option{
				otlploggrpc.WithEndpoint(cfg.Endpoint),
			}
			if cfg.Insecure {
				opts = append(opts, otlploggrpc.WithInsecure())
			} else if cfg.TLSSkipVerify {
				opts = append(opts, otlploggrpc.WithTLSCredentials(credentials.NewTLS(&tls.Config{
					InsecureSkipVerify: true, //nolint:gosec // User explicitly requested
				})))
			}
			exporter, err = otlploggrpc.New(ctx, opts...)
		}
		if err != nil {
			return nil, fmt.Errorf("creating log exporter: %w", err)
		}
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
		sdklog.WithResource(res),
	), nil
}

// stripScheme removes http:// or https:// from an endpoint URL.
// The OTEL HTTP exporters expect just host:port, not full URLs.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	return endpoint
}
