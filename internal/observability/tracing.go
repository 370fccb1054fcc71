package observability

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/satstream-simulator/internal/config"
	"github.com/signalsfoundry/satstream-simulator/internal/logging"
)

const (
	defaultOTLPEndpoint = "localhost:4317"
	tracingFlushTimeout = 5 * time.Second
)

type exporterFactory func(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error)

var spanExporters = map[string]exporterFactory{
	"stdout":   stdoutExporter,
	"otlp":     otlpExporter,
	"otlpgrpc": otlpExporter,
}

// InitTracing installs the global tracer provider and propagators for the
// fake server. When tracing is disabled a noop provider is installed so
// session span events cost nothing. The returned function flushes pending
// spans.
func InitTracing(ctx context.Context, cfg config.TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		return func(context.Context) error { return nil }, nil
	}

	name := strings.ToLower(cfg.Exporter)
	if name == "" {
		name = "stdout"
	}
	factory, ok := spanExporters[name]
	if !ok {
		return nil, fmt.Errorf("unsupported tracing exporter %q (want one of %s)", cfg.Exporter, strings.Join(exporterNames(), ", "))
	}
	exp, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s exporter: %w", name, err)
	}

	tp, err := newTracerProvider(cfg, exp)
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", name),
		logging.String("endpoint", cfg.Endpoint),
		logging.String("service_name", cfg.ServiceName),
		logging.Any("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

func newTracerProvider(cfg config.TracingConfig, exp sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "satstream"),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

// Spans go to stderr so they never interleave with JSON logs on stdout.
func stdoutExporter(context.Context, config.TracingConfig) (sdktrace.SpanExporter, error) {
	return stdouttrace.New(
		stdouttrace.WithWriter(os.Stderr),
		stdouttrace.WithoutTimestamps(),
	)
}

func otlpExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultOTLPEndpoint
	}
	return otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	))
}

func exporterNames() []string {
	names := make([]string, 0, len(spanExporters))
	for name := range spanExporters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ShutdownWithTimeout flushes tracing within a bounded time. Failures are
// only logged since the process is exiting anyway.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, tracingFlushTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
