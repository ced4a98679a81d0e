package tracing

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/guardrails/pkg/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// InstrumentationName names the tracer and the gRPC user agent.
const InstrumentationName = "mercator-hq/guardrails"

// Version is exported as service.version. The CLI sets it from its build
// version.
var Version = "dev"

var noopTracer = noop.NewTracerProvider().Tracer(InstrumentationName)

// Tracer starts gate and guardrail spans. A nil or disabled Tracer hands
// out noop spans, so callers never need to check.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// New returns Disabled() unless cfg.Enabled, in which case spans are batched
// to the OTLP gRPC endpoint and the provider is installed globally. Callers
// own Shutdown.
func New(cfg *config.TracingConfig) (*Tracer, error) {
	if cfg == nil {
		return nil, errors.New("tracing: nil config")
	}
	if !cfg.Enabled {
		return Disabled(), nil
	}
	if cfg.Exporter != "" && cfg.Exporter != "otlp" {
		return nil, fmt.Errorf("tracing: unsupported exporter %q", cfg.Exporter)
	}

	exporter, err := otlpExporter(cfg)
	if err != nil {
		return nil, err
	}
	return build(cfg, sdktrace.WithBatcher(exporter))
}

// NewWithExporter exports every span synchronously on End. The CLI check
// command and tests use it.
func NewWithExporter(cfg *config.TracingConfig, exporter sdktrace.SpanExporter) (*Tracer, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("tracing: nil config")
	case exporter == nil:
		return nil, errors.New("tracing: nil exporter")
	}
	return build(cfg, sdktrace.WithSyncer(exporter))
}

func build(cfg *config.TracingConfig, processor sdktrace.TracerProviderOption) (*Tracer, error) {
	sampler, err := createSampler(samplerOrDefault(cfg.Sampler), cfg.SampleRatio)
	if err != nil {
		return nil, err
	}

	name := cfg.ServiceName
	if name == "" {
		name = config.DefaultTracingServiceName
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceName(name), semconv.ServiceVersion(Version)))
	if err != nil {
		return nil, fmt.Errorf("tracing: resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(processor, sdktrace.WithResource(res), sdktrace.WithSampler(sampler))
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{tracer: provider.Tracer(InstrumentationName), provider: provider}, nil
}

// Disabled returns a Tracer that records nothing.
func Disabled() *Tracer {
	return &Tracer{tracer: noopTracer}
}

// Start begins a span under whatever span ctx already carries.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return noopTracer.Start(ctx, name, opts...)
	}
	return t.tracer.Start(ctx, name, opts...)
}

// Shutdown flushes pending spans and stops the exporter.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

func (t *Tracer) ForceFlush(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	return t.provider.ForceFlush(ctx)
}

func (t *Tracer) Enabled() bool {
	return t != nil && t.provider != nil
}

// otlpExporter does not dial until the first export, so an unreachable
// collector never blocks startup.
func otlpExporter(cfg *config.TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(grpc.WithUserAgent(InstrumentationName)),
	}
	if cfg.OTLP.Insecure {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}
	if cfg.OTLP.Timeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.OTLP.Timeout))
	}

	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("tracing: otlp exporter: %w", err)
	}
	return exporter, nil
}

// TraceID is the hex trace ID in ctx, or "".
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// SpanID is the hex span ID in ctx, or "".
func SpanID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.SpanID().String()
	}
	return ""
}

// SetError records err as a span event and fails the span. A nil err is
// ignored.
func SetError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.SetAttributes(attribute.Bool("error", true), attribute.String("error.message", err.Error()))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetStatus marks the span Ok for a nil err and Error otherwise.
func SetStatus(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
