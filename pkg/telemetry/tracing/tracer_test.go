package tracing

import (
	"context"
	"errors"
	"testing"

	"mercator-hq/guardrails/pkg/config"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTestTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewWithExporter(&config.TracingConfig{
		Enabled:     true,
		Sampler:     SamplerAlways,
		ServiceName: "test-service",
	}, exporter)
	if err != nil {
		t.Fatalf("NewWithExporter() error = %v", err)
	}
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })

	return tracer, exporter
}

// ==================== Construction ====================

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		config      *config.TracingConfig
		wantErr     bool
		wantEnabled bool
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
		},
		{
			name:   "disabled tracing",
			config: &config.TracingConfig{Enabled: false, ServiceName: "test-service"},
		},
		{
			name: "unsupported exporter",
			config: &config.TracingConfig{
				Enabled:  true,
				Exporter: "zipkin",
				Endpoint: "localhost:9411",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if tracer.Enabled() != tt.wantEnabled {
				t.Errorf("Expected Enabled() = %v, got %v", tt.wantEnabled, tracer.Enabled())
			}
			if err := tracer.Shutdown(context.Background()); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
		})
	}
}

func TestNewWithExporter_Errors(t *testing.T) {
	if _, err := NewWithExporter(nil, tracetest.NewInMemoryExporter()); err == nil {
		t.Error("Expected error for nil config")
	}
	if _, err := NewWithExporter(&config.TracingConfig{Enabled: true}, nil); err == nil {
		t.Error("Expected error for nil exporter")
	}
	_, err := NewWithExporter(&config.TracingConfig{Enabled: true, Sampler: "sometimes"}, tracetest.NewInMemoryExporter())
	if err == nil {
		t.Error("Expected error for unknown sampler")
	}
}

// ==================== Spans ====================

func TestTracer_Start(t *testing.T) {
	tracer, exporter := newTestTracer(t)

	ctx, parent := tracer.Start(context.Background(), "parent")
	_, child := tracer.Start(ctx, "child")
	child.End()
	parent.End()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name != "child" {
		t.Errorf("Expected first ended span %q, got %q", "child", spans[0].Name)
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("Expected child span to be parented to parent span")
	}
}

func TestTracer_Disabled(t *testing.T) {
	tracer := Disabled()

	ctx, span := tracer.Start(context.Background(), "noop")
	defer span.End()

	if tracer.Enabled() {
		t.Error("Expected disabled tracer")
	}
	if span.SpanContext().IsValid() {
		t.Error("Expected noop span to have invalid span context")
	}
	if TraceID(ctx) != "" {
		t.Errorf("Expected empty trace ID, got %q", TraceID(ctx))
	}
}

func TestTracer_Nil(t *testing.T) {
	var tracer *Tracer

	_, span := tracer.Start(context.Background(), "nil")
	span.End()

	if tracer.Enabled() {
		t.Error("Expected nil tracer to be disabled")
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if err := tracer.ForceFlush(context.Background()); err != nil {
		t.Errorf("ForceFlush() error = %v", err)
	}
}

func TestTraceAndSpanID(t *testing.T) {
	tracer, _ := newTestTracer(t)

	ctx, span := tracer.Start(context.Background(), "ids")
	defer span.End()

	if len(TraceID(ctx)) != 32 {
		t.Errorf("Expected 32 char trace ID, got %q", TraceID(ctx))
	}
	if len(SpanID(ctx)) != 16 {
		t.Errorf("Expected 16 char span ID, got %q", SpanID(ctx))
	}
	if TraceID(ctx) != span.SpanContext().TraceID().String() {
		t.Error("Expected TraceID to match the started span")
	}
}

func TestSetError(t *testing.T) {
	tracer, exporter := newTestTracer(t)

	_, span := tracer.Start(context.Background(), "failing")
	SetError(span, errors.New("boom"))
	SetError(span, nil)
	span.End()

	got := exporter.GetSpans()[0]
	if got.Status.Code != codes.Error {
		t.Errorf("Expected status Error, got %v", got.Status.Code)
	}
	if len(got.Events) != 1 {
		t.Errorf("Expected 1 recorded error event, got %d", len(got.Events))
	}
}

func TestSetStatus(t *testing.T) {
	tracer, exporter := newTestTracer(t)

	_, ok := tracer.Start(context.Background(), "ok")
	SetStatus(ok, nil)
	ok.End()

	_, failed := tracer.Start(context.Background(), "failed")
	SetStatus(failed, errors.New("nope"))
	failed.End()

	spans := exporter.GetSpans()
	if spans[0].Status.Code != codes.Ok {
		t.Errorf("Expected Ok status, got %v", spans[0].Status.Code)
	}
	if spans[1].Status.Code != codes.Error {
		t.Errorf("Expected Error status, got %v", spans[1].Status.Code)
	}
}

// ==================== Sampling ====================

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{strategy: SamplerAlways},
		{strategy: SamplerNever},
		{strategy: SamplerRatio, ratio: 0.25},
		{strategy: SamplerRatio, ratio: 1.5, wantErr: true},
		{strategy: SamplerRatio, ratio: -0.1, wantErr: true},
		{strategy: "invalid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			sampler, err := createSampler(tt.strategy, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("createSampler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && sampler == nil {
				t.Error("Expected non-nil sampler")
			}
		})
	}
}

func TestNeverSampler(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewWithExporter(&config.TracingConfig{Enabled: true, Sampler: SamplerNever}, exporter)
	if err != nil {
		t.Fatalf("NewWithExporter() error = %v", err)
	}
	defer tracer.Shutdown(context.Background())

	_, span := tracer.Start(context.Background(), "dropped")
	span.End()

	if len(exporter.GetSpans()) != 0 {
		t.Errorf("Expected no exported spans, got %d", len(exporter.GetSpans()))
	}
}

// ==================== Propagation ====================

func TestInjectExtractMap(t *testing.T) {
	tracer, _ := newTestTracer(t)

	ctx, span := tracer.Start(context.Background(), "outbound")
	defer span.End()

	carrier := map[string]string{}
	InjectToMap(ctx, carrier)

	if carrier["traceparent"] == "" {
		t.Fatal("Expected traceparent in carrier")
	}

	extracted := ExtractFromMap(context.Background(), carrier)
	if got := trace.SpanContextFromContext(extracted).TraceID(); got != span.SpanContext().TraceID() {
		t.Errorf("Expected trace ID %s, got %s", span.SpanContext().TraceID(), got)
	}
}

// ==================== Attributes ====================

func TestMetadataAttributes(t *testing.T) {
	attrs := MetadataAttributes(map[string]any{
		"reason":  "pii",
		"count":   3,
		"score":   0.5,
		"partial": true,
		"terms":   []string{"a", "b"},
		"other":   struct{ X int }{X: 1},
	})

	want := map[attribute.Key]attribute.Type{
		"guardrail.metadata.reason":  attribute.STRING,
		"guardrail.metadata.count":   attribute.INT64,
		"guardrail.metadata.score":   attribute.FLOAT64,
		"guardrail.metadata.partial": attribute.BOOL,
		"guardrail.metadata.terms":   attribute.STRINGSLICE,
		"guardrail.metadata.other":   attribute.STRING,
	}

	if len(attrs) != len(want) {
		t.Fatalf("Expected %d attributes, got %d", len(want), len(attrs))
	}
	for _, kv := range attrs {
		if kv.Value.Type() != want[kv.Key] {
			t.Errorf("Expected %s to have type %v, got %v", kv.Key, want[kv.Key], kv.Value.Type())
		}
	}
	if attrs[0].Key != "guardrail.metadata.count" {
		t.Errorf("Expected sorted keys, first was %s", attrs[0].Key)
	}
}

func TestMetadataAttributes_Empty(t *testing.T) {
	if attrs := MetadataAttributes(nil); attrs != nil {
		t.Errorf("Expected nil attributes, got %v", attrs)
	}
}
