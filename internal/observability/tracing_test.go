package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.ServiceName != "hoist" {
		t.Fatalf("expected service name 'hoist', got %s", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Fatalf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
}

func TestInitTracing_NoEndpoint(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracing(ctx, &TracingConfig{
		ServiceName: "test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp.Tracer() == nil {
		t.Fatal("expected non-nil tracer")
	}
	// No-op provider, shutdown should succeed
	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestInitTracing_NilConfig(t *testing.T) {
	tp, err := InitTracing(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp == nil {
		t.Fatal("expected non-nil tracer provider")
	}
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestPassSpans_Nested(t *testing.T) {
	sr := recordSpans(t)

	ctx, pass := StartPassSpan(context.Background(), "pass-1", 12, 2)
	_, phase := StartPhaseSpan(ctx, "find modules to concatenate")
	phase.End()
	_, integrate := StartIntegrateSpan(ctx, "./src/index.js", 3)
	integrate.End()
	RecordPassResult(pass, 1, 0, 4, 20*time.Millisecond)
	pass.End()

	spans := sr.Ended()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	if spans[0].Name() != "concat.find modules to concatenate" {
		t.Errorf("unexpected phase span name %q", spans[0].Name())
	}
	if spans[0].Parent().SpanID() != spans[2].SpanContext().SpanID() {
		t.Error("expected phase span to be a child of the pass span")
	}
	if v, ok := attr(spans[1].Attributes(), "hoist.member_count"); !ok || v.AsInt64() != 3 {
		t.Errorf("expected member count 3, got %v", v)
	}
	if v, ok := attr(spans[2].Attributes(), "hoist.pass.configurations"); !ok || v.AsInt64() != 1 {
		t.Errorf("expected 1 configuration, got %v", v)
	}
}

func TestStartExportSpan(t *testing.T) {
	sr := recordSpans(t)
	_, span := StartExportSpan(context.Background(), "dot")
	span.End()

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if v, _ := attr(spans[0].Attributes(), "hoist.export.format"); v.AsString() != "dot" {
		t.Errorf("unexpected format attribute %v", v)
	}
}

func TestRecordError(t *testing.T) {
	sr := recordSpans(t)
	_, span := StartPhaseSpan(context.Background(), "integrate configurations")

	// nil is ignored
	RecordError(span, nil)
	RecordError(span, errors.New("module missing"))
	span.End()

	got := sr.Ended()[0]
	if got.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", got.Status().Code)
	}
	if len(got.Events()) != 1 {
		t.Errorf("expected one recorded error event, got %d", len(got.Events()))
	}
}

func TestTracerName(t *testing.T) {
	if TracerName != "github.com/efebarandurmaz/hoist" {
		t.Fatalf("unexpected tracer name: %s", TracerName)
	}
}

func TestTracerProvider_Shutdown_NilProvider(t *testing.T) {
	tp := &TracerProvider{}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected nil error for nil provider, got: %v", err)
	}
}
