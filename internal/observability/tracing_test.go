package observability

import (
	"context"
	"errors"
	"testing"

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
	if cfg.ServiceName != "lectern" {
		t.Fatalf("expected service name 'lectern', got %s", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Fatalf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
}

func TestInitTracing_NoEndpoint(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracing(ctx, &TracingConfig{ServiceName: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp.Tracer() == nil {
		t.Fatal("expected non-nil tracer")
	}
	// No-op provider: shutdown should succeed
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
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestSpans(t *testing.T) {
	recorder := recordSpans(t)
	ctx := context.Background()

	ctx, answer := StartAnswerSpan(ctx, "v1")
	RecordBranch(answer, "time_anchored", "timestamp in query", true)

	_, search := StartSearchSpan(ctx, 5, "{video_id=v1}")
	search.End()

	_, llm := StartLLMSpan(ctx, "gpt-4o-mini")
	RecordError(llm, errors.New("rate limited"))
	llm.End()

	_, build := StartIndexBuildSpan(context.Background(), 12)
	RecordError(build, nil)
	build.End()
	answer.End()

	spans := recorder.Ended()
	if len(spans) != 4 {
		t.Fatalf("expected 4 spans, got %d", len(spans))
	}

	byName := make(map[string]sdktrace.ReadOnlySpan)
	for _, s := range spans {
		byName[s.Name()] = s
	}

	root := byName["router.answer"]
	if root == nil {
		t.Fatal("missing router.answer span")
	}
	if v, ok := attr(root.Attributes(), "router.branch"); !ok || v.AsString() != "time_anchored" {
		t.Errorf("unexpected branch attribute %v", v)
	}
	if byName["rag.search"].Parent().SpanID() != root.SpanContext().SpanID() {
		t.Error("search span is not a child of the answer span")
	}
	if v, ok := attr(byName["rag.search"].Attributes(), "rag.k"); !ok || v.AsInt64() != 5 {
		t.Errorf("unexpected k attribute %v", v)
	}
	if byName["llm.generate"].Status().Code != codes.Error {
		t.Error("expected error status on llm span")
	}
	if byName["rag.build"].Status().Code == codes.Error {
		t.Error("nil error should not set error status")
	}
}
