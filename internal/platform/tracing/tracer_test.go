package tracing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"warden/internal/platform/tracing"
)

func TestNoopTracer(t *testing.T) {
	ctx := context.Background()
	newCtx, span := tracing.NewNoop().Start(ctx, tracing.SpanEvaluate, tracing.String("k", "v"))
	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)
	span.SetAttributes(tracing.Int(tracing.AttrScore, 3))
	span.AddEvent("scored")
	span.End(errors.New("ignored"))
}

func TestOTelTracerRecordsAttributesAndErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tr := tracing.NewOTel(tracing.WithOTelTracer(tp.Tracer("test")))

	_, span := tr.Start(context.Background(), tracing.SpanEvaluate, tracing.String(tracing.AttrIP, "10.0.0.0"))
	span.SetAttributes(
		tracing.Int(tracing.AttrScore, 8),
		tracing.Strings(tracing.AttrReasonCodes, []string{"HONEYPOT_PATH"}),
	)
	span.End(errors.New("ban store unavailable"))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, tracing.SpanEvaluate, ended[0].Name())
	assert.Equal(t, "ban store unavailable", ended[0].Status().Description)

	attrs := map[string]any{}
	for _, kv := range ended[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "10.0.0.0", attrs[tracing.AttrIP])
	assert.Equal(t, int64(8), attrs[tracing.AttrScore])
	assert.Equal(t, []string{"HONEYPOT_PATH"}, attrs[tracing.AttrReasonCodes])
}

func TestHashFingerprint(t *testing.T) {
	assert.Empty(t, tracing.HashFingerprint(""))
	assert.Len(t, tracing.HashFingerprint("fp-1"), 16)
	assert.Equal(t, tracing.HashFingerprint("fp-1"), tracing.HashFingerprint("fp-1"))
}
