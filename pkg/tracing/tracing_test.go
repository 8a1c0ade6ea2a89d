package tracing

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"labor/internal/config"
)

func remoteSpanContext(t *testing.T) trace.SpanContext {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
}

func TestInit_DisabledProvider(t *testing.T) {
	p, err := Init(config.TracingConfig{}, "test")
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestKafkaHeaders_CarryTraceContext(t *testing.T) {
	_, err := Init(config.TracingConfig{}, "test")
	require.NoError(t, err)

	sc := remoteSpanContext(t)
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTraceContext(ctx, []kafka.Header{{Key: "message-id", Value: []byte("msg-1")}})
	headers = InjectTraceContext(ctx, headers)

	var traceparents int
	for _, h := range headers {
		if h.Key == "traceparent" {
			traceparents++
		}
	}
	assert.Equal(t, 1, traceparents, "re-injecting replaces the header")

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), headers))
	assert.Equal(t, sc.TraceID(), got.TraceID())
	assert.Equal(t, sc.SpanID(), got.SpanID())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", TraceIDFromContext(ctx))
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		cfg  config.SamplerConfig
		want string
	}{
		{cfg: config.SamplerConfig{}, want: "AlwaysOnSampler"},
		{cfg: config.SamplerConfig{Type: "always_off"}, want: "AlwaysOffSampler"},
		{cfg: config.SamplerConfig{Type: "traceidratio", Param: 0.5}, want: "TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, samplerFor(tt.cfg).Description())
	}
}

func TestTraceIDFromContext_NoSpan(t *testing.T) {
	assert.Empty(t, TraceIDFromContext(context.Background()))
}
