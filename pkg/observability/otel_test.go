package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TestInitOTel_Disabled tests that InitOTel returns nil when disabled
func TestInitOTel_Disabled(t *testing.T) {
	ctx := context.Background()
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	cfg := OTelConfig{
		Enabled: false,
	}

	providers, err := InitOTel(ctx, cfg, logger)

	assert.NoError(t, err)
	assert.Nil(t, providers)
}

// TestShutdownOTel_NilProviders tests that shutting down nil providers is a no-op
func TestShutdownOTel_NilProviders(t *testing.T) {
	ctx := context.Background()
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	err := ShutdownOTel(ctx, nil, logger)
	assert.NoError(t, err)
}

// TestShutdownOTel_WithTracerProvider tests shutdown of a real tracer provider
func TestShutdownOTel_WithTracerProvider(t *testing.T) {
	ctx := context.Background()
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	providers := &OTelProviders{
		TracerProvider: sdktrace.NewTracerProvider(),
	}

	err := ShutdownOTel(ctx, providers, logger)
	assert.NoError(t, err)
}

// TestUpdateLoggerWithTraceContext_NoSpan tests that a context without a
// recording span returns the logger unchanged
func TestUpdateLoggerWithTraceContext_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	got := UpdateLoggerWithTraceContext(context.Background(), logger)
	assert.Same(t, logger, got)
}

// TestUpdateLoggerWithTraceContext_WithSpan tests that trace and span IDs are
// attached when a span is recording
func TestUpdateLoggerWithTraceContext_WithSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	defer tp.Shutdown(context.Background())

	tracer := tp.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	require.True(t, span.IsRecording())

	got := UpdateLoggerWithTraceContext(ctx, logger)
	require.NotSame(t, logger, got)

	got.Info("traced message")

	spanCtx := trace.SpanContextFromContext(ctx)
	assert.Contains(t, buf.String(), spanCtx.TraceID().String())
	assert.Contains(t, buf.String(), spanCtx.SpanID().String())
}
