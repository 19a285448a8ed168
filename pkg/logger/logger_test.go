package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestFromContext_CarriesAttrsAndTrace(t *testing.T) {
	var buf bytes.Buffer
	prev := defaultLogger
	defaultLogger = New(&buf, "debug", "json")
	t.Cleanup(func() { defaultLogger = prev })

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3},
		SpanID:  trace.SpanID{4, 5, 6},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = WithAttrs(ctx, "request_id", "req-1")
	ctx = WithAttrs(ctx, "lesson_id", "l-1")

	Error(ctx, "persist failed", assert.AnError, "attempt", 2)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "persist failed", line["msg"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "l-1", line["lesson_id"])
	assert.Equal(t, sc.TraceID().String(), line["trace_id"])
	assert.Equal(t, assert.AnError.Error(), line["error"])
	assert.EqualValues(t, 2, line["attempt"])
}
