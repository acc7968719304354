package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tnez/RRF-Loop/pkg/logging"
)

func TestInitTracer_Disabled(t *testing.T) {
	p, err := InitTracer(Config{ServiceName: "rrfloop"}, logging.Discard())
	require.NoError(t, err)
	require.NotNil(t, p.Tracer())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestStartSpan_RecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := StartSpan(context.Background(), "loop.begin", attribute.Int("run", 2))
	SetError(span, errors.New("trial failed"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "loop.begin", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "trial failed", spans[0].Status().Description)
	assert.Contains(t, spans[0].Attributes(), attribute.Int("run", 2))
	require.Len(t, spans[0].Events(), 1)
}
