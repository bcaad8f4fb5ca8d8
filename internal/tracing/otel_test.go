package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracer("exectrack-test", "dev", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "ExecutionService.SaveProgress")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "ExecutionService.SaveProgress")
	assert.Contains(t, buf.String(), "exectrack-test")
}

func TestInitTracerWithoutWriter(t *testing.T) {
	shutdown, err := InitTracer("exectrack-test", "dev", nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
