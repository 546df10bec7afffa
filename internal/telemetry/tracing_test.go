package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestStdoutExporterWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	shutdown, err := InitTracerProvider(ctx, Config{ServiceName: "ema-monitor", Exporter: ExporterStdout, Writer: &buf})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(ctx, "monitor.trial")
	span.End()

	require.NoError(t, shutdown(ctx))
	assert.Contains(t, buf.String(), "monitor.trial")
	assert.Contains(t, buf.String(), "ema-monitor")
}

func TestNoExporterIsNoop(t *testing.T) {
	shutdown, err := InitTracerProvider(context.Background(), Config{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestUnknownExporter(t *testing.T) {
	_, err := InitTracerProvider(context.Background(), Config{Exporter: "zipkin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zipkin")
}
