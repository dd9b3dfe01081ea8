package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInit_StdoutExporter(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	var buf bytes.Buffer

	shutdown, err := Init(context.Background(), Options{
		ServiceName:    "catalog-lineage-test",
		ServiceVersion: "test",
		Stdout:         true,
		Writer:         &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "lineage.GetLineage")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "lineage.GetLineage")
	assert.Contains(t, buf.String(), "catalog-lineage-test")
}

func TestInit_OTLPExporter(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{
		ServiceName:  "catalog-lineage-test",
		OTLPEndpoint: "http://127.0.0.1:1/v1/traces",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Nothing was exported, so shutdown does not dial the collector.
	_ = shutdown(ctx)
}
