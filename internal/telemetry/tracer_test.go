package telemetry

import (
	"context"
	"testing"

	"github.com/YelzhanWeb/tablehub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTracer_Disabled(t *testing.T) {
	shutdown, err := SetupTracer(context.Background(), config.TelemetryConfig{Enabled: false}, "tablehub-test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupTracer_Enabled(t *testing.T) {
	// grpc.NewClient connects lazily, so no collector needs to be running.
	cfg := config.TelemetryConfig{Enabled: true, Endpoint: "http://127.0.0.1:4317", Environment: "test"}
	shutdown, err := SetupTracer(context.Background(), cfg, "tablehub-test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
