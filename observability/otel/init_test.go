package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc , broken, =skip, tenant=ops")
	require.Equal(t, map[string]string{"api-key": "abc", "tenant": "ops"}, got)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")
	t.Setenv("OTEL_SERVICE_NAME", "sktd-test")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")
	cfg := ConfigFromEnv(Config{ServiceName: "sktd"})
	require.Equal(t, "collector:4318", cfg.Endpoint)
	require.True(t, cfg.Insecure)
	require.Equal(t, "sktd-test", cfg.ServiceName)
	require.InDelta(t, 0.25, cfg.SampleRatio, 1e-9)
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestSamplerRatio(t *testing.T) {
	require.Equal(t, sdktrace.AlwaysSample().Description(), sampler(0).Description())
	require.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	require.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}

func TestInitWithoutExportersInstallsPropagator(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "sktd", Environment: "test"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	res, err := buildResource(Config{ServiceName: "sktd", Environment: "test"})
	require.NoError(t, err)
	val, ok := res.Set().Value("service.name")
	require.True(t, ok)
	require.Equal(t, "sktd", val.AsString())
}
