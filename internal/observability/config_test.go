package observability

import (
	"testing"
	"time"

	"github.com/smallbiznis/tokenledger/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"LOG_LEVEL", "METRICS_PATH", "OTEL_SAMPLING_RATIO", "OTEL_ENABLED", "OTEL_METRIC_EXPORT_INTERVAL", "DEPLOYMENT_ENV"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig(config.Config{Environment: "development"})
	assert.Equal(t, "tokenledger", cfg.ServiceName)
	assert.Equal(t, "/metrics", cfg.MetricsPath)
	assert.Equal(t, 10*time.Second, cfg.MetricsExportInterval)
	assert.InDelta(t, 0.1, cfg.OtelSamplingRatio, 1e-9)
	assert.False(t, cfg.OtelEnabled)
	assert.True(t, cfg.Debug())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DEPLOYMENT_ENV", "staging")
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("METRICS_PATH", "internal/metrics")
	t.Setenv("OTEL_SAMPLING_RATIO", "7")
	t.Setenv("OTEL_ENABLED", "yes")
	t.Setenv("OTEL_METRIC_EXPORT_INTERVAL", "bogus")

	cfg := LoadConfig(config.Config{AppName: "meter", Environment: "development"})
	assert.Equal(t, "meter", cfg.ServiceName)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "/internal/metrics", cfg.MetricsRoute())
	assert.InDelta(t, 0.1, cfg.OtelSamplingRatio, 1e-9, "out of range ratio falls back")
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, 10*time.Second, cfg.MetricsExportInterval)
	assert.False(t, cfg.Debug())
}

func TestZeroConfigMetricsRoute(t *testing.T) {
	assert.Equal(t, "/metrics", Config{}.MetricsRoute())
}
