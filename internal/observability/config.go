package observability

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/tokenledger/internal/config"
)

// Config holds observability settings. Values come from the app config and
// may be overridden by the standard OTEL_* variables.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	// MetricsPath is where the Prometheus handler is mounted.
	MetricsPath           string
	MetricsExportInterval time.Duration

	GormSlowThreshold time.Duration
}

const (
	defaultServiceName     = "tokenledger"
	defaultSamplingRatio   = 0.1
	defaultMetricsPath     = "/metrics"
	defaultExportInterval  = 10 * time.Second
	defaultGormSlowQueries = 200 * time.Millisecond
)

func LoadConfig(cfg config.Config) Config {
	var env envReader

	out := Config{
		ServiceName:           strings.TrimSpace(cfg.AppName),
		Environment:           env.str("DEPLOYMENT_ENV", cfg.Environment),
		Version:               env.str("SERVICE_VERSION", cfg.AppVersion),
		LogLevel:              strings.ToLower(env.str("LOG_LEVEL", "info")),
		LogFormat:             strings.ToLower(env.str("LOG_FORMAT", "json")),
		OtelEnabled:           env.boolean("OTEL_ENABLED", cfg.IsProduction()),
		OtelExporterEndpoint:  env.str("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint),
		OtelExporterProtocol:  strings.ToLower(env.str("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", env.str("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
		OtelSamplingRatio:     env.float("OTEL_SAMPLING_RATIO", defaultSamplingRatio),
		MetricsPath:           env.str("METRICS_PATH", defaultMetricsPath),
		MetricsExportInterval: env.duration("OTEL_METRIC_EXPORT_INTERVAL", defaultExportInterval),
		GormSlowThreshold:     env.duration("GORM_SLOW_THRESHOLD", defaultGormSlowQueries),
	}
	if out.ServiceName == "" {
		out.ServiceName = defaultServiceName
	}
	if out.OtelSamplingRatio < 0 || out.OtelSamplingRatio > 1 {
		out.OtelSamplingRatio = defaultSamplingRatio
	}
	if !strings.HasPrefix(out.MetricsPath, "/") {
		out.MetricsPath = "/" + out.MetricsPath
	}
	if out.MetricsExportInterval <= 0 {
		out.MetricsExportInterval = defaultExportInterval
	}
	return out
}

// Debug is true for debug log level or any local environment.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// MetricsRoute falls back to /metrics for zero-value configs.
func (c Config) MetricsRoute() string {
	if c.MetricsPath == "" {
		return defaultMetricsPath
	}
	return c.MetricsPath
}

// envReader returns the fallback whenever a variable is unset or unparsable.
type envReader struct{}

func (envReader) raw(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func (e envReader) str(key, fallback string) string {
	if v := e.raw(key); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
}

func (e envReader) boolean(key string, fallback bool) bool {
	switch strings.ToLower(e.raw(key)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return fallback
}

func (e envReader) float(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(e.raw(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func (e envReader) duration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(e.raw(key))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
