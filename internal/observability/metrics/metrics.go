package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
	ExportInterval   time.Duration
}

// Metrics exposes metering instruments.
type Metrics struct {
	usageEvents      metric.Int64Counter
	creditsDeducted  metric.Int64Counter
	creditsGranted   metric.Int64Counter
	rejections       metric.Int64Counter
	duplicates       metric.Int64Counter
	anomalyWarnings  metric.Int64Counter
	billingRetries   metric.Int64Counter
	pricingRefreshes metric.Int64Counter
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the metering instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "tokenledger"
	}
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.usageEvents, "tokenledger_usage_events_total", "Usage events by outcome."},
		{&m.creditsDeducted, "tokenledger_credits_deducted_total", "Credits deducted from account balances."},
		{&m.creditsGranted, "tokenledger_credits_granted_total", "Credits granted to account balances."},
		{&m.rejections, "tokenledger_usage_rejections_total", "Rejected usage events by reason."},
		{&m.duplicates, "tokenledger_usage_duplicates_total", "Usage events replayed as duplicates."},
		{&m.anomalyWarnings, "tokenledger_anomaly_warnings_total", "Soft anomaly warnings attached to entries."},
		{&m.billingRetries, "tokenledger_billing_record_retries_total", "Billing record writes retried after commit."},
		{&m.pricingRefreshes, "tokenledger_pricing_refresh_total", "Pricing snapshot refreshes by result."},
		{&m.rateLimitAllowed, "tokenledger_rate_limit_allowed_total", "Requests allowed by the rate limiter."},
		{&m.rateLimitDenied, "tokenledger_rate_limit_denied_total", "Requests denied by the rate limiter."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}

	return m, nil
}

// RecordUsageEvent counts a processed usage event by its final outcome.
func (m *Metrics) RecordUsageEvent(ctx context.Context, modelName, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("model_name", strings.TrimSpace(modelName)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.usageEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCreditsDeducted adds deducted credits for a model.
func (m *Metrics) RecordCreditsDeducted(ctx context.Context, modelName string, credits int64) {
	if m == nil || credits <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("model_name", strings.TrimSpace(modelName)))
	m.creditsDeducted.Add(ctx, credits, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordCreditsGranted(ctx context.Context, credits int64) {
	if m == nil || credits <= 0 {
		return
	}
	m.creditsGranted.Add(ctx, credits)
}

// RecordRejection counts a rejected usage event.
func (m *Metrics) RecordRejection(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.rejections.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordDuplicate(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.duplicates.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordAnomalyWarning(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.anomalyWarnings.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBillingRetry counts billing record retries by result.
func (m *Metrics) RecordBillingRetry(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.billingRetries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordPricingRefresh(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.pricingRefreshes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// user_id is deliberately absent: accounts are unbounded.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"model_name":  {},
	"outcome":     {},
	"endpoint":    {},
	"status_code": {},
	"source":      {},
	"result":      {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
