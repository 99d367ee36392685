package metrics

import (
	"context"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the instruments recorded by the store and its adapters
type Metrics struct {
	CommandsProcessed metric.Int64Counter
	CommandDuration   metric.Float64Histogram
	Errors            metric.Int64Counter
	KeysExpired       metric.Int64Counter
	HTTPRequests      metric.Int64Counter
	HTTPDuration      metric.Float64Histogram

	meter    metric.Meter
	provider *sdkmetric.MeterProvider
}

// Setup creates the instruments on a dedicated Prometheus registry and
// returns the scrape handler for it
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(serviceName)

	m := &Metrics{meter: meter, provider: provider}

	m.CommandsProcessed, err = meter.Int64Counter(
		"rkv_commands_total",
		metric.WithDescription("Total number of processed commands"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CommandDuration, err = meter.Float64Histogram(
		"rkv_command_duration_seconds",
		metric.WithDescription("Command duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.Errors, err = meter.Int64Counter(
		"rkv_errors_total",
		metric.WithDescription("Total number of failed commands by error type"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.KeysExpired, err = meter.Int64Counter(
		"rkv_keys_expired_total",
		metric.WithDescription("Total number of keys removed by expiry"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequests, err = meter.Int64Counter(
		"rkv_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"rkv_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, nil, err
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m, handler, nil
}

// Shutdown flushes and stops the meter provider
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// RecordCommandProcessed records a processed command with its duration
func (m *Metrics) RecordCommandProcessed(cmd string, duration time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("command", cmd))

	m.CommandsProcessed.Add(ctx, 1, attrs)
	m.CommandDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordError records a failed command by error type
func (m *Metrics) RecordError(errorType string) {
	m.Errors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", errorType)))
}

// RecordKeyExpired records a key removed by an expiry worker
func (m *Metrics) RecordKeyExpired() {
	m.KeysExpired.Add(context.Background(), 1)
}

// ObserveKeyCount reports count() as the number of scalar keys on
// every collection
func (m *Metrics) ObserveKeyCount(count func() int64) error {
	_, err := m.meter.Int64ObservableGauge(
		"rkv_keys",
		metric.WithDescription("Number of scalar keys"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(count())
			return nil
		}),
	)
	return err
}

// RecordHTTPRequest records one served HTTP request
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}
