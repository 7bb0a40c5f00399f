package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "context-teleporter/backend"

// Metrics holds the counters the services record into.
type Metrics struct {
	ingestions    metric.Int64Counter
	ingestedMsgs  metric.Int64Counter
	authAttempts  metric.Int64Counter
	apiKeyEvents  metric.Int64Counter
	compensations metric.Int64Counter
	touchFailures metric.Int64Counter
}

// SetupPrometheusMetrics wires an otel MeterProvider to a private Prometheus
// registry and returns the counters plus the /metrics handler.
func SetupPrometheusMetrics() (*Metrics, http.Handler, *sdkmetric.MeterProvider, error) {
	registry := prometheus.NewRegistry()

	exp, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
	m, err := NewMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, nil, nil, err
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m, handler, mp, nil
}

// NewNoopMetrics returns Metrics that record nothing.
func NewNoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(meterName))
	return m
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	if m.ingestions, err = meter.Int64Counter("ingestions_total",
		metric.WithDescription("Ingestion requests by result")); err != nil {
		return nil, err
	}
	if m.ingestedMsgs, err = meter.Int64Counter("ingested_messages_total",
		metric.WithDescription("Messages persisted by ingestion")); err != nil {
		return nil, err
	}
	if m.authAttempts, err = meter.Int64Counter("auth_attempts_total",
		metric.WithDescription("Request authentication attempts by method and result")); err != nil {
		return nil, err
	}
	if m.apiKeyEvents, err = meter.Int64Counter("api_key_events_total",
		metric.WithDescription("API key lifecycle events")); err != nil {
		return nil, err
	}
	if m.compensations, err = meter.Int64Counter("ingest_compensations_total",
		metric.WithDescription("Compensating deletes after a failed message insert, by result")); err != nil {
		return nil, err
	}
	if m.touchFailures, err = meter.Int64Counter("api_key_touch_failures_total",
		metric.WithDescription("Failed last-used timestamp updates")); err != nil {
		return nil, err
	}

	return &m, nil
}

// Ingestion records one ingestion outcome ("created", "invalid", "failed").
func (m *Metrics) Ingestion(ctx context.Context, result string, messages int) {
	if m == nil {
		return
	}
	m.ingestions.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	if result == "created" && messages > 0 {
		m.ingestedMsgs.Add(ctx, int64(messages))
	}
}

// Auth records which credential resolved a request, or "none".
func (m *Metrics) Auth(ctx context.Context, method string, ok bool) {
	if m == nil {
		return
	}
	result := "denied"
	if ok {
		result = "ok"
	}
	m.authAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("result", result),
	))
}

// APIKeyEvent records "created", "deleted" or "verified".
func (m *Metrics) APIKeyEvent(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.apiKeyEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// Compensation records the outcome of a compensating delete.
func (m *Metrics) Compensation(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "ok"
	}
	m.compensations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// TouchFailure records a failed last-used update.
func (m *Metrics) TouchFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.touchFailures.Add(ctx, 1)
}
