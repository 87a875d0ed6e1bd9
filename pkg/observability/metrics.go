// Package observability wires OpenTelemetry metrics onto a dedicated
// Prometheus registry and exposes them for scraping. Only metrics are
// provided; distributed tracing is out of scope for this engine.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/groundwork-ai/groundwork"

// Metrics owns the meter provider and every instrument the engine
// records on. A dedicated registry keeps the scrape output free of
// whatever the default global registry accumulates.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	searchDuration  metric.Float64Histogram
	stageDuration   metric.Float64Histogram
	llmCalls        metric.Int64Counter
	llmTokens       metric.Int64Counter
	rerankBatches   metric.Int64Counter
	enrichmentTools metric.Int64Counter
	healthChecks    metric.Int64Counter
	httpRequests    metric.Int64Counter
	httpDuration    metric.Float64Histogram
}

// InitMetrics builds the meter provider, registers the instruments and
// returns the ready-to-record Metrics.
func InitMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(meterName)

	m := &Metrics{registry: registry, provider: provider}

	if m.searchDuration, err = meter.Float64Histogram(
		"groundwork_search_duration_seconds",
		metric.WithDescription("End-to-end search request duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating search duration histogram: %w", err)
	}

	if m.stageDuration, err = meter.Float64Histogram(
		"groundwork_stage_duration_seconds",
		metric.WithDescription("Per-stage pipeline execution duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating stage duration histogram: %w", err)
	}

	if m.llmCalls, err = meter.Int64Counter(
		"groundwork_llm_calls_total",
		metric.WithDescription("LLM provider calls by provider and operation"),
	); err != nil {
		return nil, fmt.Errorf("creating llm calls counter: %w", err)
	}

	if m.llmTokens, err = meter.Int64Counter(
		"groundwork_llm_tokens_total",
		metric.WithDescription("Tokens consumed across LLM calls"),
	); err != nil {
		return nil, fmt.Errorf("creating llm tokens counter: %w", err)
	}

	if m.rerankBatches, err = meter.Int64Counter(
		"groundwork_rerank_batches_total",
		metric.WithDescription("Reranking batches by strategy"),
	); err != nil {
		return nil, fmt.Errorf("creating rerank batches counter: %w", err)
	}

	if m.enrichmentTools, err = meter.Int64Counter(
		"groundwork_enrichment_tools_total",
		metric.WithDescription("Enrichment tool invocations by tool and outcome"),
	); err != nil {
		return nil, fmt.Errorf("creating enrichment tools counter: %w", err)
	}

	if m.healthChecks, err = meter.Int64Counter(
		"groundwork_health_checks_total",
		metric.WithDescription("Dependency health probes by service and outcome"),
	); err != nil {
		return nil, fmt.Errorf("creating health checks counter: %w", err)
	}

	if m.httpRequests, err = meter.Int64Counter(
		"groundwork_http_requests_total",
		metric.WithDescription("HTTP requests by method, route and status"),
	); err != nil {
		return nil, fmt.Errorf("creating http requests counter: %w", err)
	}

	if m.httpDuration, err = meter.Float64Histogram(
		"groundwork_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating http duration histogram: %w", err)
	}

	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// RecordSearch records one completed search request.
func (m *Metrics) RecordSearch(ctx context.Context, duration time.Duration, failed bool) {
	m.searchDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Bool("failed", failed)))
}

// StageCompleted records one pipeline stage run. It satisfies the
// pipeline executor's metrics hook.
func (m *Metrics) StageCompleted(ctx context.Context, stage string, duration time.Duration, failed bool) {
	m.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("failed", failed)))
}

// RecordLLMCall records one provider call and its token consumption.
func (m *Metrics) RecordLLMCall(ctx context.Context, provider, operation string, duration time.Duration, tokens int) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation))
	m.llmCalls.Add(ctx, 1, attrs)
	if tokens > 0 {
		m.llmTokens.Add(ctx, int64(tokens), attrs)
	}
}

// RecordRerankBatch records one scored reranking batch.
func (m *Metrics) RecordRerankBatch(ctx context.Context, strategy string) {
	m.rerankBatches.Add(ctx, 1,
		metric.WithAttributes(attribute.String("strategy", strategy)))
}

// RecordEnrichmentTool records one enrichment tool invocation.
func (m *Metrics) RecordEnrichmentTool(ctx context.Context, tool string, success bool) {
	m.enrichmentTools.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.Bool("success", success)))
}

// RecordHealthCheck records one dependency probe.
func (m *Metrics) RecordHealthCheck(ctx context.Context, service string, healthy bool) {
	m.healthChecks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.Bool("healthy", healthy)))
}

func (m *Metrics) recordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status))
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
}
