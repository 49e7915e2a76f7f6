// Package telemetry wires up the Prometheus + OpenTelemetry exporters used
// across the project.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"adwarden/pkg/config"
	"adwarden/pkg/logging"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Telemetry holds telemetry providers and exporters
type Telemetry struct {
	cfg                *config.TelemetryConfig
	meterProvider      metric.MeterProvider
	prometheusExporter *prometheus.Exporter
	prometheusServer   *http.Server
	logger             *logging.Logger
}

// Metrics holds all application metrics
type Metrics struct {
	// Relay pipeline metrics
	QueriesTotal      metric.Int64Counter
	QueriesBlocked    metric.Int64Counter
	QueriesForwarded  metric.Int64Counter
	ResponseCacheHits metric.Int64Counter
	BlockCacheHits    metric.Int64Counter
	DecodeErrors      metric.Int64Counter
	UpstreamFailures  metric.Int64Counter

	// Classifier metrics
	ClassifierFailures metric.Int64Counter
	ClassifyDuration   metric.Float64Histogram

	// Latency and load
	UpstreamDuration metric.Float64Histogram
	ActiveQueries    metric.Int64UpDownCounter
}

// New creates a new telemetry instance
func New(ctx context.Context, cfg *config.TelemetryConfig, logger *logging.Logger) (*Telemetry, error) {
	if !cfg.Enabled {
		logger.Info("Telemetry disabled")
		return &Telemetry{
			cfg:           cfg,
			meterProvider: noop.NewMeterProvider(),
			logger:        logger,
		}, nil
	}

	t := &Telemetry{
		cfg:    cfg,
		logger: logger,
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := t.setupMetrics(res); err != nil {
		return nil, fmt.Errorf("failed to setup metrics: %w", err)
	}

	logger.Info("Telemetry initialized",
		"service", cfg.ServiceName,
		"version", cfg.ServiceVersion,
		"prometheus", cfg.PrometheusEnabled,
	)

	return t, nil
}

// setupMetrics initializes the metrics provider
func (t *Telemetry) setupMetrics(res *resource.Resource) error {
	if !t.cfg.PrometheusEnabled {
		t.meterProvider = noop.NewMeterProvider()
		return nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	t.prometheusExporter = exporter

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	t.meterProvider = provider
	otel.SetMeterProvider(provider)

	if err := t.startPrometheusServer(); err != nil {
		return fmt.Errorf("failed to start prometheus server: %w", err)
	}

	t.logger.Info("Prometheus metrics enabled", "port", t.cfg.PrometheusPort)
	return nil
}

// startPrometheusServer starts the Prometheus metrics HTTP server
func (t *Telemetry) startPrometheusServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	t.prometheusServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.cfg.PrometheusPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := t.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.logger.Error("Prometheus server failed", "error", err)
		}
	}()

	return nil
}

// InitMetrics initializes and returns all application metrics
func (t *Telemetry) InitMetrics() (*Metrics, error) {
	meter := t.meterProvider.Meter("adwarden")

	queriesTotal, err := meter.Int64Counter(
		"dns.queries.total",
		metric.WithDescription("Total number of DNS queries received"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queries counter: %w", err)
	}

	queriesBlocked, err := meter.Int64Counter(
		"dns.queries.blocked",
		metric.WithDescription("Number of queries answered with a blocked response"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create blocked counter: %w", err)
	}

	queriesForwarded, err := meter.Int64Counter(
		"dns.queries.forwarded",
		metric.WithDescription("Number of queries forwarded to an upstream resolver"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create forwarded counter: %w", err)
	}

	responseCacheHits, err := meter.Int64Counter(
		"dns.cache.response_hits",
		metric.WithDescription("Number of queries served from the response cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create response cache hits counter: %w", err)
	}

	blockCacheHits, err := meter.Int64Counter(
		"dns.cache.block_hits",
		metric.WithDescription("Number of queries resolved by a cached block decision"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cache hits counter: %w", err)
	}

	decodeErrors, err := meter.Int64Counter(
		"dns.decode.errors",
		metric.WithDescription("Number of inbound packets that failed to decode"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decode errors counter: %w", err)
	}

	upstreamFailures, err := meter.Int64Counter(
		"dns.upstream.failures",
		metric.WithDescription("Number of upstream exchanges that timed out or errored"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream failures counter: %w", err)
	}

	classifierFailures, err := meter.Int64Counter(
		"classifier.failures",
		metric.WithDescription("Number of classifier invocations that failed (fail-open)"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier failures counter: %w", err)
	}

	classifyDuration, err := meter.Float64Histogram(
		"classifier.duration",
		metric.WithDescription("Feature extraction plus scoring duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create classify duration histogram: %w", err)
	}

	upstreamDuration, err := meter.Float64Histogram(
		"dns.upstream.duration",
		metric.WithDescription("Upstream exchange duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream duration histogram: %w", err)
	}

	activeQueries, err := meter.Int64UpDownCounter(
		"dns.queries.active",
		metric.WithDescription("Number of queries currently in flight"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active queries gauge: %w", err)
	}

	return &Metrics{
		QueriesTotal:       queriesTotal,
		QueriesBlocked:     queriesBlocked,
		QueriesForwarded:   queriesForwarded,
		ResponseCacheHits:  responseCacheHits,
		BlockCacheHits:     blockCacheHits,
		DecodeErrors:       decodeErrors,
		UpstreamFailures:   upstreamFailures,
		ClassifierFailures: classifierFailures,
		ClassifyDuration:   classifyDuration,
		UpstreamDuration:   upstreamDuration,
		ActiveQueries:      activeQueries,
	}, nil
}

// MeterProvider returns the meter provider
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// Shutdown gracefully shuts down telemetry
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.prometheusServer != nil {
		if err := t.prometheusServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("prometheus server shutdown: %w", err))
		}
	}

	if provider, ok := t.meterProvider.(*sdkmetric.MeterProvider); ok {
		if err := provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("telemetry shutdown errors: %v", errs)
	}

	t.logger.Info("Telemetry shut down")
	return nil
}
